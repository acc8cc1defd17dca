// Package storage provides the persistence contract for the recipe catalogue
// and day event logs, with interchangeable in-memory, SQLite, and
// bridge-backed implementations.
//
// The adapter owns the authoritative recipe and day-log collections for its
// backend. Callers never mutate persisted records directly; every returned
// record is a copy and must be treated as an immutable snapshot.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/ident"
	"github.com/mealplanner/pantry/internal/recipe"
	"github.com/mealplanner/pantry/internal/search"
	"github.com/mealplanner/pantry/internal/validate"
)

// ErrNotFound is returned when a recipe or day log does not exist.
var ErrNotFound = errors.New("storage: not found")

// DuplicateTitleError reports an add that collides with an existing recipe's
// title. Title comparison is case-insensitive. This is a storage-level
// validation failure, not a crash: callers surface it like any other
// validation error.
type DuplicateTitleError struct {
	Title string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("recipe with title %q already exists", e.Title)
}

// ValidationFailedError wraps the accumulated findings of a rejected put.
type ValidationFailedError struct {
	Result validate.Result
}

func (e *ValidationFailedError) Error() string {
	return e.Result.Summary
}

// Change types emitted by StreamChanges.
const (
	ChangeRecipe = "recipe"
	ChangeDay    = "day"
)

// Change is one observed mutation, keyed by recipe UUID or ISO date.
type Change struct {
	Type        string          `json:"type"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ChangeToken string          `json:"changeToken,omitempty"`
}

// Adapter is the polymorphic persistence contract. Within one instance,
// operations are observed in call order; across instances only day-event
// timestamps order anything.
type Adapter interface {
	// Initialise prepares the backend. Idempotent.
	Initialise(ctx context.Context) error

	// PutRecipe validates input and persists it. Raw untyped input (a JSON
	// object) is validated against the recipe contract; a recipe.Stored
	// rewrites an existing record. The UUID is assigned on first put and
	// immutable afterwards; UpdatedAtEpochMs is bumped on every write.
	// An add whose title collides with a different recipe fails with
	// DuplicateTitleError and leaves the collection untouched.
	PutRecipe(ctx context.Context, input any) (recipe.Stored, error)

	// GetRecipe returns the recipe with the given UUID, or ErrNotFound.
	GetRecipe(ctx context.Context, uuid string) (recipe.Stored, error)

	// ListRecipes returns the full collection.
	ListRecipes(ctx context.Context) ([]recipe.Stored, error)

	// SearchRecipes returns recipes matching the query. The in-memory
	// backend ignores query refinement and returns the full collection.
	SearchRecipes(ctx context.Context, opts search.Options) ([]recipe.Stored, error)

	// AppendDayEvents merges events onto the day's log, creating it if
	// needed, and returns the updated log.
	AppendDayEvents(ctx context.Context, isoDate string, events []daylog.Event) (*daylog.Log, error)

	// ReadDayLog returns the day's log, or ErrNotFound when no events have
	// ever been appended for that date.
	ReadDayLog(ctx context.Context, isoDate string) (*daylog.Log, error)

	// CompactDayLog rewrites the day's log to its minimal equivalent form.
	CompactDayLog(ctx context.Context, isoDate string) error

	// StreamChanges returns a channel of mutations observed after
	// sinceToken (all known mutations when empty). The channel is closed
	// when the backend has no more changes to report or ctx is cancelled.
	StreamChanges(ctx context.Context, sinceToken string) (<-chan Change, error)

	// Close releases backend resources.
	Close() error
}

// Meals materializes the current meal assignments for a date by replaying
// the day's log. A date with no log yields an empty view, not an error.
func Meals(ctx context.Context, a Adapter, isoDate string) ([]daylog.MealEntry, error) {
	log, err := a.ReadDayLog(ctx, isoDate)
	if errors.Is(err, ErrNotFound) {
		return []daylog.MealEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return daylog.Rebuild(log.Events), nil
}

// deps bundles the collaborators every backend shares: the validator guarding
// writes, the search engine, the identifier generator, and the clock.
type deps struct {
	validator *validate.Validator
	engine    *search.Engine
	ids       *ident.Generator
	log       *zap.Logger
	nowMs     func() int64
}

// Option configures the collaborators used by an adapter.
type Option func(*deps)

// WithValidator overrides the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(d *deps) { d.validator = v }
}

// WithEngine overrides the default search engine.
func WithEngine(e *search.Engine) Option {
	return func(d *deps) { d.engine = e }
}

// WithIdentifiers overrides the default identifier generator.
func WithIdentifiers(g *ident.Generator) Option {
	return func(d *deps) { d.ids = g }
}

// WithLogger attaches a logger to the adapter.
func WithLogger(log *zap.Logger) Option {
	return func(d *deps) { d.log = log }
}

// WithClock overrides the epoch-milliseconds clock. Used by tests.
func WithClock(nowMs func() int64) Option {
	return func(d *deps) { d.nowMs = nowMs }
}

func newDeps(opts []Option) deps {
	d := deps{
		validator: validate.New(),
		engine:    search.New(search.DefaultWeights()),
		ids:       ident.New(),
		log:       zap.NewNop(),
		nowMs:     func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// prepareRecipe normalizes a PutRecipe input into a stored record ready to
// persist. Raw input passes through the validator; typed records pass through
// untouched. A record without a UUID gets one plus creation timestamps; a
// record with a UUID keeps its identity and gets its update timestamp bumped.
func (d *deps) prepareRecipe(input any) (recipe.Stored, error) {
	now := d.nowMs()

	switch in := input.(type) {
	case recipe.Stored:
		stored := in.Clone()
		if stored.UUID == "" {
			stored.UUID = d.ids.Generate()
			stored.CreatedAtEpochMs = now
		}
		stored.UpdatedAtEpochMs = now
		return stored, nil
	case recipe.Recipe:
		return recipe.Stored{
			Recipe:           in.Clone(),
			UUID:             d.ids.Generate(),
			CreatedAtEpochMs: now,
			UpdatedAtEpochMs: now,
		}, nil
	default:
		r, res := d.validator.StoreRecipe(input)
		if !res.IsValid {
			return recipe.Stored{}, &ValidationFailedError{Result: res}
		}
		return recipe.Stored{
			Recipe:           r,
			UUID:             d.ids.Generate(),
			CreatedAtEpochMs: now,
			UpdatedAtEpochMs: now,
		}, nil
	}
}

// titleKey is the case-insensitive comparison key for duplicate detection.
func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
