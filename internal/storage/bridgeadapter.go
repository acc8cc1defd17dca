package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mealplanner/pantry/internal/bridge"
	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/recipe"
	"github.com/mealplanner/pantry/internal/search"
)

// Bridge delegates persistence to an embedding host over the message bridge.
// Validation and identifier assignment still happen locally before any write
// crosses the bridge, so the host only ever sees well-formed records.
type Bridge struct {
	deps   deps
	client *bridge.Client
}

// NewBridge wraps an established bridge client.
func NewBridge(client *bridge.Client, opts ...Option) *Bridge {
	return &Bridge{
		deps:   newDeps(opts),
		client: client,
	}
}

// Initialise performs the bridge handshake. The host answers once its own
// storage is ready to accept operations.
func (b *Bridge) Initialise(ctx context.Context) error {
	if _, err := b.client.Call(ctx, bridge.OpInitialise, nil); err != nil {
		return fmt.Errorf("initialise bridge storage: %w", err)
	}
	return nil
}

// Close releases the bridge client and fails any in-flight calls.
func (b *Bridge) Close() error {
	b.client.Close()
	return nil
}

type putRecipePayload struct {
	Recipe recipe.Stored `json:"recipe"`
}

type recipeKeyPayload struct {
	UUID string `json:"uuid"`
}

type dayKeyPayload struct {
	ISODate string `json:"isoDate"`
}

type appendEventsPayload struct {
	ISODate string         `json:"isoDate"`
	Events  []daylog.Event `json:"events"`
}

type streamChangesPayload struct {
	SinceToken string `json:"sinceToken,omitempty"`
}

func (b *Bridge) PutRecipe(ctx context.Context, input any) (recipe.Stored, error) {
	stored, err := b.deps.prepareRecipe(input)
	if err != nil {
		return recipe.Stored{}, err
	}

	raw, err := b.client.Call(ctx, bridge.OpPutRecipe, putRecipePayload{Recipe: stored})
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: %w", err)
	}

	// The host may adjust timestamps; its echo is authoritative.
	var echoed recipe.Stored
	if err := json.Unmarshal(raw, &echoed); err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: decode response: %w", err)
	}
	return echoed, nil
}

func (b *Bridge) GetRecipe(ctx context.Context, uuid string) (recipe.Stored, error) {
	raw, err := b.client.Call(ctx, bridge.OpGetRecipe, recipeKeyPayload{UUID: uuid})
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("get recipe: %w", err)
	}
	if isNullPayload(raw) {
		return recipe.Stored{}, ErrNotFound
	}

	var stored recipe.Stored
	if err := json.Unmarshal(raw, &stored); err != nil {
		return recipe.Stored{}, fmt.Errorf("get recipe: decode response: %w", err)
	}
	return stored, nil
}

func (b *Bridge) ListRecipes(ctx context.Context) ([]recipe.Stored, error) {
	raw, err := b.client.Call(ctx, bridge.OpListRecipes, nil)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	recipes := []recipe.Stored{}
	if err := json.Unmarshal(raw, &recipes); err != nil {
		return nil, fmt.Errorf("list recipes: decode response: %w", err)
	}
	return recipes, nil
}

// SearchRecipes posts the query to the host and re-ranks its answer locally.
// The host applies the filters; the local pass restores score ordering and
// matched-field attribution, which the wire shape does not carry.
func (b *Bridge) SearchRecipes(ctx context.Context, opts search.Options) ([]recipe.Stored, error) {
	raw, err := b.client.Call(ctx, bridge.OpSearchRecipes, opts)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}

	matched := []recipe.Stored{}
	if err := json.Unmarshal(raw, &matched); err != nil {
		return nil, fmt.Errorf("search recipes: decode response: %w", err)
	}
	return search.Recipes(b.deps.engine.Search(matched, opts)), nil
}

func (b *Bridge) AppendDayEvents(ctx context.Context, isoDate string, events []daylog.Event) (*daylog.Log, error) {
	raw, err := b.client.Call(ctx, bridge.OpAppendDayEvents, appendEventsPayload{
		ISODate: isoDate,
		Events:  events,
	})
	if err != nil {
		return nil, fmt.Errorf("append day events: %w", err)
	}

	var log daylog.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("append day events: decode response: %w", err)
	}
	return &log, nil
}

func (b *Bridge) ReadDayLog(ctx context.Context, isoDate string) (*daylog.Log, error) {
	raw, err := b.client.Call(ctx, bridge.OpReadDayLog, dayKeyPayload{ISODate: isoDate})
	if err != nil {
		return nil, fmt.Errorf("read day log: %w", err)
	}
	if isNullPayload(raw) {
		return nil, ErrNotFound
	}

	var log daylog.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("read day log: decode response: %w", err)
	}
	return &log, nil
}

func (b *Bridge) CompactDayLog(ctx context.Context, isoDate string) error {
	if _, err := b.client.Call(ctx, bridge.OpCompactDayLog, dayKeyPayload{ISODate: isoDate}); err != nil {
		return fmt.Errorf("compact day log: %w", err)
	}
	return nil
}

// StreamChanges asks the host for its journal after sinceToken and replays
// it over a channel. The snapshot is fetched in one call; the bridge has no
// live subscription mechanism.
func (b *Bridge) StreamChanges(ctx context.Context, sinceToken string) (<-chan Change, error) {
	raw, err := b.client.Call(ctx, bridge.OpStreamChanges, streamChangesPayload{SinceToken: sinceToken})
	if err != nil {
		return nil, fmt.Errorf("stream changes: %w", err)
	}

	var pending []Change
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("stream changes: decode response: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		for _, c := range pending {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// isNullPayload reports whether the host answered with no record.
func isNullPayload(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe == nil
}
