package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/recipe"
	"github.com/mealplanner/pantry/internal/search"
)

// Memory backs the adapter contract with process-local maps. Used by tests
// and environments without durable storage. SearchRecipes ignores query
// refinement and returns the full collection.
type Memory struct {
	deps   deps
	tokens *tokenSource

	mu      sync.Mutex
	recipes map[string]recipe.Stored
	dayLogs map[string]*daylog.Log
	changes []Change
}

// NewMemory returns an empty in-memory adapter.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		deps:    newDeps(opts),
		tokens:  newTokenSource(),
		recipes: make(map[string]recipe.Stored),
		dayLogs: make(map[string]*daylog.Log),
	}
}

// Initialise is a no-op for the in-memory backend.
func (m *Memory) Initialise(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }

func (m *Memory) PutRecipe(ctx context.Context, input any) (recipe.Stored, error) {
	stored, err := m.deps.prepareRecipe(input)
	if err != nil {
		return recipe.Stored{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := titleKey(stored.Title)
	for uuid, existing := range m.recipes {
		if uuid != stored.UUID && titleKey(existing.Title) == key {
			return recipe.Stored{}, &DuplicateTitleError{Title: stored.Title}
		}
	}
	if existing, ok := m.recipes[stored.UUID]; ok {
		stored.CreatedAtEpochMs = existing.CreatedAtEpochMs
	}

	m.recipes[stored.UUID] = stored.Clone()
	m.recordChangeLocked(ChangeRecipe, stored.UUID, stored, m.tokens.Next())
	return stored, nil
}

func (m *Memory) GetRecipe(ctx context.Context, uuid string) (recipe.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.recipes[uuid]
	if !ok {
		return recipe.Stored{}, ErrNotFound
	}
	return stored.Clone(), nil
}

func (m *Memory) ListRecipes(ctx context.Context) ([]recipe.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

// SearchRecipes returns the full collection regardless of opts; the memory
// backend exists for environments where refinement happens elsewhere.
func (m *Memory) SearchRecipes(ctx context.Context, opts search.Options) ([]recipe.Stored, error) {
	return m.ListRecipes(ctx)
}

func (m *Memory) AppendDayEvents(ctx context.Context, isoDate string, events []daylog.Event) (*daylog.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := daylog.Merge(m.dayLogs[isoDate], isoDate, events)
	merged.LastIndexedChangeToken = m.tokens.Next()
	m.dayLogs[isoDate] = merged
	m.recordChangeLocked(ChangeDay, isoDate, merged, merged.LastIndexedChangeToken)
	return merged.Clone(), nil
}

func (m *Memory) ReadDayLog(ctx context.Context, isoDate string) (*daylog.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.dayLogs[isoDate]
	if !ok {
		return nil, ErrNotFound
	}
	return log.Clone(), nil
}

func (m *Memory) CompactDayLog(ctx context.Context, isoDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.dayLogs[isoDate]
	if !ok {
		return ErrNotFound
	}
	compacted := daylog.Compact(log, m.deps.ids.Generate)
	compacted.LastIndexedChangeToken = m.tokens.Next()
	m.dayLogs[isoDate] = compacted
	m.recordChangeLocked(ChangeDay, isoDate, compacted, compacted.LastIndexedChangeToken)
	return nil
}

// StreamChanges replays recorded mutations after sinceToken. The channel is
// closed once the snapshot is drained; the memory backend has no live tail.
func (m *Memory) StreamChanges(ctx context.Context, sinceToken string) (<-chan Change, error) {
	m.mu.Lock()
	pending := make([]Change, 0, len(m.changes))
	for _, c := range m.changes {
		if sinceToken == "" || c.ChangeToken > sinceToken {
			pending = append(pending, c)
		}
	}
	m.mu.Unlock()

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

func (m *Memory) snapshotLocked() []recipe.Stored {
	out := make([]recipe.Stored, 0, len(m.recipes))
	for _, stored := range m.recipes {
		out = append(out, stored.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtEpochMs != out[j].CreatedAtEpochMs {
			return out[i].CreatedAtEpochMs < out[j].CreatedAtEpochMs
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

func (m *Memory) recordChangeLocked(changeType, key string, payload any, token string) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	m.changes = append(m.changes, Change{
		Type:        changeType,
		Key:         key,
		Payload:     data,
		ChangeToken: token,
	})
}
