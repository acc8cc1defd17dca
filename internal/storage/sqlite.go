package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/recipe"
	"github.com/mealplanner/pantry/internal/search"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Current schema
const currentSchemaVersion = 1

// SQLite is the local durable backend. Records survive process restarts;
// from the caller's perspective it behaves exactly like the in-memory
// backend, except SearchRecipes applies real query refinement.
type SQLite struct {
	deps   deps
	tokens *tokenSource

	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies pragmas and
// schema. Idempotent.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, a 5-second busy timeout, and foreign key enforcement.
// SQLite supports a single writer, so the pool is capped at one connection.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLite{
		deps:   newDeps(opts),
		tokens: newTokenSource(),
		db:     db,
	}
	s.deps.log.Debug("sqlite backend opened", zap.String("path", path))
	return s, nil
}

// Initialise verifies the connection. The schema is applied at open time.
func (s *SQLite) Initialise(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) PutRecipe(ctx context.Context, input any) (recipe.Stored, error) {
	stored, err := s.deps.prepareRecipe(input)
	if err != nil {
		return recipe.Stored{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Reject an add that collides with a different recipe's title.
	var existingUUID string
	err = tx.QueryRowContext(ctx, `
		SELECT uuid FROM recipes WHERE title_key = ? AND uuid <> ?
	`, titleKey(stored.Title), stored.UUID).Scan(&existingUUID)
	switch {
	case err == nil:
		return recipe.Stored{}, &DuplicateTitleError{Title: stored.Title}
	case !errors.Is(err, sql.ErrNoRows):
		return recipe.Stored{}, fmt.Errorf("put recipe: check title: %w", err)
	}

	// Preserve the original creation timestamp on rewrite.
	var createdAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT created_at_ms FROM recipes WHERE uuid = ?
	`, stored.UUID).Scan(&createdAt)
	switch {
	case err == nil:
		stored.CreatedAtEpochMs = createdAt
	case !errors.Is(err, sql.ErrNoRows):
		return recipe.Stored{}, fmt.Errorf("put recipe: read existing: %w", err)
	}

	body, err := json.Marshal(stored)
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: marshal: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipes (uuid, title, title_key, body, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			title = excluded.title,
			title_key = excluded.title_key,
			body = excluded.body,
			updated_at_ms = excluded.updated_at_ms
	`, stored.UUID, stored.Title, titleKey(stored.Title), string(body),
		stored.CreatedAtEpochMs, stored.UpdatedAtEpochMs)
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: %w", err)
	}

	if err := s.writeChangeTx(ctx, tx, ChangeRecipe, stored.UUID, body); err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return recipe.Stored{}, fmt.Errorf("put recipe: commit: %w", err)
	}
	return stored, nil
}

func (s *SQLite) GetRecipe(ctx context.Context, uuid string) (recipe.Stored, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM recipes WHERE uuid = ?
	`, uuid).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return recipe.Stored{}, ErrNotFound
	}
	if err != nil {
		return recipe.Stored{}, fmt.Errorf("get recipe: %w", err)
	}

	var stored recipe.Stored
	if err := json.Unmarshal([]byte(body), &stored); err != nil {
		return recipe.Stored{}, fmt.Errorf("get recipe: unmarshal: %w", err)
	}
	return stored, nil
}

// ListRecipes returns the full collection ordered by creation time then UUID
// so repeated reads observe identical ordering.
func (s *SQLite) ListRecipes(ctx context.Context) ([]recipe.Stored, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM recipes ORDER BY created_at_ms ASC, uuid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	recipes := []recipe.Stored{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		var stored recipe.Stored
		if err := json.Unmarshal([]byte(body), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal recipe: %w", err)
		}
		recipes = append(recipes, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}
	return recipes, nil
}

// SearchRecipes loads the collection and delegates refinement to the search
// engine. The catalogue is small enough that in-process ranking beats
// pushing substring scoring into SQL.
func (s *SQLite) SearchRecipes(ctx context.Context, opts search.Options) ([]recipe.Stored, error) {
	collection, err := s.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	return search.Recipes(s.deps.engine.Search(collection, opts)), nil
}

func (s *SQLite) AppendDayEvents(ctx context.Context, isoDate string, events []daylog.Event) (*daylog.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append day events: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		snapshot, err := marshalSnapshot(ev.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("append day events: %w", err)
		}
		// ON CONFLICT DO NOTHING keeps re-appended events idempotent.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO day_events (id, iso_date, op, recipe_uuid, occurred_at_ms, snapshot)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, ev.ID, isoDate, string(ev.Op), ev.RecipeUUID, ev.OccurredAtEpochMs, snapshot)
		if err != nil {
			return nil, fmt.Errorf("append day events: %w", err)
		}
	}

	token := s.tokens.Next()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO day_logs (iso_date, last_indexed_change_token)
		VALUES (?, ?)
		ON CONFLICT(iso_date) DO UPDATE SET last_indexed_change_token = excluded.last_indexed_change_token
	`, isoDate, token)
	if err != nil {
		return nil, fmt.Errorf("append day events: update log: %w", err)
	}

	log, err := s.readDayLogTx(ctx, tx, isoDate)
	if err != nil {
		return nil, fmt.Errorf("append day events: %w", err)
	}

	payload, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("append day events: marshal log: %w", err)
	}
	if err := s.writeChangeTokenTx(ctx, tx, token, ChangeDay, isoDate, payload); err != nil {
		return nil, fmt.Errorf("append day events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append day events: commit: %w", err)
	}
	return log, nil
}

func (s *SQLite) ReadDayLog(ctx context.Context, isoDate string) (*daylog.Log, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("read day log: begin tx: %w", err)
	}
	defer tx.Rollback()

	log, err := s.readDayLogTx(ctx, tx, isoDate)
	if err != nil {
		return nil, err
	}
	return log, tx.Commit()
}

// CompactDayLog rewrites the day's events to the minimal add set that
// reproduces the materialized view, in one transaction.
func (s *SQLite) CompactDayLog(ctx context.Context, isoDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("compact day log: begin tx: %w", err)
	}
	defer tx.Rollback()

	log, err := s.readDayLogTx(ctx, tx, isoDate)
	if err != nil {
		return err
	}

	compacted := daylog.Compact(log, s.deps.ids.Generate)

	if _, err := tx.ExecContext(ctx, `DELETE FROM day_events WHERE iso_date = ?`, isoDate); err != nil {
		return fmt.Errorf("compact day log: clear events: %w", err)
	}
	for _, ev := range compacted.Events {
		snapshot, err := marshalSnapshot(ev.Snapshot)
		if err != nil {
			return fmt.Errorf("compact day log: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO day_events (id, iso_date, op, recipe_uuid, occurred_at_ms, snapshot)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ev.ID, isoDate, string(ev.Op), ev.RecipeUUID, ev.OccurredAtEpochMs, snapshot)
		if err != nil {
			return fmt.Errorf("compact day log: write event: %w", err)
		}
	}

	token := s.tokens.Next()
	_, err = tx.ExecContext(ctx, `
		UPDATE day_logs SET last_indexed_change_token = ? WHERE iso_date = ?
	`, token, isoDate)
	if err != nil {
		return fmt.Errorf("compact day log: update log: %w", err)
	}

	compacted.LastIndexedChangeToken = token
	payload, err := json.Marshal(compacted)
	if err != nil {
		return fmt.Errorf("compact day log: marshal: %w", err)
	}
	if err := s.writeChangeTokenTx(ctx, tx, token, ChangeDay, isoDate, payload); err != nil {
		return fmt.Errorf("compact day log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("compact day log: commit: %w", err)
	}
	return nil
}

// StreamChanges pages the mutation journal after sinceToken, ordered by
// token. The channel closes when the recorded changes are drained.
func (s *SQLite) StreamChanges(ctx context.Context, sinceToken string) (<-chan Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, type, key, COALESCE(payload, '')
		FROM changes
		WHERE token > ?
		ORDER BY token ASC
	`, sinceToken)
	if err != nil {
		return nil, fmt.Errorf("stream changes: %w", err)
	}

	var pending []Change
	for rows.Next() {
		var c Change
		var payload string
		if err := rows.Scan(&c.ChangeToken, &c.Type, &c.Key, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if payload != "" {
			c.Payload = json.RawMessage(payload)
		}
		pending = append(pending, c)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("stream changes: %w", err)
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

func (s *SQLite) readDayLogTx(ctx context.Context, tx *sql.Tx, isoDate string) (*daylog.Log, error) {
	var token sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT last_indexed_change_token FROM day_logs WHERE iso_date = ?
	`, isoDate).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read day log: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, op, recipe_uuid, occurred_at_ms, COALESCE(snapshot, '')
		FROM day_events
		WHERE iso_date = ?
		ORDER BY occurred_at_ms ASC, id ASC
	`, isoDate)
	if err != nil {
		return nil, fmt.Errorf("read day events: %w", err)
	}
	defer rows.Close()

	log := &daylog.Log{ISODate: isoDate, Events: []daylog.Event{}, LastIndexedChangeToken: token.String}
	for rows.Next() {
		var ev daylog.Event
		var op, snapshot string
		if err := rows.Scan(&ev.ID, &op, &ev.RecipeUUID, &ev.OccurredAtEpochMs, &snapshot); err != nil {
			return nil, fmt.Errorf("scan day event: %w", err)
		}
		ev.ISODate = isoDate
		ev.Op = daylog.Op(op)
		if snapshot != "" {
			var snap daylog.Snapshot
			if err := json.Unmarshal([]byte(snapshot), &snap); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
			ev.Snapshot = &snap
		}
		log.Events = append(log.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day events: %w", err)
	}
	return log, nil
}

func (s *SQLite) writeChangeTx(ctx context.Context, tx *sql.Tx, changeType, key string, payload []byte) error {
	return s.writeChangeTokenTx(ctx, tx, s.tokens.Next(), changeType, key, payload)
}

func (s *SQLite) writeChangeTokenTx(ctx context.Context, tx *sql.Tx, token, changeType, key string, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changes (token, type, key, payload) VALUES (?, ?, ?, ?)
	`, token, changeType, key, string(payload))
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}

func marshalSnapshot(snap *daylog.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
