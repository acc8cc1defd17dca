// Package daylog models the append-only event journal behind each calendar
// day's meal assignments.
//
// The log is an additive journal: events are never edited or removed, and
// corrections are expressed as new events. The materialized view for a day is
// produced by replaying the log ordered by event timestamp, so concurrent
// appends from different sources converge to the same view regardless of the
// order in which they landed in the log.
package daylog

import "sort"

// Op is a day event operation.
type Op string

const (
	// OpAdd assigns a recipe to the day. A later add for the same recipe
	// overwrites the earlier entry (last write wins).
	OpAdd Op = "add"
	// OpDel removes a recipe's assignment from the day.
	OpDel Op = "del"
)

// Snapshot is the denormalized recipe summary carried on an event so a day
// view can render without fetching the full recipe.
type Snapshot struct {
	Title     string `json:"title"`
	ImageURL  string `json:"image_url"`
	TotalTime int    `json:"total_time"`
}

// Event is one immutable entry in a day's journal.
type Event struct {
	ID                string    `json:"id"`
	ISODate           string    `json:"isoDate"`
	Op                Op        `json:"op"`
	RecipeUUID        string    `json:"recipeUuid"`
	OccurredAtEpochMs int64     `json:"occurredAtEpochMs"`
	Snapshot          *Snapshot `json:"snapshot,omitempty"`
}

// Log is the journal for a single calendar date. Events grow monotonically
// until Compact rewrites the log to a minimal equivalent set.
type Log struct {
	ISODate                string  `json:"isoDate"`
	Events                 []Event `json:"events"`
	LastIndexedChangeToken string  `json:"lastIndexedChangeToken,omitempty"`
}

// MealEntry is one surviving assignment in a day's materialized view.
type MealEntry struct {
	RecipeUUID        string    `json:"recipeUuid"`
	OccurredAtEpochMs int64     `json:"occurredAtEpochMs"`
	Snapshot          *Snapshot `json:"snapshot,omitempty"`
}

// Merge appends events onto log, creating the log if it is nil. The stored
// event order is not semantically meaningful; Rebuild orders by timestamp.
func Merge(log *Log, isoDate string, events []Event) *Log {
	if log == nil {
		log = &Log{ISODate: isoDate}
	}
	merged := &Log{
		ISODate:                log.ISODate,
		Events:                 make([]Event, 0, len(log.Events)+len(events)),
		LastIndexedChangeToken: log.LastIndexedChangeToken,
	}
	merged.Events = append(merged.Events, log.Events...)
	merged.Events = append(merged.Events, events...)
	return merged
}

// Rebuild replays events into the day's materialized view.
//
// Events are sorted by OccurredAtEpochMs ascending before applying. The
// array order of the log is never trusted; wall-clock order is the truth.
// Replay runs add/del as a state machine keyed by recipe UUID, then returns
// the surviving entries re-sorted by their original timestamps. Replaying the
// same events twice, or the same events shuffled, yields the same view.
func Rebuild(events []Event) []MealEntry {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAtEpochMs < sorted[j].OccurredAtEpochMs
	})

	entries := make(map[string]MealEntry)
	for _, ev := range sorted {
		switch ev.Op {
		case OpAdd:
			entries[ev.RecipeUUID] = MealEntry{
				RecipeUUID:        ev.RecipeUUID,
				OccurredAtEpochMs: ev.OccurredAtEpochMs,
				Snapshot:          ev.Snapshot,
			}
		case OpDel:
			delete(entries, ev.RecipeUUID)
		}
	}

	out := make([]MealEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAtEpochMs != out[j].OccurredAtEpochMs {
			return out[i].OccurredAtEpochMs < out[j].OccurredAtEpochMs
		}
		return out[i].RecipeUUID < out[j].RecipeUUID
	})
	return out
}

// ToAddEvents re-expresses a materialized view as the minimal equivalent
// event set: one add per surviving entry, timestamps preserved. newID mints
// fresh event identities.
func ToAddEvents(entries []MealEntry, isoDate string, newID func() string) []Event {
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		events = append(events, Event{
			ID:                newID(),
			ISODate:           isoDate,
			Op:                OpAdd,
			RecipeUUID:        entry.RecipeUUID,
			OccurredAtEpochMs: entry.OccurredAtEpochMs,
			Snapshot:          entry.Snapshot,
		})
	}
	return events
}

// Compact rewrites a log to its minimal equivalent form: the add events that
// reproduce the current materialized view. The change token is preserved.
// This is the only operation that drops events, and it only drops events
// whose effect is already superseded.
func Compact(log *Log, newID func() string) *Log {
	if log == nil {
		return nil
	}
	entries := Rebuild(log.Events)
	return &Log{
		ISODate:                log.ISODate,
		Events:                 ToAddEvents(entries, log.ISODate, newID),
		LastIndexedChangeToken: log.LastIndexedChangeToken,
	}
}

// Clone returns a deep copy of the log so adapters can hand out snapshots
// without sharing the backing slice.
func (l *Log) Clone() *Log {
	if l == nil {
		return nil
	}
	out := &Log{
		ISODate:                l.ISODate,
		Events:                 make([]Event, len(l.Events)),
		LastIndexedChangeToken: l.LastIndexedChangeToken,
	}
	copy(out.Events, l.Events)
	return out
}
