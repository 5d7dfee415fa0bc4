// Package proximity merges several live geohash-window streams into one
// deduplicated, distance-filtered and sorted result set.
//
// A Reconciler holds the parameters of one logical query (center, radius,
// sort policy, cap, predicate). Each call to Start opens one Stream per
// QueryWindow and returns a Subscription that owns the id→record map for the
// lifetime of those streams. Changing the center or radius means stopping the
// Subscription and starting a new one with freshly computed windows; entries
// are never migrated between subscriptions.
package proximity

import (
	"context"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
)

// EventKind tells a RecordEvent apart.
type EventKind int

const (
	// Upserted carries a record that was added to or changed inside a window.
	Upserted EventKind = iota + 1
	// Removed carries the id of a record that left a window or was deleted.
	Removed
	// Synced marks the end of a window's initial snapshot.
	Synced
)

func (k EventKind) String() string {
	switch k {
	case Upserted:
		return "upserted"
	case Removed:
		return "removed"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// RecordEvent is one change delivered by a window stream.
type RecordEvent struct {
	Kind   EventKind
	Record entities.TrackedRecord
	ID     string
}

// UpsertedEvent wraps a record that was added or changed.
func UpsertedEvent(rec entities.TrackedRecord) RecordEvent {
	return RecordEvent{Kind: Upserted, Record: rec, ID: rec.ID}
}

// RemovedEvent names a record that left the window.
func RemovedEvent(id string) RecordEvent {
	return RecordEvent{Kind: Removed, ID: id}
}

// SyncedEvent reports that the window's initial snapshot has been delivered.
func SyncedEvent() RecordEvent {
	return RecordEvent{Kind: Synced}
}

// Stream is a live feed of changes for one QueryWindow.
//
// Next blocks until the next event is available. It returns io.EOF when the
// stream ended normally; any other error terminates the stream. Stop releases
// the stream and must unblock a pending Next. Stop may be called more than
// once.
type Stream interface {
	Next() (RecordEvent, error)
	Stop()
}

// StreamFactory opens the live stream for a single window. The context is
// cancelled when the owning Subscription stops.
type StreamFactory func(ctx context.Context, w geo.QueryWindow) (Stream, error)
