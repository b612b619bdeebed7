package storage

import (
	"context"
	"errors"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
)

var (
	// ErrDuplicate is returned when an event ID or stream position is already taken.
	ErrDuplicate = errors.New("event already exists")

	// ErrNotFound is returned when an aggregate does not exist or has been deleted.
	ErrNotFound = errors.New("not found")

	// ErrCheckpointConflict is returned by Save when the stored checkpoint is
	// not the one the caller computed from. The caller should reload and retry.
	ErrCheckpointConflict = errors.New("checkpoint conflict")
)

// EventSource is the read side of the event log.
type EventSource interface {
	// EventsFor returns events of stream id with after < position <= upto,
	// ascending by position, at most limit of them.
	EventsFor(ctx context.Context, id identity.Identity, after, upto int64, limit int) ([]*v1.Event, error)

	// ResolveIdentity confirms ref names a live aggregate and returns its
	// canonical identity. Returns ErrNotFound for unknown or deleted aggregates.
	ResolveIdentity(ctx context.Context, ref identity.Identity) (identity.Identity, error)
}

// EventAppender is the write side of the event log.
type EventAppender interface {
	// Append stores evt at the end of its stream. A zero Position is assigned
	// the next one; a non-zero Position must be exactly the next one.
	// ID, Position and RecordedAt are populated on success.
	Append(ctx context.Context, evt *v1.Event) error
}

// SnapshotStore persists the latest versioned snapshot of each lane.
//
// Checkpoint invariant: the stored checkpoint of a lane never decreases.
// Save is a compare-and-set on the checkpoint, so of two writers that
// computed from the same prior checkpoint exactly one succeeds.
type SnapshotStore interface {
	// LoadLatest returns the latest record of lane, or nil when none exists.
	LoadLatest(ctx context.Context, lane identity.Lane) (*snapshot.Record, error)

	// Save stores rec if the lane's stored checkpoint equals expectedPrior
	// (0 meaning "no record yet") and rec.Checkpoint > expectedPrior.
	// Otherwise returns ErrCheckpointConflict.
	Save(ctx context.Context, rec *snapshot.Record, expectedPrior int64) error
}

// SnapshotHistoryReader is implemented by stores that retain older checkpoints.
type SnapshotHistoryReader interface {
	// LoadAtOrBefore returns the newest retained record of lane with
	// checkpoint <= position, or nil when none qualifies.
	LoadAtOrBefore(ctx context.Context, lane identity.Lane, position int64) (*snapshot.Record, error)
}

// LaneLister enumerates every lane with a stored record.
type LaneLister interface {
	ListLanes(ctx context.Context) ([]identity.Lane, error)
}

// OwnerReader returns the latest records of every lane owned by owner,
// the direct lane first when present.
type OwnerReader interface {
	LoadByOwner(ctx context.Context, owner identity.Identity) ([]*snapshot.Record, error)
}
