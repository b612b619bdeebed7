package snapshot

import (
	"slices"
	"time"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
)

// Snapshot is the state of one lane after replaying its source stream up to
// a checkpoint. Values are immutable: the with* methods return a new
// Snapshot and never touch the receiver, so a returned snapshot can be
// shared freely. State values must not be mutated in place either.
//
// Checkpoint invariant: a snapshot at checkpoint N includes the effects of
// every source event at positions 1..N, and none after.
type Snapshot[S any] struct {
	lane        identity.Lane
	position    int64
	hasPosition bool
	lastEventAt time.Time
	reverted    []int64 // sorted ascending
	state       S
}

// New returns an empty snapshot at the origin of lane.
func New[S any](lane identity.Lane, empty S) Snapshot[S] {
	return Snapshot[S]{lane: lane, state: empty}
}

func (s Snapshot[S]) Lane() identity.Lane { return s.lane }

// Owner is the aggregate whose view this snapshot is.
func (s Snapshot[S]) Owner() identity.Identity { return s.lane.Owner }

// Source is the aggregate whose events were replayed.
func (s Snapshot[S]) Source() identity.Identity { return s.lane.Source }

// LastEventPosition reports the position of the last applied event, and false
// when no event has been applied.
func (s Snapshot[S]) LastEventPosition() (int64, bool) {
	return s.position, s.hasPosition
}

// Checkpoint is LastEventPosition with 0 standing for "origin".
func (s Snapshot[S]) Checkpoint() int64 {
	return s.position
}

// LastEventAt is the latest OccurredAt among applied events.
func (s Snapshot[S]) LastEventAt() time.Time { return s.lastEventAt }

func (s Snapshot[S]) State() S { return s.state }

// Reverted returns the positions whose effect has been undone.
func (s Snapshot[S]) Reverted() []int64 {
	return slices.Clone(s.reverted)
}

func (s Snapshot[S]) IsReverted(position int64) bool {
	_, found := slices.BinarySearch(s.reverted, position)
	return found
}

// WithApplied advances the checkpoint to evt and replaces the state.
func (s Snapshot[S]) WithApplied(evt *v1.Event, state S) Snapshot[S] {
	next := s
	next.position = evt.Position
	next.hasPosition = true
	if evt.OccurredAt.After(next.lastEventAt) {
		next.lastEventAt = evt.OccurredAt
	}
	next.state = state
	return next
}

// WithReverted advances the checkpoint to the revert event and records
// target as reverted.
func (s Snapshot[S]) WithReverted(revert *v1.Event, target int64, state S) Snapshot[S] {
	next := s.WithApplied(revert, state)
	idx, found := slices.BinarySearch(s.reverted, target)
	if !found {
		next.reverted = slices.Insert(slices.Clone(s.reverted), idx, target)
	}
	return next
}
