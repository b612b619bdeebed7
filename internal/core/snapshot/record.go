package snapshot

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/oklog/ulid/v2"
)

// Record is the persisted form of a versioned snapshot.
// For join lanes Lane carries the dependency edge owner -> source.
type Record struct {
	ID          string          `json:"id"`
	Lane        identity.Lane   `json:"lane"`
	Checkpoint  int64           `json:"checkpoint"`
	LastEventAt time.Time       `json:"last_event_at"`
	Reverted    []int64         `json:"reverted,omitempty"`
	State       json.RawMessage `json:"state"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// NewRecordID returns a ULID for t; records sort by computation time.
func NewRecordID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Encode converts s into a Record stamped with computedAt.
func Encode[S any](s Snapshot[S], computedAt time.Time) (*Record, error) {
	state, err := json.Marshal(s.state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot state for %s: %w", s.lane, err)
	}
	return &Record{
		ID:          NewRecordID(computedAt),
		Lane:        s.lane,
		Checkpoint:  s.position,
		LastEventAt: s.lastEventAt,
		Reverted:    slices.Clone(s.reverted),
		State:       state,
		ComputedAt:  computedAt,
	}, nil
}

// Decode rebuilds the Snapshot a Record was encoded from.
func Decode[S any](rec *Record) (Snapshot[S], error) {
	var state S
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return Snapshot[S]{}, fmt.Errorf("decode snapshot state for %s: %w", rec.Lane, err)
		}
	}
	if rec.Checkpoint < 0 {
		return Snapshot[S]{}, fmt.Errorf("decode snapshot for %s: negative checkpoint %d", rec.Lane, rec.Checkpoint)
	}

	reverted := slices.Clone(rec.Reverted)
	slices.Sort(reverted)
	reverted = slices.Compact(reverted)

	return Snapshot[S]{
		lane:        rec.Lane,
		position:    rec.Checkpoint,
		hasPosition: rec.Checkpoint > 0,
		lastEventAt: rec.LastEventAt,
		reverted:    reverted,
		state:       state,
	}, nil
}

// Clone returns a deep copy, so stores can hand out records without aliasing.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Reverted = slices.Clone(r.Reverted)
	out.State = slices.Clone(r.State)
	return &out
}
