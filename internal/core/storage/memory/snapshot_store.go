package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
)

// SnapshotStore keeps the latest record per lane plus up to keepHistory
// older ones. Safe for concurrent use.
type SnapshotStore struct {
	mu          sync.RWMutex
	latest      map[identity.Lane]*snapshot.Record
	history     map[identity.Lane][]*snapshot.Record // ascending by checkpoint
	keepHistory int
}

func NewSnapshotStore(keepHistory int) *SnapshotStore {
	if keepHistory < 0 {
		keepHistory = 0
	}
	return &SnapshotStore{
		latest:      make(map[identity.Lane]*snapshot.Record),
		history:     make(map[identity.Lane][]*snapshot.Record),
		keepHistory: keepHistory,
	}
}

func (s *SnapshotStore) LoadLatest(_ context.Context, lane identity.Lane) (*snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[lane].Clone(), nil
}

func (s *SnapshotStore) Save(_ context.Context, rec *snapshot.Record, expectedPrior int64) error {
	if rec == nil {
		return fmt.Errorf("save snapshot: nil record")
	}
	if rec.Checkpoint <= expectedPrior {
		return fmt.Errorf("%w: %s checkpoint %d does not advance %d",
			storage.ErrCheckpointConflict, rec.Lane, rec.Checkpoint, expectedPrior)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur := s.latest[rec.Lane]; cur != nil {
		stored = cur.Checkpoint
	}
	if stored != expectedPrior {
		slog.Warn("[Memory] Rejecting snapshot write from stale checkpoint",
			"lane", rec.Lane.String(),
			"expected_prior", expectedPrior,
			"stored", stored,
			"checkpoint", rec.Checkpoint)
		return fmt.Errorf("%w: %s stored checkpoint is %d, expected %d",
			storage.ErrCheckpointConflict, rec.Lane, stored, expectedPrior)
	}

	s.latest[rec.Lane] = rec.Clone()
	if s.keepHistory > 0 {
		hist := append(s.history[rec.Lane], rec.Clone())
		if len(hist) > s.keepHistory {
			hist = hist[len(hist)-s.keepHistory:]
		}
		s.history[rec.Lane] = hist
	}
	return nil
}

func (s *SnapshotStore) LoadAtOrBefore(_ context.Context, lane identity.Lane, position int64) (*snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.history[lane]
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Checkpoint <= position {
			return hist[i].Clone(), nil
		}
	}
	return nil, nil
}

func (s *SnapshotStore) ListLanes(_ context.Context) ([]identity.Lane, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lanes := make([]identity.Lane, 0, len(s.latest))
	for lane := range s.latest {
		lanes = append(lanes, lane)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Key() < lanes[j].Key() })
	return lanes, nil
}

func (s *SnapshotStore) LoadByOwner(_ context.Context, owner identity.Identity) ([]*snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*snapshot.Record
	for lane, rec := range s.latest {
		if lane.Owner == owner {
			out = append(out, rec.Clone())
		}
	}
	sortOwnerRecords(out)
	return out, nil
}

// sortOwnerRecords puts the direct lane first, then join lanes by source.
func sortOwnerRecords(recs []*snapshot.Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Lane, recs[j].Lane
		if a.IsJoin() != b.IsJoin() {
			return !a.IsJoin()
		}
		return a.Source.String() < b.Source.String()
	})
}
