package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/aevon-lab/asof/internal/engine"
	"golang.org/x/sync/errgroup"
)

const defaultViewConcurrency = 8

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid snapshot query")

	// ErrStoredReadsUnsupported is returned when the snapshot store cannot
	// list the lanes of an owner.
	ErrStoredReadsUnsupported = errors.New("snapshot store does not support owner reads")
)

// Service implements the projection/query layer: computed views through the
// router and read-only access to stored records.
type Service struct {
	router      *Router
	store       storage.SnapshotStore
	concurrency int
}

// NewService creates a new projection service. concurrency bounds the lanes
// of a View computed at once; values below 1 use the default.
func NewService(router *Router, store storage.SnapshotStore, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = defaultViewConcurrency
	}
	return &Service{router: router, store: store, concurrency: concurrency}
}

// View computes owner's direct lane and one join lane per joined aggregate
// at Latest, concurrently, and merges their metrics. Lanes are returned
// direct first, then in the order of joined.
func (s *Service) View(ctx context.Context, owner identity.Identity, joined ...identity.Identity) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	lanes := make([]LaneView, len(joined)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	g.Go(func() error {
		snap, err := s.router.ComputeAsOf(gctx, owner, engine.Latest)
		if err != nil {
			return fmt.Errorf("compute %s: %w", owner, err)
		}
		lanes[0] = laneView(snap)
		return nil
	})
	for i, ref := range joined {
		g.Go(func() error {
			snap, err := s.router.ComputeJoinAsOf(gctx, owner, ref, engine.Latest)
			if err != nil {
				return fmt.Errorf("compute join %s<-%s: %w", owner, ref, err)
			}
			lanes[i+1] = laneView(snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]Metric)
	for _, lane := range lanes {
		mergeMetrics(merged, lane.Metrics)
	}
	return &View{Owner: owner, Metrics: merged, Lanes: lanes}, nil
}

func laneView(s snapshot.Snapshot[State]) LaneView {
	lane := s.Lane()
	return LaneView{
		Source:      lane.Source,
		Join:        lane.IsJoin(),
		Checkpoint:  s.Checkpoint(),
		Reverted:    s.Reverted(),
		LastEventAt: s.LastEventAt(),
		Metrics:     s.State().Metrics,
	}
}

// StoredLanes returns every stored record of owner without computing
// anything. An owner with no stored lanes yields storage.ErrNotFound.
func (s *Service) StoredLanes(ctx context.Context, owner identity.Identity) (*OwnerSnapshots, error) {
	if err := owner.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	reader, ok := s.store.(storage.OwnerReader)
	if !ok {
		return nil, ErrStoredReadsUnsupported
	}

	recs, err := reader.LoadByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load snapshots of %s: %w", owner, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("snapshots of %s: %w", owner, storage.ErrNotFound)
	}

	out := &OwnerSnapshots{
		Owner:     owner,
		Lanes:     make([]LaneRecord, 0, len(recs)),
		DependsOn: []identity.Identity{},
	}
	for _, rec := range recs {
		out.Lanes = append(out.Lanes, laneRecord(rec))
		if rec.Lane.IsJoin() {
			out.DependsOn = append(out.DependsOn, rec.Lane.Source)
		}
	}
	return out, nil
}

// StoredLane returns the stored record of one lane, or storage.ErrNotFound.
func (s *Service) StoredLane(ctx context.Context, lane identity.Lane) (*LaneRecord, error) {
	if err := lane.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	rec, err := s.store.LoadLatest(ctx, lane)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("snapshot %s: %w", lane, storage.ErrNotFound)
	}
	out := laneRecord(rec)
	return &out, nil
}

func laneRecord(rec *snapshot.Record) LaneRecord {
	reverted := rec.Reverted
	if reverted == nil {
		reverted = []int64{}
	}
	return LaneRecord{
		RecordID:    rec.ID,
		Source:      rec.Lane.Source,
		Join:        rec.Lane.IsJoin(),
		Checkpoint:  rec.Checkpoint,
		LastEventAt: rec.LastEventAt,
		Reverted:    reverted,
		ComputedAt:  rec.ComputedAt,
		State:       rec.State,
	}
}
