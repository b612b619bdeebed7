package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/aevon-lab/asof/internal/engine"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = time.Minute
	defaultWorkerCount = 4
	finalPassTimeout   = 30 * time.Second
)

// Advancer brings a lane's stored checkpoint to the end of its source stream.
type Advancer interface {
	Advance(ctx context.Context, lane identity.Lane) (int64, error)
}

// Options controls how often and how widely the scheduler refreshes.
type Options struct {
	Interval    time.Duration
	WorkerCount int
	// Lanes are refreshed on every pass in addition to the stored ones,
	// so they are computed even before their first record exists.
	Lanes []identity.Lane
}

func (o Options) normalized() Options {
	n := o
	if n.Interval <= 0 {
		n.Interval = defaultInterval
	}
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	return n
}

// PassResult summarizes one refresh pass.
type PassResult struct {
	Lanes      int
	Refreshed  int
	Conflicts  int
	Unresolved int
	Failed     int
}

// Scheduler advances lanes to Latest on a periodic interval. Each pass is
// independent: a lane that fails or loses a checkpoint race is retried on
// the next tick.
type Scheduler struct {
	advancer Advancer
	lister   storage.LaneLister
	opts     Options
}

// NewScheduler creates a scheduler. lister may be nil, in which case only
// the configured lanes are refreshed.
func NewScheduler(advancer Advancer, lister storage.LaneLister, opts Options) *Scheduler {
	return &Scheduler{
		advancer: advancer,
		lister:   lister,
		opts:     opts.normalized(),
	}
}

// Start runs refresh passes until ctx is cancelled, then runs a final pass
// bounded by a fresh timeout.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting checkpoint refresh scheduler",
		"interval", s.opts.Interval,
		"workers", s.opts.WorkerCount,
		"configured_lanes", len(s.opts.Lanes),
	)

	// Catch up with anything appended while the process was down.
	s.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), finalPassTimeout)
			defer cancel()

			slog.Info("[Scheduler] Running final pass before shutdown...")
			s.runPass(shutdownCtx)
			slog.Info("[Scheduler] Final pass complete")
			return nil
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	result, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("[Scheduler] Refresh pass failed", "error", err)
		return
	}
	if result.Failed > 0 || result.Conflicts > 0 || result.Unresolved > 0 {
		slog.Warn("[Scheduler] Refresh pass finished with skipped lanes",
			"lanes", result.Lanes,
			"refreshed", result.Refreshed,
			"conflicts", result.Conflicts,
			"unresolved", result.Unresolved,
			"failed", result.Failed,
		)
		return
	}
	slog.Debug("[Scheduler] Refresh pass complete",
		"lanes", result.Lanes,
		"refreshed", result.Refreshed,
	)
}

// RunOnce advances every stored and configured lane once. Per-lane failures
// are counted, not returned; only failing to enumerate the lanes is an error.
func (s *Scheduler) RunOnce(ctx context.Context) (PassResult, error) {
	lanes, err := s.lanes(ctx)
	if err != nil {
		return PassResult{}, err
	}

	var refreshed, conflicts, unresolved, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.WorkerCount)
	for _, lane := range lanes {
		g.Go(func() error {
			if gctx.Err() != nil {
				failed.Add(1)
				return nil
			}

			checkpoint, err := s.advancer.Advance(gctx, lane)
			switch {
			case err == nil:
				refreshed.Add(1)
				slog.Debug("[Scheduler] Lane refreshed", "lane", lane.String(), "checkpoint", checkpoint)
			case errors.Is(err, engine.ErrCheckpointConflict):
				conflicts.Add(1)
				slog.Warn("[Scheduler] Lane advanced concurrently, retrying next tick", "lane", lane.String())
			case errors.Is(err, engine.ErrUnresolvedJoinTarget):
				unresolved.Add(1)
				slog.Warn("[Scheduler] Join target does not resolve", "lane", lane.String())
			default:
				failed.Add(1)
				slog.Error("[Scheduler] Lane refresh failed", "lane", lane.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return PassResult{
		Lanes:      len(lanes),
		Refreshed:  int(refreshed.Load()),
		Conflicts:  int(conflicts.Load()),
		Unresolved: int(unresolved.Load()),
		Failed:     int(failed.Load()),
	}, nil
}

// lanes returns the configured lanes followed by the stored ones, without
// duplicates.
func (s *Scheduler) lanes(ctx context.Context) ([]identity.Lane, error) {
	seen := make(map[identity.Lane]struct{}, len(s.opts.Lanes))
	out := make([]identity.Lane, 0, len(s.opts.Lanes))
	add := func(lane identity.Lane) {
		if _, ok := seen[lane]; ok {
			return
		}
		seen[lane] = struct{}{}
		out = append(out, lane)
	}

	for _, lane := range s.opts.Lanes {
		add(lane)
	}
	if s.lister != nil {
		stored, err := s.lister.ListLanes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list lanes: %w", err)
		}
		for _, lane := range stored {
			add(lane)
		}
	}
	return out, nil
}
