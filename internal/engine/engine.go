package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Latest is the bound meaning "as of now".
const Latest int64 = math.MaxInt64

// Engine computes snapshots of type S by replaying event streams through a
// Reducer, resuming from the latest stored checkpoint of each lane.
//
// Computations are independent and may run concurrently. At most one
// computation advances a lane's stored checkpoint from a given prior value;
// the others fail with ErrCheckpointConflict and may simply be retried.
type Engine[S any] struct {
	events  storage.EventSource
	store   storage.SnapshotStore
	reducer Reducer[S]
	opts    options
	locks   *laneLocks
	log     *slog.Logger
	tracer  trace.Tracer
	metrics instruments
}

// New creates an Engine over the given event source and snapshot store.
func New[S any](
	events storage.EventSource,
	store storage.SnapshotStore,
	reducer Reducer[S],
	opts ...Option,
) (*Engine[S], error) {
	if events == nil {
		return nil, errors.New("engine: event source is required")
	}
	if store == nil {
		return nil, errors.New("engine: snapshot store is required")
	}
	if reducer == nil {
		return nil, errors.New("engine: reducer is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.resolve()

	metrics, err := newInstruments(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine[S]{
		events:  events,
		store:   store,
		reducer: reducer,
		opts:    o,
		log:     o.logger,
		tracer:  o.tracerProvider.Tracer(instrumentationName),
		metrics: metrics,
	}
	if o.laneLocking {
		e.locks = newLaneLocks(o.lockStripes)
	}
	return e, nil
}

// ComputeAsOf returns the snapshot of id after replaying its stream up to
// and including position bound. An aggregate without events yields an
// empty snapshot.
//
// When bound is at or after the stored checkpoint, replay resumes from that
// checkpoint and an advanced checkpoint is saved. When bound precedes it,
// the result is computed from the newest retained record at or before bound
// (or from the origin) and nothing is saved.
func (e *Engine[S]) ComputeAsOf(ctx context.Context, id identity.Identity, bound int64) (snapshot.Snapshot[S], error) {
	if err := id.Validate(); err != nil {
		return snapshot.Snapshot[S]{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return e.compute(ctx, identity.DirectLane(id), bound)
}

// ComputeJoinAsOf returns owner's view of the joined aggregate: the joined
// stream replayed up to bound. The lane's checkpoint tracks the joined
// stream only. A joined aggregate that does not resolve fails with
// ErrUnresolvedJoinTarget.
func (e *Engine[S]) ComputeJoinAsOf(
	ctx context.Context,
	owner identity.Identity,
	joinedRef identity.Identity,
	bound int64,
) (snapshot.Snapshot[S], error) {
	requested := identity.JoinLane(owner, joinedRef)
	if err := requested.Validate(); err != nil {
		return snapshot.Snapshot[S]{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if owner == joinedRef {
		return snapshot.Snapshot[S]{}, fmt.Errorf("%w: join target %s is the owner itself", ErrInvalidRequest, owner)
	}

	joined, err := e.events.ResolveIdentity(ctx, joinedRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return snapshot.Snapshot[S]{}, &Error{
				Kind:    KindUnresolvedJoinTarget,
				Lane:    requested,
				Message: fmt.Sprintf("%s does not resolve", joinedRef),
				Cause:   err,
			}
		}
		return snapshot.Snapshot[S]{}, fmt.Errorf("resolve join target %s: %w", joinedRef, err)
	}

	return e.compute(ctx, identity.JoinLane(owner, joined), bound)
}

// ComputeJoins computes several join lanes of owner concurrently. Results
// are in the order of joined. The first failure cancels the rest.
func (e *Engine[S]) ComputeJoins(
	ctx context.Context,
	owner identity.Identity,
	joined []identity.Identity,
	bound int64,
) ([]snapshot.Snapshot[S], error) {
	out := make([]snapshot.Snapshot[S], len(joined))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.joinConcurrency)
	for i, ref := range joined {
		g.Go(func() error {
			s, err := e.ComputeJoinAsOf(gctx, owner, ref, bound)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeAsOfTime returns the snapshot of id covering the longest prefix of
// its stream whose events all occurred at or before at. The stored
// checkpoint is reused when every event it covers qualifies. Nothing is saved.
func (e *Engine[S]) ComputeAsOfTime(ctx context.Context, id identity.Identity, at time.Time) (snapshot.Snapshot[S], error) {
	if err := id.Validate(); err != nil {
		return snapshot.Snapshot[S]{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	lane := identity.DirectLane(id)

	ctx, span := e.tracer.Start(ctx, "engine.compute_as_of_time", trace.WithAttributes(
		attribute.String("asof.lane", lane.String()),
		attribute.String("asof.at", at.UTC().Format(time.RFC3339Nano)),
	))
	defer span.End()

	base, err := e.loadLatest(ctx, lane)
	if err != nil {
		return snapshot.Snapshot[S]{}, recordSpanError(span, err)
	}
	if base.LastEventAt().After(at) {
		base = snapshot.New(lane, e.reducer.Empty())
	}

	result, err := e.replay(ctx, base, Latest, func(evt *v1.Event) bool {
		return evt.OccurredAt.After(at)
	})
	if err != nil {
		return snapshot.Snapshot[S]{}, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.Int64("asof.checkpoint", result.Checkpoint()))
	return result, nil
}

// Advance brings a lane to Latest and returns its checkpoint.
func (e *Engine[S]) Advance(ctx context.Context, lane identity.Lane) (int64, error) {
	var (
		s   snapshot.Snapshot[S]
		err error
	)
	if lane.IsJoin() {
		s, err = e.ComputeJoinAsOf(ctx, lane.Owner, lane.Source, Latest)
	} else {
		s, err = e.ComputeAsOf(ctx, lane.Owner, Latest)
	}
	if err != nil {
		return 0, err
	}
	return s.Checkpoint(), nil
}

func (e *Engine[S]) compute(ctx context.Context, lane identity.Lane, bound int64) (snapshot.Snapshot[S], error) {
	if bound < 0 {
		return snapshot.Snapshot[S]{}, fmt.Errorf("%w: negative bound %d", ErrInvalidRequest, bound)
	}

	ctx, span := e.tracer.Start(ctx, "engine.compute", trace.WithAttributes(
		attribute.String("asof.lane", lane.String()),
		attribute.Bool("asof.join", lane.IsJoin()),
		attribute.Int64("asof.bound", bound),
	))
	defer span.End()

	unlock, err := e.locks.lock(ctx, lane)
	if err != nil {
		return snapshot.Snapshot[S]{}, recordSpanError(span, fmt.Errorf("wait for lane %s: %w", lane, err))
	}
	defer unlock()

	base, err := e.loadLatest(ctx, lane)
	if err != nil {
		return snapshot.Snapshot[S]{}, recordSpanError(span, err)
	}

	if bound < base.Checkpoint() {
		result, err := e.computePast(ctx, lane, bound, base.Checkpoint())
		if err != nil {
			return snapshot.Snapshot[S]{}, recordSpanError(span, err)
		}
		span.SetAttributes(attribute.Int64("asof.checkpoint", result.Checkpoint()))
		return result, nil
	}

	result, err := e.replay(ctx, base, bound, nil)
	if err != nil {
		return snapshot.Snapshot[S]{}, recordSpanError(span, err)
	}

	if e.opts.persist && result.Checkpoint() > base.Checkpoint() {
		if err := e.persist(ctx, result, base.Checkpoint()); err != nil {
			return snapshot.Snapshot[S]{}, recordSpanError(span, err)
		}
	}

	span.SetAttributes(attribute.Int64("asof.checkpoint", result.Checkpoint()))
	return result, nil
}

// computePast serves a bound that precedes the stored checkpoint. The
// stored checkpoint is left untouched.
func (e *Engine[S]) computePast(ctx context.Context, lane identity.Lane, bound, stored int64) (snapshot.Snapshot[S], error) {
	base := snapshot.New(lane, e.reducer.Empty())

	if history, ok := e.store.(storage.SnapshotHistoryReader); ok {
		rec, err := history.LoadAtOrBefore(ctx, lane, bound)
		if err != nil {
			return snapshot.Snapshot[S]{}, fmt.Errorf("load snapshot history %s at %d: %w", lane, bound, err)
		}
		if rec != nil {
			if base, err = decodeRecord[S](lane, rec); err != nil {
				return snapshot.Snapshot[S]{}, fmt.Errorf("load snapshot history %s at %d: %w", lane, bound, err)
			}
			if base.Checkpoint() > bound {
				return snapshot.Snapshot[S]{}, fmt.Errorf("load snapshot history %s at %d: store returned checkpoint %d", lane, bound, base.Checkpoint())
			}
		}
	}

	e.log.Debug("[Engine] Bound precedes stored checkpoint, replaying without persisting",
		"lane", lane.String(),
		"bound", bound,
		"stored_checkpoint", stored,
		"base_checkpoint", base.Checkpoint(),
	)
	return e.replay(ctx, base, bound, nil)
}

func (e *Engine[S]) loadLatest(ctx context.Context, lane identity.Lane) (snapshot.Snapshot[S], error) {
	rec, err := e.store.LoadLatest(ctx, lane)
	if err != nil {
		return snapshot.Snapshot[S]{}, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	if rec == nil {
		return snapshot.New(lane, e.reducer.Empty()), nil
	}
	s, err := decodeRecord[S](lane, rec)
	if err != nil {
		return snapshot.Snapshot[S]{}, fmt.Errorf("load snapshot %s: %w", lane, err)
	}
	return s, nil
}

// decodeRecord decodes rec, refusing a record that belongs to another lane.
func decodeRecord[S any](lane identity.Lane, rec *snapshot.Record) (snapshot.Snapshot[S], error) {
	if rec.Lane != lane {
		return snapshot.Snapshot[S]{}, fmt.Errorf("store returned record of %s", rec.Lane)
	}
	return snapshot.Decode[S](rec)
}

func (e *Engine[S]) persist(ctx context.Context, result snapshot.Snapshot[S], prior int64) error {
	lane := result.Lane()
	attrs := metric.WithAttributes(attribute.String("asof.source_type", lane.Source.Type))

	rec, err := snapshot.Encode(result, e.opts.nowFn())
	if err != nil {
		return err
	}

	if err := e.store.Save(ctx, rec, prior); err != nil {
		if errors.Is(err, storage.ErrCheckpointConflict) {
			e.metrics.conflicts.Add(ctx, 1, attrs)
			e.log.Warn("[Engine] Checkpoint conflict, lane was advanced concurrently",
				"lane", lane.String(),
				"expected_prior", prior,
				"checkpoint", rec.Checkpoint,
			)
			return &Error{
				Kind:     KindCheckpointConflict,
				Lane:     lane,
				Position: rec.Checkpoint,
				Related:  prior,
				Cause:    err,
			}
		}
		return fmt.Errorf("save snapshot %s at %d: %w", lane, rec.Checkpoint, err)
	}

	e.metrics.snapshotsPersisted.Add(ctx, 1, attrs)
	e.log.Info("[Engine] Persisted checkpoint",
		"lane", lane.String(),
		"checkpoint_advanced", fmt.Sprintf("%d -> %d", prior, rec.Checkpoint),
		"record_id", rec.ID,
	)
	return nil
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
