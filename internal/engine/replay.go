package engine

import (
	"context"
	"errors"
	"fmt"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// replay applies the source events of base's lane with positions in
// (base.Checkpoint(), bound], stopping early at the first event for which
// stop reports true. Every event must be exactly one past the previous one.
// The context is checked before each event; on any failure the partial
// result is discarded.
func (e *Engine[S]) replay(
	ctx context.Context,
	base snapshot.Snapshot[S],
	bound int64,
	stop func(*v1.Event) bool,
) (snapshot.Snapshot[S], error) {
	lane := base.Lane()
	if bound < base.Checkpoint() {
		return snapshot.Snapshot[S]{}, &Error{
			Kind:     KindBackwardReplay,
			Lane:     lane,
			Position: bound,
			Related:  base.Checkpoint(),
			Message:  fmt.Sprintf("bound %d precedes checkpoint %d", bound, base.Checkpoint()),
		}
	}

	var (
		snap    = base
		cursor  = base.Checkpoint()
		applied int64
	)
	defer func() {
		if applied > 0 {
			e.metrics.eventsApplied.Add(ctx, applied,
				metric.WithAttributes(attribute.String("asof.source_type", lane.Source.Type)))
		}
	}()

	for page := 0; cursor < bound; page++ {
		batch, err := e.events.EventsFor(ctx, lane.Source, cursor, bound, e.opts.pageSize)
		if err != nil {
			return snapshot.Snapshot[S]{}, fmt.Errorf("fetch events of %s after %d: %w", lane.Source, cursor, err)
		}
		if len(batch) == 0 {
			break
		}
		if page >= e.opts.maxPages {
			return snapshot.Snapshot[S]{}, fmt.Errorf(
				"replay of %s exceeded maximum pages (%d pages of %d events) at position %d",
				lane, e.opts.maxPages, e.opts.pageSize, cursor)
		}

		for _, evt := range batch {
			if err := ctx.Err(); err != nil {
				return snapshot.Snapshot[S]{}, err
			}
			if err := checkOrder(lane, cursor, bound, evt); err != nil {
				return snapshot.Snapshot[S]{}, err
			}
			if stop != nil && stop(evt) {
				return snap, nil
			}

			snap, err = e.step(ctx, snap, evt)
			if err != nil {
				return snapshot.Snapshot[S]{}, err
			}
			cursor = evt.Position
			applied++
		}

		e.log.Debug("[Engine] Replayed page",
			"lane", lane.String(),
			"page", page+1,
			"events", len(batch),
			"cursor", cursor,
		)

		if len(batch) < e.opts.pageSize {
			break
		}
	}

	return snap, nil
}

// checkOrder enforces that evt is the next event of lane's source stream.
func checkOrder(lane identity.Lane, cursor, bound int64, evt *v1.Event) error {
	violation := func(pos int64, format string, args ...interface{}) error {
		return &Error{
			Kind:     KindOrderingViolation,
			Lane:     lane,
			Position: pos,
			Related:  cursor + 1,
			Message:  fmt.Sprintf(format, args...),
		}
	}

	if evt == nil {
		return violation(cursor+1, "source returned a nil event")
	}
	if evt.Identity() != lane.Source {
		return violation(evt.Position, "event %s belongs to %s", evt.ID, evt.Identity())
	}
	switch {
	case evt.Position <= cursor:
		return violation(evt.Position, "duplicate or out-of-order position, expected %d", cursor+1)
	case evt.Position > cursor+1:
		return violation(evt.Position, "gap in stream, expected %d", cursor+1)
	case evt.Position > bound:
		return violation(evt.Position, "source returned event beyond bound %d", bound)
	}
	return nil
}

func (e *Engine[S]) step(ctx context.Context, snap snapshot.Snapshot[S], evt *v1.Event) (snapshot.Snapshot[S], error) {
	lane := snap.Lane()

	if !evt.Revert {
		state, err := e.reducer.Apply(snap.State(), evt)
		if err != nil {
			return snap, fmt.Errorf("apply %s at position %d of %s: %w", evt.Type, evt.Position, lane, err)
		}
		return snap.WithApplied(evt, state), nil
	}

	target, err := e.revertTarget(ctx, snap, evt)
	if err != nil {
		return snap, err
	}

	state, err := e.reducer.Revert(snap.State(), target, evt)
	if errors.Is(err, ErrRevertUnsupported) {
		state, err = e.rebuild(ctx, snap, evt, target)
	}
	if err != nil {
		return snap, fmt.Errorf("revert position %d at position %d of %s: %w", target.Position, evt.Position, lane, err)
	}
	return snap.WithReverted(evt, target.Position, state), nil
}

// revertTarget fetches and checks the event a revert undoes. The target
// must precede the revert, exist in the same stream, not be reverted
// already and not be a revert itself.
func (e *Engine[S]) revertTarget(ctx context.Context, snap snapshot.Snapshot[S], revert *v1.Event) (*v1.Event, error) {
	lane := snap.Lane()
	target := revert.RevertsPosition

	malformed := func(msg string) error {
		return &Error{
			Kind:     KindMalformedRevert,
			Lane:     lane,
			Position: revert.Position,
			Related:  target,
			Message:  msg,
		}
	}

	if target <= 0 || target >= revert.Position {
		return nil, malformed(fmt.Sprintf("target %d must precede the revert", target))
	}
	if snap.IsReverted(target) {
		return nil, malformed(fmt.Sprintf("target %d is already reverted", target))
	}

	found, err := e.events.EventsFor(ctx, lane.Source, target-1, target, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch revert target %d of %s: %w", target, lane.Source, err)
	}
	if len(found) == 0 || found[0] == nil || found[0].Position != target || found[0].Identity() != lane.Source {
		return nil, malformed(fmt.Sprintf("target %d not found in %s", target, lane.Source))
	}
	if found[0].Revert {
		return nil, malformed(fmt.Sprintf("target %d is itself a revert", target))
	}
	return found[0], nil
}

// rebuild recomputes the state just before revert from the origin, leaving
// out target, every position reverted earlier, and all revert events.
func (e *Engine[S]) rebuild(ctx context.Context, snap snapshot.Snapshot[S], revert, target *v1.Event) (S, error) {
	lane := snap.Lane()
	upto := revert.Position - 1
	state := e.reducer.Empty()
	cursor := int64(0)

	for page := 0; cursor < upto; page++ {
		batch, err := e.events.EventsFor(ctx, lane.Source, cursor, upto, e.opts.pageSize)
		if err != nil {
			return state, fmt.Errorf("rebuild fetch events of %s after %d: %w", lane.Source, cursor, err)
		}
		if len(batch) == 0 {
			break
		}
		if page >= e.opts.maxPages {
			return state, fmt.Errorf("rebuild of %s exceeded maximum pages (%d)", lane, e.opts.maxPages)
		}

		for _, evt := range batch {
			if err := ctx.Err(); err != nil {
				return state, err
			}
			if err := checkOrder(lane, cursor, upto, evt); err != nil {
				return state, err
			}
			cursor = evt.Position
			if evt.Revert || evt.Position == target.Position || snap.IsReverted(evt.Position) {
				continue
			}
			if state, err = e.reducer.Apply(state, evt); err != nil {
				return state, fmt.Errorf("rebuild apply %s at position %d of %s: %w", evt.Type, evt.Position, lane, err)
			}
		}

		if len(batch) < e.opts.pageSize {
			break
		}
	}

	if cursor != upto {
		return state, &Error{
			Kind:     KindOrderingViolation,
			Lane:     lane,
			Position: cursor + 1,
			Related:  upto,
			Message:  fmt.Sprintf("stream ended at %d while rebuilding up to %d", cursor, upto),
		}
	}

	e.metrics.rebuilds.Add(ctx, 1, metric.WithAttributes(attribute.String("asof.source_type", lane.Source.Type)))
	e.log.Info("[Engine] Rebuilt state to apply revert",
		"lane", lane.String(),
		"revert_position", revert.Position,
		"target_position", target.Position,
		"events_replayed", upto,
	)
	return state, nil
}
