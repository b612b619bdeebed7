package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coreagg "github.com/aevon-lab/asof/internal/core/aggregation"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/aevon-lab/asof/internal/engine"
)

// laneKind selects the rules of a lane: the owner's type, the source's type
// and whether the lane is a join.
type laneKind struct {
	ownerType  string
	sourceType string
	join       bool
}

func kindOf(lane identity.Lane) laneKind {
	return laneKind{ownerType: lane.Owner.Type, sourceType: lane.Source.Type, join: lane.IsJoin()}
}

// Router owns one engine per lane kind, each reducing with the rules that
// match the kind. All engines share the event source and snapshot store.
type Router struct {
	events storage.EventSource
	store  storage.SnapshotStore
	rules  []coreagg.AggregationRule
	opts   []engine.Option

	mu      sync.Mutex
	engines map[laneKind]*engine.Engine[State]
}

// NewRouter creates a router. Engines are built on first use with opts.
func NewRouter(
	events storage.EventSource,
	store storage.SnapshotStore,
	rules []coreagg.AggregationRule,
	opts ...engine.Option,
) *Router {
	return &Router{
		events:  events,
		store:   store,
		rules:   append([]coreagg.AggregationRule(nil), rules...),
		opts:    opts,
		engines: make(map[laneKind]*engine.Engine[State]),
	}
}

func (r *Router) engineFor(k laneKind) (*engine.Engine[State], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[k]; ok {
		return e, nil
	}

	var matched []coreagg.AggregationRule
	for _, rule := range r.rules {
		if rule.Matches(k.ownerType, k.sourceType, k.join) {
			matched = append(matched, rule)
		}
	}

	e, err := engine.New[State](r.events, r.store, NewRuleReducer(matched), r.opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine for %s<-%s: %w", k.ownerType, k.sourceType, err)
	}
	r.engines[k] = e

	slog.Debug("[Router] Engine created",
		"owner_type", k.ownerType,
		"source_type", k.sourceType,
		"join", k.join,
		"rules", len(matched),
	)
	return e, nil
}

// ComputeAsOf computes the direct lane of id at bound.
func (r *Router) ComputeAsOf(ctx context.Context, id identity.Identity, bound int64) (snapshot.Snapshot[State], error) {
	e, err := r.engineFor(kindOf(identity.DirectLane(id)))
	if err != nil {
		return snapshot.Snapshot[State]{}, err
	}
	return e.ComputeAsOf(ctx, id, bound)
}

// ComputeJoinAsOf computes owner's join lane over joined at bound.
func (r *Router) ComputeJoinAsOf(ctx context.Context, owner, joined identity.Identity, bound int64) (snapshot.Snapshot[State], error) {
	e, err := r.engineFor(kindOf(identity.JoinLane(owner, joined)))
	if err != nil {
		return snapshot.Snapshot[State]{}, err
	}
	return e.ComputeJoinAsOf(ctx, owner, joined, bound)
}

// ComputeAsOfTime computes the direct lane of id as of wall-clock time at.
func (r *Router) ComputeAsOfTime(ctx context.Context, id identity.Identity, at time.Time) (snapshot.Snapshot[State], error) {
	e, err := r.engineFor(kindOf(identity.DirectLane(id)))
	if err != nil {
		return snapshot.Snapshot[State]{}, err
	}
	return e.ComputeAsOfTime(ctx, id, at)
}

// Advance brings lane to Latest and returns its checkpoint.
func (r *Router) Advance(ctx context.Context, lane identity.Lane) (int64, error) {
	e, err := r.engineFor(kindOf(lane))
	if err != nil {
		return 0, err
	}
	return e.Advance(ctx, lane)
}
