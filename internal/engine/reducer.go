package engine

import (
	"errors"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
)

// ErrRevertUnsupported is returned by Reducer.Revert when the reducer cannot
// undo an event in place. The engine then rebuilds the state from the origin
// without the reverted events.
var ErrRevertUnsupported = errors.New("reducer cannot revert event")

// Reducer folds a stream's events into a state of type S.
//
// Reducers must be deterministic and must not mutate the state they are
// given; return a new value instead. For a join lane the reducer translates
// the joined aggregate's events into the owner's view.
type Reducer[S any] interface {
	// Empty is the state before any event.
	Empty() S

	// Apply folds evt into state.
	Apply(state S, evt *v1.Event) (S, error)

	// Revert undoes the effect target had on state. revert is the event
	// requesting it.
	Revert(state S, target *v1.Event, revert *v1.Event) (S, error)
}

// ReducerFuncs adapts plain functions to Reducer. A nil RevertFn makes every
// revert go through a rebuild.
type ReducerFuncs[S any] struct {
	EmptyFn  func() S
	ApplyFn  func(state S, evt *v1.Event) (S, error)
	RevertFn func(state S, target *v1.Event, revert *v1.Event) (S, error)
}

func (r ReducerFuncs[S]) Empty() S {
	if r.EmptyFn == nil {
		var zero S
		return zero
	}
	return r.EmptyFn()
}

func (r ReducerFuncs[S]) Apply(state S, evt *v1.Event) (S, error) {
	return r.ApplyFn(state, evt)
}

func (r ReducerFuncs[S]) Revert(state S, target *v1.Event, revert *v1.Event) (S, error) {
	if r.RevertFn == nil {
		return state, ErrRevertUnsupported
	}
	return r.RevertFn(state, target, revert)
}
