package engine

import (
	"errors"
	"fmt"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/storage"
)

var (
	// ErrOrderingViolation: the source returned a duplicate, a gap or an
	// event from another stream.
	ErrOrderingViolation = errors.New("event ordering violation")

	// ErrBackwardReplay: the requested bound is before the base checkpoint.
	ErrBackwardReplay = errors.New("backward replay request")

	// ErrUnresolvedJoinTarget: a join names an aggregate that does not exist.
	ErrUnresolvedJoinTarget = errors.New("unresolved join target")

	// ErrCheckpointConflict: another computation advanced the lane first.
	ErrCheckpointConflict = storage.ErrCheckpointConflict

	// ErrMalformedRevert: a revert's target is not a valid earlier event.
	ErrMalformedRevert = errors.New("malformed revert")

	// ErrInvalidRequest: bad identity, lane or bound.
	ErrInvalidRequest = errors.New("invalid computation request")
)

type Kind int

const (
	KindOrderingViolation Kind = iota + 1
	KindBackwardReplay
	KindUnresolvedJoinTarget
	KindCheckpointConflict
	KindMalformedRevert
)

func (k Kind) String() string {
	switch k {
	case KindOrderingViolation:
		return "ordering_violation"
	case KindBackwardReplay:
		return "backward_replay"
	case KindUnresolvedJoinTarget:
		return "unresolved_join_target"
	case KindCheckpointConflict:
		return "checkpoint_conflict"
	case KindMalformedRevert:
		return "malformed_revert"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindOrderingViolation:
		return ErrOrderingViolation
	case KindBackwardReplay:
		return ErrBackwardReplay
	case KindUnresolvedJoinTarget:
		return ErrUnresolvedJoinTarget
	case KindCheckpointConflict:
		return ErrCheckpointConflict
	case KindMalformedRevert:
		return ErrMalformedRevert
	default:
		return nil
	}
}

// Error is a failed computation. errors.Is matches both the Kind's sentinel
// and Cause.
//
// Position is the event position the failure is about (the offending event,
// the revert, or the checkpoint being written). Related carries the second
// position where one exists: the expected position for ordering violations,
// the revert target, the base checkpoint for backward or conflicting writes.
type Error struct {
	Kind     Kind
	Lane     identity.Lane
	Position int64
	Related  int64
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s on %s", e.Kind, e.Lane)
	if e.Position > 0 {
		msg += fmt.Sprintf(" at position %d", e.Position)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil && !errors.Is(e.Kind.sentinel(), e.Cause) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
