package v1

import (
	"fmt"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/google/uuid"
)

// Event is one immutable entry in an aggregate's log.
// It separates the "Envelope" (stream placement and revert marker) from the "Letter" (Data).
type Event struct {
	// --- Envelope ---

	// ID is globally unique. Assigned on append when empty.
	ID string `json:"id"`

	// AggregateType and AggregateID name the stream this event belongs to.
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`

	// Position is the 1-based sequence number within the stream.
	// Positions are strictly increasing and contiguous per stream.
	Position int64 `json:"position"`

	// Type is the domain-specific event name (e.g. "item.added").
	Type string `json:"type"`

	// Revert marks an event whose effect is to undo the event at RevertsPosition.
	// Targets are checked during replay, not on append.
	Revert          bool  `json:"revert,omitempty"`
	RevertsPosition int64 `json:"reverts_position,omitempty"`

	// OccurredAt is when the event happened in the domain (client clock).
	OccurredAt time.Time `json:"occurred_at"`

	// RecordedAt is when the event was appended. Set by the store.
	RecordedAt time.Time `json:"recorded_at"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// --- Letter ---

	Data map[string]interface{} `json:"data"`
}

// NewEventID returns a fresh random event ID.
func NewEventID() string {
	return uuid.NewString()
}

// Identity reports the stream the event belongs to.
func (e *Event) Identity() identity.Identity {
	return identity.New(e.AggregateType, e.AggregateID)
}

// Validate ensures the envelope is complete enough to append.
// A zero Position is allowed; the store assigns the next one.
func (e *Event) Validate() error {
	if e.ID != "" {
		if _, err := uuid.Parse(e.ID); err != nil {
			return fmt.Errorf("id must be a UUID: %w", err)
		}
	}

	if err := e.Identity().Validate(); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	if e.Position < 0 {
		return fmt.Errorf("position must be >= 0, got %d", e.Position)
	}

	if e.Type == "" {
		return fmt.Errorf("type is required")
	}

	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}

	if !e.Revert && e.RevertsPosition != 0 {
		return fmt.Errorf("reverts_position set on a non-revert event")
	}

	return nil
}

// RevertOf builds a revert event for the event at target in the same stream.
func RevertOf(stream identity.Identity, target int64, eventType string, occurredAt time.Time) *Event {
	return &Event{
		AggregateType:   stream.Type,
		AggregateID:     stream.ID,
		Type:            eventType,
		Revert:          true,
		RevertsPosition: target,
		OccurredAt:      occurredAt,
		Data:            map[string]interface{}{},
	}
}
