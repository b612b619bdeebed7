package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
)

func TestEvent_Validation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{
			name: "valid event with all fields",
			event: Event{
				ID:            NewEventID(),
				AggregateType: "Order",
				AggregateID:   "7",
				Position:      1,
				Type:          "item.added",
				OccurredAt:    now,
			},
		},
		{
			name: "position may be left for the store",
			event: Event{
				AggregateType: "Order",
				AggregateID:   "7",
				Type:          "item.added",
				OccurredAt:    now,
			},
		},
		{
			name: "revert event with target",
			event: Event{
				AggregateType:   "Account",
				AggregateID:     "A1",
				Type:            "reverted",
				Revert:          true,
				RevertsPosition: 2,
				OccurredAt:      now,
			},
		},
		{
			name: "missing aggregate type",
			event: Event{
				AggregateID: "7",
				Type:        "item.added",
				OccurredAt:  now,
			},
			wantErr: true,
		},
		{
			name: "missing aggregate id",
			event: Event{
				AggregateType: "Order",
				Type:          "item.added",
				OccurredAt:    now,
			},
			wantErr: true,
		},
		{
			name: "non-uuid id",
			event: Event{
				ID:            "evt_123",
				AggregateType: "Order",
				AggregateID:   "7",
				Type:          "item.added",
				OccurredAt:    now,
			},
			wantErr: true,
		},
		{
			name: "negative position",
			event: Event{
				AggregateType: "Order",
				AggregateID:   "7",
				Position:      -1,
				Type:          "item.added",
				OccurredAt:    now,
			},
			wantErr: true,
		},
		{
			name: "missing type",
			event: Event{
				AggregateType: "Order",
				AggregateID:   "7",
				OccurredAt:    now,
			},
			wantErr: true,
		},
		{
			name: "missing occurred_at",
			event: Event{
				AggregateType: "Order",
				AggregateID:   "7",
				Type:          "item.added",
			},
			wantErr: true,
		},
		{
			name: "reverts_position without revert flag",
			event: Event{
				AggregateType:   "Order",
				AggregateID:     "7",
				Type:            "item.added",
				RevertsPosition: 1,
				OccurredAt:      now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvent_Identity(t *testing.T) {
	evt := Event{AggregateType: "Order", AggregateID: "7"}
	if got := evt.Identity(); got != identity.New("Order", "7") {
		t.Errorf("Identity() = %v", got)
	}
}

func TestEvent_JSONUsesSnakeCase(t *testing.T) {
	evt := Event{
		ID:              NewEventID(),
		AggregateType:   "Account",
		AggregateID:     "A1",
		Position:        3,
		Type:            "reverted",
		Revert:          true,
		RevertsPosition: 2,
		OccurredAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:            map[string]interface{}{},
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"aggregate_type", "aggregate_id", "position", "reverts_position", "occurred_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected key %q in %s", key, raw)
		}
	}
}

func TestRevertOf(t *testing.T) {
	stream := identity.New("Account", "A1")
	evt := RevertOf(stream, 2, "reverted", time.Now())
	if !evt.Revert || evt.RevertsPosition != 2 || evt.Identity() != stream {
		t.Fatalf("unexpected revert event %+v", evt)
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}
