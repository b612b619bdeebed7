package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/asof/internal/api/v1"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/storage"
)

// EventStore is an in-process event log. Safe for concurrent use.
type EventStore struct {
	mu      sync.RWMutex
	streams map[identity.Identity][]*v1.Event
	ids     map[string]struct{}
	deleted map[identity.Identity]struct{}
	nowFn   func() time.Time
}

func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[identity.Identity][]*v1.Event),
		ids:     make(map[string]struct{}),
		deleted: make(map[identity.Identity]struct{}),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *EventStore) Append(_ context.Context, evt *v1.Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := evt.Identity()
	stream := s.streams[id]
	next := int64(len(stream)) + 1

	switch {
	case evt.Position == 0:
	case evt.Position < next:
		return fmt.Errorf("%w: %s position %d", storage.ErrDuplicate, id, evt.Position)
	case evt.Position > next:
		return fmt.Errorf("append event: %s position %d leaves a gap after %d", id, evt.Position, next-1)
	}
	if _, exists := s.ids[evt.ID]; evt.ID != "" && exists {
		return fmt.Errorf("%w: id %s", storage.ErrDuplicate, evt.ID)
	}

	if evt.ID == "" {
		evt.ID = v1.NewEventID()
	}
	evt.Position = next
	evt.RecordedAt = s.nowFn()

	stored := *evt
	s.streams[id] = append(stream, &stored)
	s.ids[evt.ID] = struct{}{}

	slog.Debug("[Memory] Appended event", "stream", id.String(), "position", evt.Position)
	return nil
}

func (s *EventStore) EventsFor(_ context.Context, id identity.Identity, after, upto int64, limit int) ([]*v1.Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("events for %s: limit must be > 0", id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[id]
	if after < 0 {
		after = 0
	}

	var out []*v1.Event
	// Positions are contiguous from 1, so the slice index is position-1.
	for i := after; i < int64(len(stream)) && i < upto && len(out) < limit; i++ {
		cp := *stream[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *EventStore) ResolveIdentity(_ context.Context, ref identity.Identity) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, gone := s.deleted[ref]; gone {
		return identity.Identity{}, fmt.Errorf("%w: %s was deleted", storage.ErrNotFound, ref)
	}
	if len(s.streams[ref]) == 0 {
		return identity.Identity{}, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
	}
	return ref, nil
}

// Delete tombstones an aggregate. Its events stay readable, but it no
// longer resolves as a join target.
func (s *EventStore) Delete(_ context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.streams[id]) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	s.deleted[id] = struct{}{}
	return nil
}
