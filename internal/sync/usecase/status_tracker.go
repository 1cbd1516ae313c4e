package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storage-sync-worker/internal/shared/eventbus"
)

// CollectionStatus is a snapshot of the counters kept for one collection.
type CollectionStatus struct {
	Collection     string    `json:"collection"`
	FeedOpen       bool      `json:"feed_open"`
	ChangesApplied int64     `json:"changes_applied"`
	ChangesFailed  int64     `json:"changes_failed"`
	ChangesSkipped int64     `json:"changes_skipped"`
	FeedFaults     int64     `json:"feed_faults"`
	RecordsPruned  int64     `json:"records_pruned"`
	PruneFaults    int64     `json:"prune_faults"`
	LastError      string    `json:"last_error,omitempty"`
	LastActivity   time.Time `json:"last_activity,omitempty"`
}

// StatusTracker folds sync events into per-collection counters.
type StatusTracker struct {
	mu          sync.RWMutex
	collections map[string]*CollectionStatus
	startedAt   time.Time
}

// NewStatusTracker creates a tracker pre-populated with collections.
func NewStatusTracker(collections []string) *StatusTracker {
	t := &StatusTracker{
		collections: make(map[string]*CollectionStatus, len(collections)),
		startedAt:   time.Now().UTC(),
	}
	for _, c := range collections {
		t.collections[c] = &CollectionStatus{Collection: c}
	}
	return t
}

// Attach subscribes the tracker to every sync event type on bus.
func (t *StatusTracker) Attach(bus *eventbus.EventBus) {
	bus.SubscribeAll(t.handle, eventbus.AllEventTypes...)
}

// StartedAt returns when the tracker was created.
func (t *StatusTracker) StartedAt() time.Time {
	return t.startedAt
}

func (t *StatusTracker) handle(_ context.Context, event eventbus.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.collections[event.Source()]
	if !ok {
		s = &CollectionStatus{Collection: event.Source()}
		t.collections[event.Source()] = s
	}
	s.LastActivity = event.Timestamp()

	switch event.Type() {
	case eventbus.EventTypeChangeApplied:
		s.ChangesApplied++
	case eventbus.EventTypeChangeFailed:
		s.ChangesFailed++
		s.LastError = fmt.Sprint(event.Data())
	case eventbus.EventTypeChangeSkipped:
		s.ChangesSkipped++
	case eventbus.EventTypeFeedOpened:
		s.FeedOpen = true
	case eventbus.EventTypeFeedFault:
		s.FeedOpen = false
		s.FeedFaults++
		s.LastError = fmt.Sprint(event.Data())
	case eventbus.EventTypeRecordsPruned:
		if n, ok := event.Data().(int64); ok {
			s.RecordsPruned += n
		}
	case eventbus.EventTypePruneFault:
		s.PruneFaults++
		s.LastError = fmt.Sprint(event.Data())
	}
	return nil
}

// Snapshot returns a copy of every collection's status sorted by name.
func (t *StatusTracker) Snapshot() []CollectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CollectionStatus, 0, len(t.collections))
	for _, s := range t.collections {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}
