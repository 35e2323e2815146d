package pipeline

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// EventKind tags a progress event on a run's stream.
type EventKind string

const (
	EventAgentStarted      EventKind = "agent_started"
	EventAgentCompleted    EventKind = "agent_completed"
	EventPipelineCompleted EventKind = "pipeline_completed"
	EventPipelineError     EventKind = "pipeline_error"
)

// Event is one progress notification. Agent carries the stage name for
// agent events; Message carries the sanitized error for pipeline_error.
type Event struct {
	Kind    EventKind `json:"kind"`
	Agent   string    `json:"agent,omitempty"`
	Stage   int       `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
}

const subscriberBuffer = 32

// Broker fans run events out to any number of subscribers. Publishing
// never blocks; a subscriber that stops draining loses events rather
// than stalling the pipeline.
type Broker struct {
	mu     sync.Mutex
	logger *slog.Logger
	subs   map[uuid.UUID]map[chan Event]struct{}
	closed map[uuid.UUID]bool
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger: logger,
		subs:   make(map[uuid.UUID]map[chan Event]struct{}),
		closed: make(map[uuid.UUID]bool),
	}
}

// Subscribe returns a channel of events for the run and a cancel
// function the caller must invoke when done. The channel is closed when
// the run finishes. Subscribing to an already finished run returns a
// closed channel.
func (b *Broker) Subscribe(runID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed[runID] {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan Event]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[runID]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, runID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the run.
func (b *Broker) Publish(runID uuid.UUID, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber", "run_id", runID, "kind", ev.Kind)
		}
	}
}

// Finish marks the run's stream ended: all subscriber channels are
// closed and future subscribers get a closed channel immediately.
func (b *Broker) Finish(runID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		close(ch)
	}
	delete(b.subs, runID)
	b.closed[runID] = true
}

// Forget drops the finished marker for a deleted run so the broker does
// not grow without bound.
func (b *Broker) Forget(runID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.closed, runID)
}
