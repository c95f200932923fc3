// Package events implements the in-process publish/subscribe bus that carries task and session
// change notifications.
//
// Delivery never blocks the publisher. Each subscriber owns a bounded buffer; when it is full the event is
// dropped for that subscriber and the next delivery is preceded by a [TopicResync] event, telling the
// consumer to re-read the queue snapshot. Events are hints, snapshots are the source of truth.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Topic names an event stream.
type Topic string

const (
	TopicProgress  Topic = "download-progress"
	TopicQueued    Topic = "download-queued"
	TopicStarted   Topic = "download-started"
	TopicCompleted Topic = "download-completed"
	TopicFailed    Topic = "download-failed"
	TopicPaused    Topic = "download-paused"
	TopicCancelled Topic = "download-cancelled"
	TopicSession   Topic = "session-status-changed"
	TopicResync    Topic = "resync"
)

// DefaultBuffer is the per-subscriber queue length used when callers pass zero.
const DefaultBuffer = 64

// Event is one notification. Payload returns the wire shape for the topic.
type Event struct {
	Topic      Topic
	Seq        uint64
	At         time.Time
	TaskID     string
	PlatformID string
	Progress   *Progress
}

// Progress is the body of a download-progress event.
type Progress struct {
	TaskID          string  `json:"task_id"`
	Progress        float64 `json:"progress"`
	Speed           string  `json:"speed,omitempty"`
	ETA             string  `json:"eta,omitempty"`
	DownloadedBytes *int64  `json:"downloaded_bytes,omitempty"`
	TotalBytes      *int64  `json:"total_bytes,omitempty"`
}

// TaskPayload is the body of the task lifecycle events.
type TaskPayload struct {
	TaskID string `json:"task_id"`
}

// SessionPayload is the body of session-status-changed. Consumers re-fetch everything regardless of PlatformID.
type SessionPayload struct {
	PlatformID string `json:"platform_id,omitempty"`
}

// Payload returns the JSON-ready body for the event's topic.
func (e Event) Payload() any {
	switch e.Topic {
	case TopicProgress:
		if e.Progress != nil {
			return e.Progress
		}
		return Progress{TaskID: e.TaskID}
	case TopicSession:
		return SessionPayload{PlatformID: e.PlatformID}
	case TopicResync:
		return struct{}{}
	default:
		return TaskPayload{TaskID: e.TaskID}
	}
}

// Decode rebuilds an event from its topic and the JSON produced by [Event.Payload].
func Decode(topic Topic, seq uint64, data []byte) (Event, error) {
	e := Event{Topic: topic, Seq: seq, At: time.Now()}
	switch topic {
	case TopicProgress:
		var p Progress
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("invalid %s payload: %w", topic, err)
		}
		e.TaskID = p.TaskID
		e.Progress = &p
	case TopicSession:
		var p SessionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("invalid %s payload: %w", topic, err)
		}
		e.PlatformID = p.PlatformID
	case TopicResync:
	default:
		var p TaskPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("invalid %s payload: %w", topic, err)
		}
		e.TaskID = p.TaskID
	}
	return e, nil
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	closed bool
	logger *log.Logger
}

// NewBus creates an empty [Bus].
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{subs: make(map[uint64]*Subscription), logger: logger}
}

// Publish stamps e with a sequence number and delivers it to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	e.Seq = b.seq.Add(1)
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.deliver(e) {
			b.logger.Debug("subscriber buffer full, event dropped", "subscriber", s.id, "topic", e.Topic, "task_id", e.TaskID)
		}
	}
}

// Subscribe registers a subscriber. When topics are given only those (plus resync) are delivered.
// The caller must Close the returned handle.
func (b *Bus) Subscribe(buffer int, topics ...Topic) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	s := &Subscription{bus: b, ch: make(chan Event, buffer)}
	if len(topics) > 0 {
		s.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			s.topics[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Len reports the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close releases every subscriber. Later Subscribe calls return already-closed handles.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is a scoped handle returned by [Bus.Subscribe].
type Subscription struct {
	id     uint64
	bus    *Bus
	ch     chan Event
	topics map[Topic]bool

	mu      sync.Mutex
	closed  bool
	dropped bool
}

// C is the receive side. It is closed after [Subscription.Close] or [Bus.Close].
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver reports false when e had to be dropped.
func (s *Subscription) deliver(e Event) bool {
	if s.topics != nil && !s.topics[e.Topic] {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	if s.dropped {
		select {
		case s.ch <- Event{Topic: TopicResync, Seq: e.Seq, At: e.At}:
			s.dropped = false
		default:
			return false
		}
	}

	select {
	case s.ch <- e:
		return true
	default:
		s.dropped = true
		return false
	}
}
