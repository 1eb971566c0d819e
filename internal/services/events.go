package services

import (
	"sync"

	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// EventType names what an Event reports
type EventType string

const (
	EventProgress EventType = "progress"
	EventScan     EventType = "scan"
	EventDelete   EventType = "delete"
	EventReset    EventType = "reset"
)

// Event is pushed to subscribers as the engine changes
type Event struct {
	Type       EventType           `json:"type"`
	Generation uint64              `json:"generation"`
	RunID      string              `json:"runId,omitempty"`
	Status     string              `json:"status,omitempty"`
	Progress   *dupes.ScanProgress `json:"progress,omitempty"`
	Stats      *dupes.Stats        `json:"stats,omitempty"`
}

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan *Event
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (sub *subscriber) send(ev *Event) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- ev:
		return true
	default:
		return false
	}
}

// Subscribe registers for engine events. Slow readers miss events rather
// than block the engine.
func (s *Scanner) Subscribe() <-chan *Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{ch: make(chan *Event, 32)}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes and closes a subscriber
func (s *Scanner) Unsubscribe(ch <-chan *Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			sub.close()
			return
		}
	}
}

// broadcast sends an event to all subscribers
func (s *Scanner) broadcast(ev *Event) {
	s.subMu.RLock()
	// Copy so sends happen without the lock
	subs := make([]*subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(ev)
	}
}

// closeSubscribers closes every subscriber channel
func (s *Scanner) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers {
		sub.close()
	}
	s.subscribers = nil
}
