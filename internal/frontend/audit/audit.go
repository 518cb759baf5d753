// Package audit records who ran which front end action, and who logged in.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events.
type EventType string

const (
	EventActionExecuted EventType = "action.executed"
	EventActionDenied   EventType = "action.denied"
	EventActionFailed   EventType = "action.failed"
	EventLoginSuccess   EventType = "auth.login"
	EventLoginFailed    EventType = "auth.login_failed"
	EventLogout         EventType = "auth.logout"
)

// Event is a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Action    string    `json:"action,omitempty"`
	Actor     string    `json:"actor,omitempty"` // username, or "anonymous"
	Summary   string    `json:"summary"`
	Detail    any       `json:"detail,omitempty"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(evt Event)
}

// Log is an in-memory audit log.
type Log struct {
	events []Event
	mu     sync.RWMutex
	maxLen int // ring buffer size (0 = unbounded)
}

// NewLog creates a new audit log. maxLen=0 means unbounded.
func NewLog(maxLen int) *Log {
	return &Log{
		events: make([]Event, 0, 256),
		maxLen: maxLen,
	}
}

func enrichEvent(evt *Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
}

// Record appends an event to the log.
func (l *Log) Record(evt Event) {
	enrichEvent(&evt)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, evt)

	// Ring buffer: drop oldest if over capacity
	if l.maxLen > 0 && len(l.events) > l.maxLen {
		l.events = l.events[len(l.events)-l.maxLen:]
	}
}

// Filter selects events. Limit=0 means all.
type Filter struct {
	Action string
	Actor  string
	Type   EventType
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (f Filter) match(evt Event) bool {
	if f.Action != "" && evt.Action != f.Action {
		return false
	}
	if f.Actor != "" && evt.Actor != f.Actor {
		return false
	}
	if f.Type != "" && evt.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && evt.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Query returns filtered events, newest first.
func (l *Log) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Event
	for i := len(l.events) - 1; i >= 0; i-- {
		if !f.match(l.events[i]) {
			continue
		}
		result = append(result, l.events[i])
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result
}

// Recent returns the N most recent events.
func (l *Log) Recent(n int) []Event {
	return l.Query(Filter{Limit: n})
}

// Count returns total event count.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// MarshalJSON exports all events as JSON.
func (l *Log) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(l.events)
}
