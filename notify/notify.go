// Package notify delivers lifecycle events to people outside the engine.
// Delivery is best effort: callers log failures and never roll back on them.
package notify

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	RequestCreated   EventType = "request.created"
	RequestDecided   EventType = "request.decided"
	RequestCancelled EventType = "request.cancelled"
	LoanReturned     EventType = "loan.returned"
	UserBlocked      EventType = "user.blocked"
)

// Event 通知内容。ToAdmins 为 true 时由具体 dispatcher 决定管理员收件人。
type Event struct {
	Type     EventType      `json:"type"`
	To       []string       `json:"to,omitempty"`
	ToAdmins bool           `json:"toAdmins,omitempty"`
	Subject  string         `json:"subject"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

type Dispatcher interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Recorder 记录事件，测试用
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
