// Package observer delivers pipeline progress to displays, logs and
// persistence. Observers only watch; they never steer the run.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/models"
)

type EventType string

const (
	RunStarted    EventType = "run_started"
	RunFinished   EventType = "run_finished"
	StageStarted  EventType = "stage_started"
	StageFinished EventType = "stage_finished"
	Message       EventType = "message"
)

type Event struct {
	Type    EventType
	RunID   string
	Ticker  string
	Stage   string
	Status  models.AgentStatus
	Message *schema.Message
	Err     error
	Detail  string
	At      time.Time
}

// Observer must return quickly; slow sinks should buffer internally.
type Observer interface {
	Notify(ctx context.Context, ev Event)
}

// Func adapts a function to Observer.
type Func func(ctx context.Context, ev Event)

func (f Func) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Multi fans an event out to every non-nil observer in order.
type Multi []Observer

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(ctx, ev)
		}
	}
}

// Nop discards events.
var Nop Observer = Func(func(context.Context, Event) {})

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop
	}
	return o
}

// Recording keeps every event in memory.
type Recording struct {
	mu     sync.Mutex
	events []Event
}

func NewRecording() *Recording { return &Recording{} }

func (r *Recording) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recording) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Visits returns the stage of every StageStarted event in order.
func (r *Recording) Visits() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == StageStarted {
			out = append(out, ev.Stage)
		}
	}
	return out
}
