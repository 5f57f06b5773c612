package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

type recordKind int

const (
	recordEvent recordKind = iota + 1
	recordDecision
)

type record struct {
	kind     recordKind
	ev       observer.Event
	decision models.Decision
	raw      string
}

// Recorder is an observer that writes sessions and transcripts to a Store
// from a single background goroutine. Notify never blocks on the database and
// records are written in the order they were received. Several runs may share
// one Recorder.
type Recorder struct {
	store *Store
	log   *zap.SugaredLogger

	mu     sync.Mutex
	queue  []record
	closed bool
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	// owned by the loop goroutine
	seq map[string]int
}

var _ observer.Observer = (*Recorder)(nil)

func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		log:   logger.With("component", "recorder"),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		seq:   make(map[string]int),
	}
	go r.loop()
	return r
}

func (r *Recorder) Notify(_ context.Context, ev observer.Event) {
	switch ev.Type {
	case observer.RunStarted, observer.RunFinished, observer.Message:
	case observer.StageFinished:
		// only placeholders carry text the transcript does not have yet
		if ev.Status != models.StatusError || ev.Detail == "" {
			return
		}
	default:
		return
	}
	r.enqueue(record{kind: recordEvent, ev: ev})
}

// RecordDecision queues the extracted decision of a run behind its events.
func (r *Recorder) RecordDecision(runID string, d models.Decision, raw string) {
	r.enqueue(record{kind: recordDecision, ev: observer.Event{RunID: runID}, decision: d, raw: raw})
}

// Close stops accepting records and waits until every queued one is written.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.signal()
		<-r.done
	})
	return nil
}

func (r *Recorder) enqueue(rec record) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, rec)
	r.mu.Unlock()
	r.signal()
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	ctx := context.Background()
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, rec := range batch {
			r.handle(ctx, rec)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

func (r *Recorder) handle(ctx context.Context, rec record) {
	var err error
	ev := rec.ev
	switch {
	case rec.kind == recordDecision:
		err = r.store.SaveDecision(ctx, ev.RunID, rec.decision, rec.raw)
	case ev.Type == observer.RunStarted:
		err = r.store.CreateSession(ctx, Session{ID: ev.RunID, Ticker: ev.Ticker, TradeDate: ev.Detail, Status: StatusRunning})
	case ev.Type == observer.RunFinished:
		status := StatusDone
		switch {
		case errors.IsKind(ev.Err, errors.KindCanceled):
			status = StatusCanceled
		case ev.Err != nil:
			status = StatusError
		}
		err = r.store.UpdateSessionStatus(ctx, ev.RunID, status)
		delete(r.seq, ev.RunID)
	case ev.Type == observer.StageFinished:
		err = r.insert(ctx, ev.RunID, Message{Stage: ev.Stage, Role: "assistant", Content: ev.Detail})
	case ev.Type == observer.Message && ev.Message != nil:
		m := Message{Stage: ev.Stage, Role: string(ev.Message.Role), Content: ev.Message.Content, ToolCallID: ev.Message.ToolCallID}
		for _, tc := range ev.Message.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, tc.Function.Name)
		}
		err = r.insert(ctx, ev.RunID, m)
	}
	if err != nil {
		r.log.Warnw("persist event failed", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}

func (r *Recorder) insert(ctx context.Context, runID string, m Message) error {
	r.seq[runID]++
	m.SessionID = runID
	m.Seq = r.seq[runID]
	return r.store.InsertMessage(ctx, m)
}
