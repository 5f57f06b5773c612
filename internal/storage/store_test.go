package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateSession(ctx, Session{ID: "r1", Ticker: "AAPL", TradeDate: "2025-03-10"}))
	require.NoError(t, s.UpdateSessionStatus(ctx, "r1", StatusDone))

	got, err := s.GetSession(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, StatusDone, got.Status)

	missing, err := s.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, s.UpdateSessionStatus(ctx, "nope", StatusDone))
}

func TestStoreMessagesAndDecision(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateSession(ctx, Session{ID: "r1", Ticker: "0700.HK", TradeDate: "2025-03-10"}))

	require.NoError(t, s.InsertMessage(ctx, Message{SessionID: "r1", Seq: 2, Stage: "market_analyst", Role: "tool", Content: "csv", ToolCallID: "c1"}))
	require.NoError(t, s.InsertMessage(ctx, Message{SessionID: "r1", Seq: 1, Stage: "market_analyst", Role: "assistant", ToolCalls: []string{"get_candles"}}))
	assert.Error(t, s.InsertMessage(ctx, Message{SessionID: "r1", Seq: 1, Role: "assistant"}), "duplicate seq")
	assert.Error(t, s.InsertMessage(ctx, Message{SessionID: "r1", Seq: 0, Role: "assistant"}))

	msgs, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"get_candles"}, msgs[0].ToolCalls)
	assert.Equal(t, "c1", msgs[1].ToolCallID)

	target := decimal.RequireFromString("420.5")
	d := models.Decision{Action: models.ActionBuy, TargetPrice: &target, Confidence: 0.8, RiskScore: 0.3, Reasoning: "growth"}
	require.NoError(t, s.SaveDecision(ctx, "r1", d, "raw text"))
	d.Action = models.ActionHold
	require.NoError(t, s.SaveDecision(ctx, "r1", d, "raw text"), "saving twice replaces")

	rec, err := s.GetDecision(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.ActionHold, rec.Decision.Action)
	require.NotNil(t, rec.Decision.TargetPrice)
	assert.True(t, target.Equal(*rec.Decision.TargetPrice))
	assert.Equal(t, "raw text", rec.Raw)
}

func TestListSessionsFiltersByTicker(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for i, ticker := range []string{"AAPL", "MSFT", "AAPL"} {
		require.NoError(t, s.CreateSession(ctx, Session{ID: fmt.Sprintf("r%d", i), Ticker: ticker, TradeDate: "2025-03-10"}))
	}

	all, err := s.ListSessions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	aapl, err := s.ListSessions(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, aapl, 2)
	assert.Equal(t, "r2", aapl[0].ID, "newest first")
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.DBPath = ""
	s, err := OpenFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.DataDir = ""
	_, err = OpenFromConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrDataDirNotConfigured)
}

func TestRecorderPersistsRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := NewRecorder(s)

	call := schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "get_candles"}}})
	r.Notify(ctx, observer.Event{Type: observer.RunStarted, RunID: "r1", Ticker: "AAPL", Detail: "2025-03-10"})
	r.Notify(ctx, observer.Event{Type: observer.StageStarted, RunID: "r1", Stage: "market_analyst"})
	r.Notify(ctx, observer.Event{Type: observer.Message, RunID: "r1", Stage: "market_analyst", Message: call})
	r.Notify(ctx, observer.Event{Type: observer.Message, RunID: "r1", Stage: "market_analyst", Message: schema.ToolMessage("csv", "c1")})
	r.Notify(ctx, observer.Event{Type: observer.StageFinished, RunID: "r1", Stage: "market_analyst", Status: models.StatusCompleted})
	r.Notify(ctx, observer.Event{Type: observer.StageFinished, RunID: "r1", Stage: "news_analyst", Status: models.StatusError,
		Detail: "analysis incomplete: News Analyst could not produce a report"})
	r.Notify(ctx, observer.Event{Type: observer.RunFinished, RunID: "r1", Detail: "BUY"})
	r.RecordDecision("r1", models.NeutralDecision("no signal"), "")
	require.NoError(t, r.Close())

	sess, err := s.GetSession(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "2025-03-10", sess.TradeDate)
	assert.Equal(t, StatusDone, sess.Status)

	msgs, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"get_candles"}, msgs[0].ToolCalls)
	assert.Equal(t, "tool", msgs[1].Role)
	assert.Equal(t, "news_analyst", msgs[2].Stage)
	assert.Contains(t, msgs[2].Content, "analysis incomplete")

	rec, err := s.GetDecision(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.ActionHold, rec.Decision.Action)

	// closed recorders drop events instead of blocking
	done := make(chan struct{})
	go func() {
		r.Notify(ctx, observer.Event{Type: observer.RunStarted, RunID: "r2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked after close")
	}
}

func TestRecorderKeepsOrderUnderBurst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := NewRecorder(s)

	const n = 3000
	r.Notify(ctx, observer.Event{Type: observer.RunStarted, RunID: "r1", Ticker: "AAPL", Detail: "2025-03-10"})
	for i := 0; i < n; i++ {
		r.Notify(ctx, observer.Event{Type: observer.Message, RunID: "r1", Stage: "bull_researcher",
			Message: schema.AssistantMessage(fmt.Sprintf("turn %d", i), nil)})
	}
	r.Notify(ctx, observer.Event{Type: observer.RunFinished, RunID: "r1", Detail: "HOLD"})
	require.NoError(t, r.Close())

	msgs, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
		if !assert.Equal(t, fmt.Sprintf("turn %d", i), m.Content) {
			break
		}
	}

	sess, err := s.GetSession(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusDone, sess.Status)
}

func TestRecorderSharedByConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := NewRecorder(s)

	const runs, perRun = 4, 300
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("r%d", i)
		r.Notify(ctx, observer.Event{Type: observer.RunStarted, RunID: id, Ticker: "AAPL", Detail: "2025-03-10"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perRun; j++ {
				r.Notify(ctx, observer.Event{Type: observer.Message, RunID: id,
					Message: schema.AssistantMessage(fmt.Sprintf("%s-%d", id, j), nil)})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, r.Close())

	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("r%d", i)
		msgs, err := s.ListMessages(ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, perRun, id)
		for j, m := range msgs {
			assert.Equal(t, fmt.Sprintf("%s-%d", id, j), m.Content)
		}
	}
}

func TestRecorderMarksCanceledRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := NewRecorder(s)

	r.Notify(ctx, observer.Event{Type: observer.RunStarted, RunID: "r1", Ticker: "AAPL", Detail: "2025-03-10"})
	r.Notify(ctx, observer.Event{Type: observer.RunFinished, RunID: "r1",
		Err: errors.Wrap(errors.KindCanceled, "controller.run", context.Canceled)})
	require.NoError(t, r.Close())

	sess, err := s.GetSession(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusCanceled, sess.Status)
}
