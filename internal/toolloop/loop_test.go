package toolloop

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/internal/llm/llmtest"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/pkg/errors"
)

func prompt() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage("you are a market analyst"),
		schema.UserMessage("analyze AAPL"),
	}
}

func TestFinalAnswerWithoutTools(t *testing.T) {
	m := llmtest.Text("AAPL looks strong")
	res, err := New().Run(context.Background(), Request{Stage: "market_analyst", Model: m, Messages: prompt()})
	require.NoError(t, err)

	assert.Equal(t, "AAPL looks strong", res.Content)
	assert.Equal(t, 0, res.ToolCalls)
	assert.False(t, res.Capped)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "market_analyst", res.Messages[0].Name)
}

func TestToolCallThenAnswer(t *testing.T) {
	candles := llmtest.NewTool("get_candles", `{"close":190.1}`)
	m := llmtest.Script(
		llmtest.ToolCall("c1", "get_candles", `{"symbol":"AAPL"}`),
		schema.AssistantMessage("closing at 190.1", nil),
	)

	res, err := New().Run(context.Background(), Request{
		Stage:    "market_analyst",
		Model:    m,
		Tools:    []tool.InvokableTool{candles},
		Messages: prompt(),
	})
	require.NoError(t, err)

	assert.Equal(t, "closing at 190.1", res.Content)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, []string{`{"symbol":"AAPL"}`}, candles.Calls())
	require.Len(t, res.Messages, 3)
	assert.Equal(t, schema.Tool, res.Messages[1].Role)
	assert.Equal(t, "c1", res.Messages[1].ToolCallID)
	require.Len(t, m.BoundTools(), 1)

	// the second call sees the tool result
	inputs := m.Inputs()
	require.Len(t, inputs, 2)
	assert.Len(t, inputs[1], 4)
}

func TestIterationCapForcesBestEffort(t *testing.T) {
	news := llmtest.NewTool("get_news", "headline: record revenue")
	m := llmtest.Script(llmtest.ToolCall("c", "get_news", `{}`))
	rec := observer.NewRecording()

	res, err := New(WithMaxIterations(3)).Run(context.Background(), Request{
		Stage:    "news_analyst",
		Model:    m,
		Tools:    []tool.InvokableTool{news},
		Messages: prompt(),
		Observer: rec,
	})
	require.NoError(t, err)

	assert.True(t, res.Capped)
	assert.Len(t, news.Calls(), 3)
	assert.Equal(t, 3, res.ToolCalls)
	assert.Equal(t, 3, res.Iterations)
	assert.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content, "record revenue")

	last := res.Messages[len(res.Messages)-1]
	assert.Empty(t, last.ToolCalls, "transcript must not end on a pending tool call")
	assert.Equal(t, res.Content, last.Content)
	assert.Len(t, rec.Events(), len(res.Messages))
}

func TestToolFailureIsFedBack(t *testing.T) {
	broken := llmtest.NewFailingTool("get_quote", stderrors.New("upstream 503"))
	m := llmtest.Script(
		llmtest.ToolCall("q1", "get_quote", `{}`),
		schema.AssistantMessage("quote unavailable, proceeding", nil),
	)

	res, err := New().Run(context.Background(), Request{
		Stage: "fundamentals_analyst", Model: m, Tools: []tool.InvokableTool{broken}, Messages: prompt(),
	})
	require.NoError(t, err)

	assert.Equal(t, "quote unavailable, proceeding", res.Content)
	assert.Contains(t, res.Messages[1].Content, "upstream 503")
}

func TestUnknownToolIsFedBack(t *testing.T) {
	known := llmtest.NewTool("get_candles", "[]")
	m := llmtest.Script(
		llmtest.ToolCall("x", "get_weather", `{}`),
		schema.AssistantMessage("done", nil),
	)

	res, err := New().Run(context.Background(), Request{
		Stage: "market_analyst", Model: m, Tools: []tool.InvokableTool{known}, Messages: prompt(),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Messages[1].Content, "get_weather")
	assert.Contains(t, res.Messages[1].Content, "get_candles")
	assert.Empty(t, known.Calls())
}

func TestLLMFailureRetriedOnce(t *testing.T) {
	attempts := 0
	m := llmtest.New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		attempts++
		if attempts == 1 {
			return nil, stderrors.New("rate limited")
		}
		return schema.AssistantMessage("recovered", nil), nil
	})

	res, err := New(WithRetryBackoff(time.Millisecond)).Run(context.Background(), Request{Stage: "trader", Model: m, Messages: prompt()})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Content)
	assert.Equal(t, 2, m.Calls())
}

func TestLLMFailureAfterRetry(t *testing.T) {
	m := llmtest.Failing(stderrors.New("provider down"))

	_, err := New(WithRetryBackoff(time.Millisecond)).Run(context.Background(), Request{Stage: "trader", Model: m, Messages: prompt()})
	require.Error(t, err)
	assert.Equal(t, errors.KindLLM, errors.KindOf(err))
	assert.Equal(t, 2, m.Calls())
}

func TestCanceledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := llmtest.Text("never")

	_, err := New().Run(ctx, Request{Stage: "trader", Model: m, Messages: prompt()})
	require.Error(t, err)
	assert.Equal(t, errors.KindCanceled, errors.KindOf(err))
	assert.Equal(t, 1, m.Calls())
}

func TestEmptyAnswerBecomesPlaceholder(t *testing.T) {
	res, err := New().Run(context.Background(), Request{Stage: "bull_researcher", Model: llmtest.Text("   "), Messages: prompt()})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content, "bull_researcher")
}
