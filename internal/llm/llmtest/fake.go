// Package llmtest provides scripted chat models and tools for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Reply produces the model's next message for the given input.
type Reply func(ctx context.Context, in []*schema.Message) (*schema.Message, error)

// ChatModel is a model.ToolCallingChatModel driven by a Reply.
type ChatModel struct {
	mu     sync.Mutex
	reply  Reply
	calls  int
	tools  []*schema.ToolInfo
	inputs [][]*schema.Message
}

func New(reply Reply) *ChatModel {
	return &ChatModel{reply: reply}
}

// Script answers with msgs in order and repeats the last one forever.
func Script(msgs ...*schema.Message) *ChatModel {
	var (
		mu sync.Mutex
		i  int
	)
	return New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) == 0 {
			return schema.AssistantMessage("", nil), nil
		}
		m := msgs[i]
		if i < len(msgs)-1 {
			i++
		}
		return Clone(m), nil
	})
}

// Text always answers with content.
func Text(content string) *ChatModel {
	return Script(schema.AssistantMessage(content, nil))
}

// Failing always returns err.
func Failing(err error) *ChatModel {
	return New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, err
	})
}

func (c *ChatModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	c.mu.Lock()
	c.calls++
	c.inputs = append(c.inputs, append([]*schema.Message(nil), in...))
	reply := c.reply
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reply(ctx, in)
}

func (c *ChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := c.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (c *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return c, nil
}

func (c *ChatModel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Inputs returns the message list of every Generate call.
func (c *ChatModel) Inputs() [][]*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]*schema.Message(nil), c.inputs...)
}

// BoundTools returns the tool infos from the last WithTools call.
func (c *ChatModel) BoundTools() []*schema.ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// ToolCall builds an assistant message requesting one tool.
func ToolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func Clone(m *schema.Message) *schema.Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.ToolCalls = append([]schema.ToolCall(nil), m.ToolCalls...)
	return &cp
}

// Tool is a tool.InvokableTool with a fixed result.
type Tool struct {
	name   string
	result string
	err    error

	mu    sync.Mutex
	calls []string
}

var _ tool.InvokableTool = (*Tool)(nil)

func NewTool(name, result string) *Tool {
	return &Tool{name: name, result: result}
}

func NewFailingTool(name string, err error) *Tool {
	return &Tool{name: name, err: err}
}

func (t *Tool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: t.name, Desc: fmt.Sprintf("test tool %s", t.name)}, nil
}

func (t *Tool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	return t.result, nil
}

// Calls returns the arguments of every invocation.
func (t *Tool) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}
