// Package cli implements the cortextrader command line.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyike/cortextrader/internal/graph"
	"github.com/dyike/cortextrader/internal/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type options struct {
	out       io.Writer
	graphOpts []graph.Option
	prompter  Prompter
	noLogInit bool
}

type Option func(*options)

// WithOutput sends user-facing output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithGraphOptions is passed to every trading graph the commands build.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) { o.graphOpts = append(o.graphOpts, opts...) }
}

// WithPrompter replaces the terminal prompts of interactive mode.
func WithPrompter(p Prompter) Option {
	return func(o *options) { o.prompter = p }
}

// WithoutLoggerInit keeps the current global logger.
func WithoutLoggerInit() Option {
	return func(o *options) { o.noLogInit = true }
}

// Run executes the command line and returns the process exit code. SIGINT
// and SIGTERM cancel the running analysis; judges still rule on what the
// debates produced.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
