package cli

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/display"
	"github.com/dyike/cortextrader/pkg/app"
)

// runInteractive prompts for runs until the user stops. Analyst and depth
// choices are saved to the settings file, so the engine is rebuilt by the
// runtime and the next session starts from them.
func runInteractive(ctx context.Context, flags *rootFlags, o *options) error {
	mgr, err := openManager(flags.configPath)
	if err != nil {
		return err
	}
	cfg, err := withEnv(mgr.Get())
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	env, err := openRunEnv(ctx, cfg, o, false)
	if err != nil {
		return err
	}
	defer env.Close()

	rt, err := app.NewRuntime(ctx, mgr,
		app.WithBuilder(envBuilder(env.graphOptions(o.graphOpts)...)),
		app.WithoutWatch(),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	prompter := o.prompter
	if prompter == nil {
		prompter = surveyPrompter{}
	}
	last := Selections{Date: time.Now().Format(dateLayout)}
	for {
		current := rt.Config()
		last.Analysts = current.Analysts
		last.Depth = current.ResearchDepth

		sel, err := prompter.Ask(last)
		if err != nil {
			return err
		}
		if err := applySelections(mgr, sel); err != nil {
			display.Error(o.out, err)
			continue
		}
		last = sel

		state, d, err := rt.Analyze(ctx, sel.Ticker, sel.Date)
		if state != nil {
			dir := env.finish(state, d)
			fmt.Fprintln(o.out, display.Render(state, d, display.Options{ResultsDir: dir, MaxSectionChars: 1200}))
		}
		if err != nil {
			display.Error(o.out, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		again, err := prompter.Again()
		if err != nil || !again {
			return err
		}
	}
}

func applySelections(mgr *config.Manager, sel Selections) error {
	current := mgr.Get()
	analysts := config.NormalizeAnalysts(sel.Analysts)
	if reflect.DeepEqual(analysts, current.Analysts) && sel.Depth == current.ResearchDepth {
		return nil
	}
	return mgr.UpdateFunc(func(c *config.Config) {
		c.Analysts = analysts
		c.ResearchDepth = sel.Depth
	})
}
