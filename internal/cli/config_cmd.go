package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/display"
	"github.com/dyike/cortextrader/internal/graph"
	"github.com/dyike/cortextrader/pkg/app"
)

func newConfigCmd(flags *rootFlags, o *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the settings file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(flags.configPath)
			if err != nil {
				return err
			}
			cfg, err := withEnv(mgr.Get())
			if err != nil {
				return err
			}
			return showConfig(o, mgr.Path(), cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set-depth DEPTH",
		Short: "Set the research depth (1-5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("depth must be a number: %w", err)
			}
			mgr, err := openManager(flags.configPath)
			if err != nil {
				return err
			}
			if err := mgr.UpdateFunc(func(c *config.Config) { c.ResearchDepth = depth }); err != nil {
				return err
			}
			cfg := mgr.Get()
			p := cfg.Profile()
			display.Success(o.out, fmt.Sprintf("research depth %d: %d debate round(s), %d risk round(s), %d tool iterations",
				depth, p.DebateRounds, p.RiskRounds, p.ToolIterations))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Rebuild the pipeline whenever the settings file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchConfig(cmd.Context(), flags, o)
		},
	})
	return configCmd
}

func showConfig(o *options, path string, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	display.Info(o.out, "Settings file: "+path)
	fmt.Fprintln(o.out, string(data))

	configured := func(ok bool) string {
		if ok {
			return "configured"
		}
		return "not configured"
	}
	fmt.Fprintf(o.out, "LLM API key (%s): %s\n", cfg.LLMProvider, configured(cfg.APIKey() != ""))
	fmt.Fprintf(o.out, "Longport:          %s\n", configured(cfg.LongportAppKey != "" && cfg.LongportAccessToken != ""))
	fmt.Fprintf(o.out, "Finnhub:           %s\n", configured(cfg.FinnhubAPIKey != ""))
	return nil
}

// envBuilder builds engines from settings overlaid with the environment.
func envBuilder(extra ...graph.Option) app.EngineBuilder {
	build := app.GraphBuilder(extra...)
	return func(ctx context.Context, c config.Config) (*app.Engine, error) {
		cfg, err := withEnv(c)
		if err != nil {
			return nil, err
		}
		return build(ctx, *cfg)
	}
}

func watchConfig(ctx context.Context, flags *rootFlags, o *options) error {
	mgr, err := openManager(flags.configPath)
	if err != nil {
		return err
	}
	rt, err := app.NewRuntime(ctx, mgr,
		app.WithBuilder(envBuilder(o.graphOpts...)),
		app.WithNotifier(func(topic, payload string) {
			display.Info(o.out, topic+" "+payload)
		}),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	e := rt.Engine()
	display.Info(o.out, fmt.Sprintf("watching %s (engine v%d, analysts %v); Ctrl-C to stop",
		mgr.Path(), e.Version, e.Graph.Analysts()))
	<-ctx.Done()
	return nil
}
