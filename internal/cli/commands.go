package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/display"
	"github.com/dyike/cortextrader/internal/graph"
	"github.com/dyike/cortextrader/internal/storage"
	"github.com/dyike/cortextrader/models"
)

const dateLayout = "2006-01-02"

type rootFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree. Without a subcommand it starts
// interactive mode.
func NewRootCmd(opts ...Option) *cobra.Command {
	o := &options{out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "cortextrader",
		Short: "Multi-agent LLM trading analysis",
		Long: `cortextrader runs a team of LLM agents over one stock: analysts gather
market, sentiment, news and fundamentals reports, researchers debate them,
a trader drafts a plan, risk analysts debate it and a portfolio manager
issues the final BUY, SELL or HOLD.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), flags, o)
		},
	}
	rootCmd.SetOut(o.out)
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "settings file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newAnalyzeCmd(flags, o),
		newBatchCmd(flags, o),
		newInteractiveCmd(flags, o),
		newHistoryCmd(flags, o),
		newConfigCmd(flags, o),
		newVersionCmd(),
	)
	return rootCmd
}

// runOverrides are the per-run flags shared by analyze and batch.
type runOverrides struct {
	date     string
	analysts []string
	depth    int
	market   string
}

func (r *runOverrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.date, "date", "", "trade date YYYY-MM-DD (default today)")
	cmd.Flags().StringSliceVar(&r.analysts, "analysts", nil, "analysts to run: market,social,news,fundamentals")
	cmd.Flags().IntVar(&r.depth, "depth", 0, "research depth 1-5 (default from settings)")
	cmd.Flags().StringVar(&r.market, "market", "", "force the market: US, CN or HK")
}

func (r *runOverrides) tradeDate() (string, error) {
	if r.date == "" {
		return time.Now().Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, r.date); err != nil {
		return "", fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return r.date, nil
}

func (r *runOverrides) apply(cfg *config.Config) error {
	if len(r.analysts) > 0 {
		cfg.Analysts = config.NormalizeAnalysts(r.analysts)
	}
	if r.depth != 0 {
		cfg.ResearchDepth = r.depth
	}
	if r.market != "" {
		cfg.MarketOverride = strings.ToUpper(r.market)
	}
	return cfg.Validate()
}

// loadConfig reads the settings file, the environment and the global flags.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	mgr, err := openManager(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := withEnv(mgr.Get())
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func newAnalyzeCmd(flags *rootFlags, o *options) *cobra.Command {
	run := &runOverrides{}
	cmd := &cobra.Command{
		Use:   "analyze TICKER",
		Short: "Run the full analysis for one ticker",
		Example: `  cortextrader analyze AAPL --date 2025-03-10
  cortextrader analyze 0700.HK --analysts market,news --depth 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := run.apply(cfg); err != nil {
				return err
			}
			date, err := run.tradeDate()
			if err != nil {
				return err
			}
			return analyzeOne(cmd.Context(), cfg, o, args[0], date)
		},
	}
	run.register(cmd)
	return cmd
}

func analyzeOne(ctx context.Context, cfg *config.Config, o *options, ticker, date string) error {
	env, err := openRunEnv(ctx, cfg, o, false)
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := graph.New(ctx, cfg, env.graphOptions(o.graphOpts)...)
	if err != nil {
		return err
	}
	state, d, err := g.Propagate(ctx, ticker, date)
	if state != nil {
		dir := env.finish(state, d)
		fmt.Fprintln(env.out, display.Render(state, d, display.Options{ResultsDir: dir, MaxSectionChars: 1200}))
	}
	if err != nil {
		return fmt.Errorf("analysis of %s failed: %w", ticker, err)
	}
	return nil
}

func newBatchCmd(flags *rootFlags, o *options) *cobra.Command {
	run := &runOverrides{}
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch TICKER...",
		Short: "Analyze several tickers, each in its own independent run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := run.apply(cfg); err != nil {
				return err
			}
			date, err := run.tradeDate()
			if err != nil {
				return err
			}
			return analyzeBatch(cmd.Context(), cfg, o, args, date, parallel)
		},
	}
	run.register(cmd)
	cmd.Flags().IntVar(&parallel, "parallel", 2, "maximum concurrent runs")
	return cmd
}

type batchResult struct {
	ticker   string
	decision models.Decision
	err      error
}

func analyzeBatch(ctx context.Context, cfg *config.Config, o *options, tickers []string, date string, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}
	env, err := openRunEnv(ctx, cfg, o, true)
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := graph.New(ctx, cfg, env.graphOptions(o.graphOpts)...)
	if err != nil {
		return err
	}

	results := make([]batchResult, len(tickers))
	var (
		eg errgroup.Group
		mu sync.Mutex
	)
	eg.SetLimit(parallel)
	for i, ticker := range tickers {
		eg.Go(func() error {
			state, d, err := g.Propagate(ctx, ticker, date)
			mu.Lock()
			env.finish(state, d)
			mu.Unlock()
			// one failed ticker must not cancel the others
			results[i] = batchResult{ticker: ticker, decision: d, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	fmt.Fprintln(env.out)
	for _, r := range results {
		if r.err != nil {
			failed++
		}
		fmt.Fprintln(env.out, display.Summary(r.ticker, r.decision, r.err))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(tickers))
	}
	return nil
}

func newInteractiveCmd(flags *rootFlags, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Choose ticker, date, analysts and depth through prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), flags, o)
		},
	}
}

func newHistoryCmd(flags *rootFlags, o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [TICKER]",
		Short: "List past runs and their decisions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ticker := ""
			if len(args) == 1 {
				ticker = strings.ToUpper(strings.TrimSpace(args[0]))
			}
			return showHistory(cmd.Context(), cfg, o, ticker, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func showHistory(ctx context.Context, cfg *config.Config, o *options, ticker string, limit int) error {
	store, err := storage.OpenFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx, ticker, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		display.Info(o.out, "No runs recorded yet.")
		return nil
	}
	for _, s := range sessions {
		action := "-"
		if rec, err := store.GetDecision(ctx, s.ID); err != nil {
			return err
		} else if rec != nil {
			action = string(rec.Decision.Action)
		}
		fmt.Fprintf(o.out, "%s  %-10s %s  %-8s %-5s %s\n",
			s.CreatedAt.Format("2006-01-02 15:04"), s.Ticker, s.TradeDate, s.Status, action, s.ID)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cortextrader %s\n", Version)
		},
	}
}
