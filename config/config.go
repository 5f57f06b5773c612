package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/pkg/errors"
)

// DepthProfile is what one research-depth setting buys: debate rounds on
// both debates and the per-stage tool-call iteration cap.
type DepthProfile struct {
	DebateRounds   int `json:"debate_rounds"`
	RiskRounds     int `json:"risk_rounds"`
	ToolIterations int `json:"tool_iterations"`
}

const (
	MinResearchDepth = 1
	MaxResearchDepth = 5
)

// DefaultDepthProfiles is the stock depth table. It is only a default; the
// settings file may replace any entry.
func DefaultDepthProfiles() map[int]DepthProfile {
	return map[int]DepthProfile{
		1: {DebateRounds: 1, RiskRounds: 1, ToolIterations: 4},
		2: {DebateRounds: 1, RiskRounds: 1, ToolIterations: 6},
		3: {DebateRounds: 2, RiskRounds: 2, ToolIterations: 8},
		4: {DebateRounds: 2, RiskRounds: 2, ToolIterations: 10},
		5: {DebateRounds: 3, RiskRounds: 3, ToolIterations: 12},
	}
}

type Config struct {
	ResultsDir   string `json:"results_dir" envconfig:"RESULTS_DIR"`
	DataDir      string `json:"data_dir" envconfig:"DATA_DIR"`
	DataCacheDir string `json:"data_cache_dir" envconfig:"DATA_CACHE_DIR"`
	DBPath       string `json:"db_path" envconfig:"CORTEXTRADER_DB_PATH"`

	LLMProvider    string `json:"llm_provider" envconfig:"LLM_PROVIDER"`
	DeepThinkLLM   string `json:"deep_think_llm" envconfig:"DEEP_THINK_LLM"`
	QuickThinkLLM  string `json:"quick_think_llm" envconfig:"QUICK_THINK_LLM"`
	BackendURL     string `json:"backend_url" envconfig:"BACKEND_URL"`
	MaxTokens      int    `json:"max_tokens" envconfig:"MAX_TOKENS"`
	DeepSeekAPIKey string `json:"-" envconfig:"DEEPSEEK_API_KEY"`
	OpenAIAPIKey   string `json:"-" envconfig:"OPENAI_API_KEY"`

	Analysts       []string             `json:"analysts" envconfig:"ANALYSTS"`
	ResearchDepth  int                  `json:"research_depth" envconfig:"RESEARCH_DEPTH"`
	DepthProfiles  map[int]DepthProfile `json:"depth_profiles" ignored:"true"`
	MaxRecurLimit  int                  `json:"max_recursion_limit" envconfig:"MAX_RECURSION_LIMIT"`
	MarketOverride string               `json:"market_override" envconfig:"MARKET_OVERRIDE"`

	StageTimeout    time.Duration `json:"stage_timeout" envconfig:"STAGE_TIMEOUT"`
	JudgeTimeout    time.Duration `json:"judge_timeout" envconfig:"JUDGE_TIMEOUT"`
	LLMRetryBackoff time.Duration `json:"llm_retry_backoff" envconfig:"LLM_RETRY_BACKOFF"`

	MemoryEnabled    bool   `json:"memory_enabled" envconfig:"MEMORY_ENABLED"`
	MemoryDir        string `json:"memory_dir" envconfig:"MEMORY_DIR"`
	EmbeddingModel   string `json:"embedding_model" envconfig:"EMBEDDING_MODEL"`
	EmbeddingBaseURL string `json:"embedding_base_url" envconfig:"EMBEDDING_BASE_URL"`

	CacheEnabled bool          `json:"cache_enabled" envconfig:"CACHE_ENABLED"`
	CacheTTL     time.Duration `json:"cache_ttl" envconfig:"CACHE_TTL"`

	// Longport API Configuration
	LongportAppKey      string `json:"-" envconfig:"LONGPORT_APP_KEY"`
	LongportAppSecret   string `json:"-" envconfig:"LONGPORT_APP_SECRET"`
	LongportAccessToken string `json:"-" envconfig:"LONGPORT_ACCESS_TOKEN"`

	FinnhubAPIKey string  `json:"-" envconfig:"CORTEXTRADER_FINNHUB_API_KEY"`
	FinnhubRPS    float64 `json:"finnhub_rps" envconfig:"FINNHUB_RPS"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled" envconfig:"EINO_DEBUG_ENABLED"`
	EinoDebugPort    int  `json:"eino_debug_port" envconfig:"EINO_DEBUG_PORT"`

	LogLevel    string `json:"log_level" envconfig:"LOG_LEVEL"`
	Debug       bool   `json:"debug" envconfig:"CORTEXTRADER_DEBUG"`
	MetricsAddr string `json:"metrics_addr" envconfig:"METRICS_ADDR"`
}

// DefaultConfig returns defaults rooted at the working directory, overlaid
// with .env and the process environment.
func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()
	if err := cfg.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config: ignoring environment: %v\n", err)
	}
	return cfg
}

// DefaultConfigWithRoot returns defaults with every path under root and no
// environment applied.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		DBPath:       filepath.Join(root, "data", "cortextrader.db"),

		LLMProvider:   "deepseek",
		DeepThinkLLM:  "deepseek-reasoner",
		QuickThinkLLM: "deepseek-chat",
		MaxTokens:     4096,

		Analysts:      append([]string(nil), consts.AnalystOrder...),
		ResearchDepth: 1,
		DepthProfiles: DefaultDepthProfiles(),
		MaxRecurLimit: 128,

		StageTimeout:    5 * time.Minute,
		JudgeTimeout:    2 * time.Minute,
		LLMRetryBackoff: 2 * time.Second,

		MemoryEnabled:  false,
		MemoryDir:      filepath.Join(root, "data", "memory"),
		EmbeddingModel: "text-embedding-3-small",

		CacheEnabled: true,
		CacheTTL:     15 * time.Minute,

		FinnhubRPS: 1,

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		LogLevel: "info",
	}
}

// LoadEnv overlays set environment variables onto c.
func (c *Config) LoadEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return errors.Wrap(errors.KindConfig, "config.env", err)
	}
	c.Analysts = NormalizeAnalysts(c.Analysts)
	return nil
}

// NormalizeAnalysts lowercases, maps "sentiment" to "social", drops
// duplicates and returns the selection in pipeline order.
func NormalizeAnalysts(in []string) []string {
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "sentiment" {
			a = consts.AnalystSocial
		}
		if a != "" {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for _, a := range consts.AnalystOrder {
		if seen[a] {
			out = append(out, a)
			delete(seen, a)
		}
	}
	// unknown names are kept at the end so Validate can report them
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if seen[a] {
			out = append(out, a)
			delete(seen, a)
		}
	}
	return out
}

// Profile returns the depth profile for the configured research depth.
func (c Config) Profile() DepthProfile {
	if p, ok := c.DepthProfiles[c.ResearchDepth]; ok {
		return p
	}
	return DefaultDepthProfiles()[clampDepth(c.ResearchDepth)]
}

func clampDepth(d int) int {
	if d < MinResearchDepth {
		return MinResearchDepth
	}
	if d > MaxResearchDepth {
		return MaxResearchDepth
	}
	return d
}

func (c *Config) Validate() error {
	const op = "config.validate"
	analysts := NormalizeAnalysts(c.Analysts)
	if len(analysts) == 0 {
		return errors.Wrap(errors.KindConfig, op, errors.ErrNoAnalysts)
	}
	for _, a := range analysts {
		if _, ok := consts.AnalystNode(a); !ok {
			return errors.Wrapf(errors.KindConfig, op, "unknown analyst %q", a)
		}
	}
	if c.ResearchDepth < MinResearchDepth || c.ResearchDepth > MaxResearchDepth {
		return errors.Wrap(errors.KindConfig, op, errors.ErrInvalidDepth)
	}
	for depth, p := range c.DepthProfiles {
		if p.DebateRounds < 0 || p.RiskRounds < 0 {
			return errors.Wrapf(errors.KindConfig, op, "depth %d: negative round count", depth)
		}
		if p.ToolIterations < 1 {
			return errors.Wrapf(errors.KindConfig, op, "depth %d: tool iterations must be positive", depth)
		}
	}
	if c.MaxRecurLimit < 1 {
		return errors.Wrapf(errors.KindConfig, op, "max recursion limit must be positive")
	}
	switch strings.ToLower(c.LLMProvider) {
	case "deepseek", "openai":
	default:
		return errors.Wrapf(errors.KindConfig, op, "unsupported llm provider %q", c.LLMProvider)
	}
	switch strings.ToUpper(c.MarketOverride) {
	case "", "US", "CN", "HK":
	default:
		return errors.Wrapf(errors.KindConfig, op, "unknown market override %q", c.MarketOverride)
	}
	if c.StageTimeout < 0 || c.JudgeTimeout < 0 || c.LLMRetryBackoff < 0 {
		return errors.Wrapf(errors.KindConfig, op, "timeouts must not be negative")
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.MemoryEnabled {
		dirs = append(dirs, c.MemoryDir)
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
