package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortextrader_stage_duration_seconds",
			Help:    "Agent stage execution time in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	StageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_stage_outcomes_total",
			Help: "Agent stage results by status",
		},
		[]string{"stage", "status"}, // status: ok|degraded|error
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_tool_calls_total",
			Help: "Tool invocations made from the tool-call loop",
		},
		[]string{"stage", "tool", "status"}, // status: ok|error|unknown
	)

	IterationCapHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_iteration_cap_hits_total",
			Help: "Stages force-terminated by the tool-call iteration cap",
		},
		[]string{"stage"},
	)

	LLMRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_llm_retries_total",
			Help: "Chat completions retried after a provider failure",
		},
		[]string{"stage"},
	)

	DebateRounds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortextrader_debate_rounds",
			Help:    "Completed rounds when a debate reaches its judge",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"debate"},
	)

	SignalExtractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_signal_extractions_total",
			Help: "Decision extractions by phase and action",
		},
		[]string{"phase", "action"}, // phase: structured|fallback
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortextrader_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StageDuration,
		StageOutcomes,
		ToolCalls,
		IterationCapHits,
		LLMRetries,
		DebateRounds,
		SignalExtractions,
		RunsTotal,
	}
}

// Register adds all collectors to reg. Already-registered collectors are ignored.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegisterDefault registers against the default registry once per process.
func MustRegisterDefault() {
	registerOnce.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
