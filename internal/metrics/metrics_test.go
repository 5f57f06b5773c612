package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg), "second registration is ignored")

	ToolCalls.WithLabelValues("market_analyst", "get_candles", "ok").Inc()
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cortextrader_tool_calls_total")
}

func TestRegisterReportsConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cortextrader_runs_total", Help: "clash"})
	require.NoError(t, reg.Register(clash))

	assert.Error(t, Register(reg))
}

func TestStageOutcomesCount(t *testing.T) {
	ok := StageOutcomes.WithLabelValues("trader", "ok")
	degraded := StageOutcomes.WithLabelValues("trader", "degraded")
	beforeOK, beforeDegraded := counterValue(t, ok), counterValue(t, degraded)

	ok.Inc()
	ok.Inc()
	degraded.Inc()

	assert.Equal(t, beforeOK+2, counterValue(t, ok))
	assert.Equal(t, beforeDegraded+1, counterValue(t, degraded))
}

func TestHandlerServesDefaultRegistry(t *testing.T) {
	assert.NotPanics(t, MustRegisterDefault)
	assert.NotPanics(t, MustRegisterDefault)
	RunsTotal.WithLabelValues("completed").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cortextrader_runs_total{status="completed"}`)
}
