package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/models"
)

func TestWriteReports(t *testing.T) {
	root := t.TempDir()
	state, err := models.NewAnalysisState("r1", "0700.HK", "2025-03-10", market.Classify("0700.HK"))
	require.NoError(t, err)
	state.SetSection(models.SectionMarket, "uptrend")
	state.SetSection(models.SectionFinalDecision, "BUY it")

	target := decimal.RequireFromString("420")
	d := models.Decision{Action: models.ActionBuy, TargetPrice: &target, Confidence: 0.7, RiskScore: 0.4, Currency: "HKD"}
	dir, err := WriteReports(root, state, d)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "0700.HK", "2025-03-10"), dir)

	md, err := os.ReadFile(filepath.Join(dir, "reports", "market.md"))
	require.NoError(t, err)
	assert.Equal(t, "uptrend", string(md))
	assert.NoFileExists(t, filepath.Join(dir, "reports", "news.md"))

	full, err := os.ReadFile(filepath.Join(dir, "complete_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(full), "## Market Analysis")
	assert.Contains(t, string(full), "## Portfolio Management Decision")
	assert.Contains(t, string(full), "target 420.00 HKD")

	raw, err := os.ReadFile(filepath.Join(dir, "decision.json"))
	require.NoError(t, err)
	var got models.Decision
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, models.ActionBuy, got.Action)

	snap, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(snap), `"run_id": "r1"`)
}

func TestWriteReportsRequiresDir(t *testing.T) {
	state, err := models.NewAnalysisState("r1", "AAPL", "2025-03-10", market.Classify("AAPL"))
	require.NoError(t, err)
	_, err = WriteReports(" ", state, models.NeutralDecision(""))
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "BRK_B", sanitize("BRK/B"))
}
