package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/riskcore/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RISKCORE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.40, cfg.RiskWeights.Volatility, 1e-12)
	assert.InDelta(t, 0.30, cfg.RiskWeights.Drawdown, 1e-12)
	assert.InDelta(t, 0.20, cfg.RiskWeights.Sentiment, 1e-12)
	assert.InDelta(t, 0.10, cfg.RiskWeights.Liquidity, 1e-12)
	assert.InDelta(t, 0.4, cfg.RiskThresholds.Low, 1e-12)
	assert.InDelta(t, 0.6, cfg.RiskThresholds.Medium, 1e-12)
	assert.InDelta(t, 0.95, cfg.VaRConfidence, 1e-12)
	assert.Equal(t, 500, cfg.MonteCarloPaths)
	assert.Equal(t, 30, cfg.MonteCarloDays)
	assert.Equal(t, 252, cfg.LookbackDays)
	assert.Equal(t, "SPY", cfg.MarketSymbol)
	assert.Equal(t, "30 17 * * *", cfg.RefreshSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RISKCORE_DATA_DIR", t.TempDir())
	t.Setenv("RISKCORE_PORT", "9999")
	t.Setenv("RISK_WEIGHT_VOLATILITY", "0.25")
	t.Setenv("RISK_WEIGHT_DRAWDOWN", "0.25")
	t.Setenv("RISK_WEIGHT_SENTIMENT", "0.25")
	t.Setenv("RISK_WEIGHT_LIQUIDITY", "0.25")
	t.Setenv("MARKET_SYMBOL", "VTI")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.InDelta(t, 0.25, cfg.RiskWeights.Volatility, 1e-12)
	assert.Equal(t, "VTI", cfg.MarketSymbol)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	t.Setenv("RISKCORE_DATA_DIR", t.TempDir())
	t.Setenv("RISK_WEIGHT_VOLATILITY", "0.50")
	// Sum is now 1.10.

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))
}

func TestRiskWeightsValidate(t *testing.T) {
	good := RiskWeights{Volatility: 0.40, Drawdown: 0.30, Sentiment: 0.20, Liquidity: 0.10}
	assert.NoError(t, good.Validate())

	// Tiny float error within tolerance is fine.
	nearly := RiskWeights{Volatility: 0.40, Drawdown: 0.30, Sentiment: 0.20, Liquidity: 0.10 + 1e-12}
	assert.NoError(t, nearly.Validate())

	bad := RiskWeights{Volatility: 0.40, Drawdown: 0.30, Sentiment: 0.20, Liquidity: 0.05}
	assert.Error(t, bad.Validate())

	negative := RiskWeights{Volatility: 1.40, Drawdown: -0.30, Sentiment: -0.20, Liquidity: 0.10}
	assert.Error(t, negative.Validate())
}

func TestRiskThresholdsValidate(t *testing.T) {
	assert.NoError(t, RiskThresholds{Low: 0.4, Medium: 0.6}.Validate())
	assert.Error(t, RiskThresholds{Low: 0.6, Medium: 0.4}.Validate())
	assert.Error(t, RiskThresholds{Low: 0, Medium: 0.6}.Validate())
	assert.Error(t, RiskThresholds{Low: 0.4, Medium: 1.0}.Validate())
}

func TestConfigValidateBounds(t *testing.T) {
	t.Setenv("RISKCORE_DATA_DIR", t.TempDir())
	t.Setenv("VAR_CONFIDENCE", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))
}
