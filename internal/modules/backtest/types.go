// Package backtest simulates trading strategies bar-by-bar over historical
// data. The simulator is two-state (flat or fully long), never shorts, and
// only ever acts on information available at the current bar.
package backtest

// Strategy identifiers accepted by the engine.
const (
	StrategyBuyAndHold    = "buy_and_hold"
	StrategyMovingAverage = "moving_average"
	StrategyRiskBased     = "risk_based"
	StrategyMeanReversion = "mean_reversion"
)

// Params are the per-strategy knobs; unset values take defaults.
type Params struct {
	ShortWindow   int     `json:"short_window"`   // moving_average
	LongWindow    int     `json:"long_window"`    // moving_average
	RiskThreshold float64 `json:"risk_threshold"` // risk_based
	Lookback      int     `json:"lookback"`       // mean_reversion
	ZEntry        float64 `json:"z_entry"`        // mean_reversion
	ZExit         float64 `json:"z_exit"`         // mean_reversion
}

// defaults fills unset parameters in place.
func (p *Params) defaults() {
	if p.ShortWindow == 0 {
		p.ShortWindow = 20
	}
	if p.LongWindow == 0 {
		p.LongWindow = 50
	}
	if p.RiskThreshold == 0 {
		p.RiskThreshold = 0.6
	}
	if p.Lookback == 0 {
		p.Lookback = 20
	}
	if p.ZEntry == 0 {
		p.ZEntry = -1.0
	}
	if p.ZExit == 0 {
		p.ZExit = 0.5
	}
}

// Request describes one backtest run.
type Request struct {
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
	StartDate      string  `json:"start_date,omitempty"`
	EndDate        string  `json:"end_date,omitempty"`
	Params         Params  `json:"params"`
}

// Trade is one executed action. Context fields (risk score, z-score) are
// set only by the strategies that trade on them.
type Trade struct {
	Date      string   `json:"date"`
	Action    string   `json:"action"` // BUY or SELL
	Price     float64  `json:"price"`
	Shares    float64  `json:"shares"`
	RiskScore *float64 `json:"risk_score,omitempty"`
	ZScore    *float64 `json:"z_score,omitempty"`
}

// EquityPoint is the portfolio value on one bar, with the buy-and-hold
// benchmark alongside.
type EquityPoint struct {
	Date      string  `json:"date"`
	Equity    float64 `json:"equity"`
	Benchmark float64 `json:"benchmark"`
}

// Metrics are the standard performance statistics of one run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualReturn     float64 `json:"annual_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	AnnualVolatility float64 `json:"annual_volatility"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	BenchmarkReturn  float64 `json:"benchmark_return"`
	FinalEquity      float64 `json:"final_equity"`
}

// MAPoint carries the moving averages for charting a moving_average run.
type MAPoint struct {
	Date    string   `json:"date"`
	ShortMA *float64 `json:"short_ma"`
	LongMA  *float64 `json:"long_ma"`
	Close   float64  `json:"close"`
}

// Result is a completed backtest run.
type Result struct {
	RunID          string        `json:"run_id"`
	Symbol         string        `json:"symbol"`
	Strategy       string        `json:"strategy"`
	InitialCapital float64       `json:"initial_capital"`
	StartDate      string        `json:"start_date"`
	EndDate        string        `json:"end_date"`
	DataPoints     int           `json:"data_points"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Trades         []Trade       `json:"trades"`
	Metrics        Metrics       `json:"metrics"`
	MAData         []MAPoint     `json:"ma_data,omitempty"`
}
