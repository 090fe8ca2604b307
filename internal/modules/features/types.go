// Package features computes per-symbol engineered feature vectors from bar
// history: volatility, momentum, technical indicators, drawdown, beta and
// liquidity measures, plus cross-sectional ranks over a peer universe and a
// market-regime block derived from a proxy index.
package features

// FeatureVector is the full feature set for one (symbol, date). Optional
// fields are pointers; nil means "window not yet filled", which downstream
// consumers must treat differently from a present zero.
type FeatureVector struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`

	DailyReturn *float64 `json:"daily_return"`

	Volatility21 *float64 `json:"volatility_21d"`
	Volatility63 *float64 `json:"volatility_63d"`

	Return5  *float64 `json:"return_5d"`
	Return10 *float64 `json:"return_10d"`
	Return21 *float64 `json:"return_21d"`
	Return63 *float64 `json:"return_63d"`

	RSI14         *float64 `json:"rsi_14"`
	MACDLine      *float64 `json:"macd_line"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`
	BBWidth       *float64 `json:"bb_width"`
	BBPosition    *float64 `json:"bb_position"`
	ATR14         *float64 `json:"atr_14"` // normalized by close

	VolumeRatio   *float64 `json:"volume_ratio"`
	MaxDrawdown63 *float64 `json:"max_drawdown_63d"`
	Beta63        *float64 `json:"beta_63d"`

	DistFrom52wHigh *float64 `json:"dist_from_52w_high"`
	DistFrom52wLow  *float64 `json:"dist_from_52w_low"`

	VolChange        *float64 `json:"vol_change"`
	MomentumReversal *float64 `json:"momentum_reversal"`
	ReturnVolAdj     *float64 `json:"return_vol_adj"`
	RSIOverbought    *float64 `json:"rsi_overbought"` // 0 or 1
	RSIOversold      *float64 `json:"rsi_oversold"`   // 0 or 1
	DownVolumeRatio  *float64 `json:"down_volume_ratio"`
	SMACross         *float64 `json:"sma_cross"`
	ConsecDown       *float64 `json:"consec_down"`
	BetaVolInter     *float64 `json:"beta_vol_interaction"`

	// Cross-sectional percentile ranks, filled by ApplyCrossSectionalRanks.
	Volatility21Rank *float64 `json:"volatility_21d_rank"`
	Return21Rank     *float64 `json:"return_21d_rank"`
	Beta63Rank       *float64 `json:"beta_63d_rank"`
	VolumeRatioRank  *float64 `json:"volume_ratio_rank"`

	// Market-regime block, filled by ApplyMarketRegime.
	MarketVol21    *float64 `json:"market_vol_21d"`
	MarketReturn21 *float64 `json:"market_return_21d"`
	HighVolRegime  *float64 `json:"high_vol_regime"` // 0 or 1
}

// Get returns a named feature value by its JSON key. The bool reports whether
// the field is present (non-nil). Used by the classifier scorer, which is
// driven by the feature name list in its model artifact.
func (v *FeatureVector) Get(name string) (float64, bool) {
	ptr, ok := v.fieldByName(name)
	if !ok || ptr == nil {
		return 0, false
	}
	return *ptr, true
}

func (v *FeatureVector) fieldByName(name string) (*float64, bool) {
	switch name {
	case "daily_return":
		return v.DailyReturn, true
	case "volatility_21d":
		return v.Volatility21, true
	case "volatility_63d":
		return v.Volatility63, true
	case "return_5d":
		return v.Return5, true
	case "return_10d":
		return v.Return10, true
	case "return_21d":
		return v.Return21, true
	case "return_63d":
		return v.Return63, true
	case "rsi_14":
		return v.RSI14, true
	case "macd_line":
		return v.MACDLine, true
	case "macd_signal":
		return v.MACDSignal, true
	case "macd_histogram":
		return v.MACDHistogram, true
	case "bb_width":
		return v.BBWidth, true
	case "bb_position":
		return v.BBPosition, true
	case "atr_14":
		return v.ATR14, true
	case "volume_ratio":
		return v.VolumeRatio, true
	case "max_drawdown_63d":
		return v.MaxDrawdown63, true
	case "beta_63d":
		return v.Beta63, true
	case "dist_from_52w_high":
		return v.DistFrom52wHigh, true
	case "dist_from_52w_low":
		return v.DistFrom52wLow, true
	case "vol_change":
		return v.VolChange, true
	case "momentum_reversal":
		return v.MomentumReversal, true
	case "return_vol_adj":
		return v.ReturnVolAdj, true
	case "rsi_overbought":
		return v.RSIOverbought, true
	case "rsi_oversold":
		return v.RSIOversold, true
	case "down_volume_ratio":
		return v.DownVolumeRatio, true
	case "sma_cross":
		return v.SMACross, true
	case "consec_down":
		return v.ConsecDown, true
	case "beta_vol_interaction":
		return v.BetaVolInter, true
	case "volatility_21d_rank":
		return v.Volatility21Rank, true
	case "return_21d_rank":
		return v.Return21Rank, true
	case "beta_63d_rank":
		return v.Beta63Rank, true
	case "volume_ratio_rank":
		return v.VolumeRatioRank, true
	case "market_vol_21d":
		return v.MarketVol21, true
	case "market_return_21d":
		return v.MarketReturn21, true
	case "high_vol_regime":
		return v.HighVolRegime, true
	}
	return nil, false
}
