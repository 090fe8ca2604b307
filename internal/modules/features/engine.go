package features

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/pkg/logger"
)

// MinHistoryBars is the minimum bar count for a symbol to be featurized.
// Below this the longer windows (63d drawdown, 50d volume mean) produce too
// little signal to be worth scoring.
const MinHistoryBars = 100

// Engine turns bar history into FeatureVector rows.
type Engine struct {
	log zerolog.Logger
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: logger.Component(log, "features")}
}

// Compute produces one FeatureVector per bar of the series. The market proxy
// series is optional: without it beta defaults to 1.0 and the market-regime
// block stays unset. Cross-sectional ranks are not filled here; they require
// the whole universe (see ApplyCrossSectionalRanks).
func (e *Engine) Compute(series domain.Series, market *domain.Series) ([]FeatureVector, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if series.Len() < MinHistoryBars {
		return nil, domain.NewInsufficientHistory(
			"not enough history to compute features for "+series.Symbol,
			MinHistoryBars, series.Len())
	}

	n := series.Len()
	close := series.Closes()
	high := make([]float64, n)
	low := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range series.Bars {
		high[i] = b.High
		low[i] = b.Low
		volume[i] = float64(b.Volume)
	}

	dailyRet := pctChange(close, 1)

	vol21 := scale(rollingStd(dailyRet, 21), math.Sqrt(domain.TradingDaysPerYear))
	vol63 := scale(rollingStd(dailyRet, 63), math.Sqrt(domain.TradingDaysPerYear))

	r5 := pctChange(close, 5)
	r10 := pctChange(close, 10)
	r21 := pctChange(close, 21)
	r63 := pctChange(close, 63)

	rsi := maskWarmup(talib.Rsi(close, 14), 14)
	macdLine, macdSignal, macdHist := talib.Macd(close, 12, 26, 9)
	macdLine = maskWarmup(macdLine, 33)
	macdSignal = maskWarmup(macdSignal, 33)
	macdHist = maskWarmup(macdHist, 33)

	bbUpper, bbMiddle, bbLower := talib.BBands(close, 20, 2, 2, 0)
	bbWidth := nanSlice(n)
	bbPos := nanSlice(n)
	for i := 19; i < n; i++ {
		span := bbUpper[i] - bbLower[i]
		if bbMiddle[i] != 0 {
			bbWidth[i] = span / bbMiddle[i]
		}
		if span != 0 {
			bbPos[i] = (close[i] - bbLower[i]) / span
		}
	}

	atr := maskWarmup(talib.Atr(high, low, close, 14), 14)
	atrNorm := nanSlice(n)
	for i := range atr {
		if !math.IsNaN(atr[i]) && close[i] != 0 {
			atrNorm[i] = atr[i] / close[i]
		}
	}

	volMean50 := rollingMean(volume, 50)
	volumeRatio := nanSlice(n)
	for i := range volume {
		if !math.IsNaN(volMean50[i]) && volMean50[i] != 0 {
			volumeRatio[i] = volume[i] / volMean50[i]
		}
	}

	// Trailing drawdown: distance below the 63d rolling peak, then the worst
	// such distance over the trailing 63 days.
	rollPeak := rollingMax(close, 63, 1)
	drawdown := make([]float64, n)
	for i := range close {
		drawdown[i] = (close[i] - rollPeak[i]) / rollPeak[i]
	}
	maxDD63 := rollingMin(drawdown, 63, 1)

	beta := e.betaAgainst(series, dailyRet, market)

	high252 := rollingMax(high, 252, 63)
	low252 := rollingMin(low, 252, 63)
	dist52wHigh := nanSlice(n)
	dist52wLow := nanSlice(n)
	for i := range close {
		if !math.IsNaN(high252[i]) && high252[i] != 0 {
			dist52wHigh[i] = (close[i] - high252[i]) / high252[i]
		}
		if !math.IsNaN(low252[i]) && low252[i] != 0 {
			dist52wLow[i] = (close[i] - low252[i]) / low252[i]
		}
	}

	sma10 := maskWarmup(talib.Sma(close, 10), 9)
	sma50 := maskWarmup(talib.Sma(close, 50), 49)
	smaCross := nanSlice(n)
	for i := range close {
		if !math.IsNaN(sma10[i]) && !math.IsNaN(sma50[i]) && sma50[i] != 0 {
			smaCross[i] = (sma10[i] - sma50[i]) / sma50[i]
		}
	}

	downDay := nanSlice(n)
	downVolume := nanSlice(n)
	for i := range dailyRet {
		if math.IsNaN(dailyRet[i]) {
			continue
		}
		downDay[i] = 0
		downVolume[i] = 0
		if dailyRet[i] < 0 {
			downDay[i] = 1
			downVolume[i] = volume[i]
		}
	}
	downVolSum := rollingSum(downVolume, 21)
	volSum21 := rollingSum(volume, 21)
	downVolumeRatio := nanSlice(n)
	for i := range downVolSum {
		if !math.IsNaN(downVolSum[i]) && volSum21[i] != 0 {
			downVolumeRatio[i] = downVolSum[i] / volSum21[i]
		}
	}
	consecDown := rollingSum(downDay, 10)

	vectors := make([]FeatureVector, n)
	for i, bar := range series.Bars {
		v := FeatureVector{Symbol: series.Symbol, Date: bar.Date}
		v.DailyReturn = opt(dailyRet, i)
		v.Volatility21 = opt(vol21, i)
		v.Volatility63 = opt(vol63, i)
		v.Return5 = opt(r5, i)
		v.Return10 = opt(r10, i)
		v.Return21 = opt(r21, i)
		v.Return63 = opt(r63, i)
		v.RSI14 = opt(rsi, i)
		v.MACDLine = opt(macdLine, i)
		v.MACDSignal = opt(macdSignal, i)
		v.MACDHistogram = opt(macdHist, i)
		v.BBWidth = opt(bbWidth, i)
		v.BBPosition = opt(bbPos, i)
		v.ATR14 = opt(atrNorm, i)
		v.VolumeRatio = opt(volumeRatio, i)
		v.MaxDrawdown63 = opt(maxDD63, i)
		v.Beta63 = opt(beta, i)
		v.DistFrom52wHigh = opt(dist52wHigh, i)
		v.DistFrom52wLow = opt(dist52wLow, i)
		v.DownVolumeRatio = opt(downVolumeRatio, i)
		v.SMACross = opt(smaCross, i)
		v.ConsecDown = opt(consecDown, i)

		if v.Volatility21 != nil && v.Volatility63 != nil {
			v.VolChange = ptr(*v.Volatility21 - *v.Volatility63)
		}
		if v.Return5 != nil && v.Return21 != nil {
			v.MomentumReversal = ptr(*v.Return5 - *v.Return21)
		}
		if v.Return21 != nil && v.Volatility21 != nil && *v.Volatility21 != 0 {
			v.ReturnVolAdj = ptr(*v.Return21 / *v.Volatility21)
		}
		if v.RSI14 != nil {
			v.RSIOverbought = indicator(*v.RSI14 > 70)
			v.RSIOversold = indicator(*v.RSI14 < 30)
		}
		if v.Beta63 != nil && v.Volatility21 != nil {
			v.BetaVolInter = ptr(*v.Beta63 * *v.Volatility21)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// betaAgainst joins the market proxy's daily returns onto the symbol's dates
// and computes the rolling 63d beta. Without a proxy, beta is pinned to 1.0.
func (e *Engine) betaAgainst(series domain.Series, dailyRet []float64, market *domain.Series) []float64 {
	n := series.Len()
	if market == nil {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	marketRet := make(map[string]float64, market.Len())
	mClose := market.Closes()
	for i := 1; i < market.Len(); i++ {
		if mClose[i-1] != 0 {
			marketRet[market.Bars[i].Date] = mClose[i]/mClose[i-1] - 1
		}
	}

	aligned := nanSlice(n)
	for i, bar := range series.Bars {
		if r, ok := marketRet[bar.Date]; ok {
			aligned[i] = r
		}
	}
	return rollingBeta(dailyRet, aligned, 63)
}

// RegimePoint is the market-regime block for one date, derived from the
// proxy index: 21d annualized vol, 21d return, and a flag set when proxy vol
// exceeds its own trailing 252d 75th percentile.
type RegimePoint struct {
	Vol21    float64
	Return21 float64
	HighVol  bool
}

// ComputeMarketRegime builds the per-date regime map from the proxy series.
// Dates whose windows have not filled are absent.
func ComputeMarketRegime(market domain.Series) map[string]RegimePoint {
	close := market.Closes()
	ret := pctChange(close, 1)
	vol21 := scale(rollingStd(ret, 21), math.Sqrt(domain.TradingDaysPerYear))
	ret21 := pctChange(close, 21)
	volP75 := rollingQuantile(vol21, 252, 0.75)

	out := make(map[string]RegimePoint)
	for i, bar := range market.Bars {
		if math.IsNaN(vol21[i]) || math.IsNaN(ret21[i]) {
			continue
		}
		p := RegimePoint{Vol21: vol21[i], Return21: ret21[i]}
		if !math.IsNaN(volP75[i]) {
			p.HighVol = vol21[i] > volP75[i]
		}
		out[bar.Date] = p
	}
	return out
}

// ApplyMarketRegime merges the regime block onto feature vectors by date.
func ApplyMarketRegime(vectors []FeatureVector, regime map[string]RegimePoint) {
	for i := range vectors {
		p, ok := regime[vectors[i].Date]
		if !ok {
			continue
		}
		vectors[i].MarketVol21 = ptr(p.Vol21)
		vectors[i].MarketReturn21 = ptr(p.Return21)
		vectors[i].HighVolRegime = indicator(p.HighVol)
	}
}

// ComputeUniverse featurizes every series, fills cross-sectional ranks and
// the market-regime block, and returns vectors keyed by symbol. Symbols with
// too little history are skipped with a warning; an error is returned only
// when no symbol qualifies.
func (e *Engine) ComputeUniverse(universe []domain.Series, market *domain.Series) (map[string][]FeatureVector, error) {
	out := make(map[string][]FeatureVector, len(universe))
	for _, s := range universe {
		vectors, err := e.Compute(s, market)
		if err != nil {
			if domain.KindOf(err) == domain.KindInsufficientHistory {
				e.log.Warn().Str("symbol", s.Symbol).Int("bars", s.Len()).Msg("Skipping symbol with insufficient history")
				continue
			}
			return nil, err
		}
		out[s.Symbol] = vectors
	}
	if len(out) == 0 {
		return nil, domain.NewInsufficientHistory("no symbol has enough history to featurize", MinHistoryBars, 0)
	}

	ApplyCrossSectionalRanks(out)
	if market != nil {
		regime := ComputeMarketRegime(*market)
		for sym := range out {
			ApplyMarketRegime(out[sym], regime)
		}
	}

	e.log.Debug().Int("symbols", len(out)).Msg("Computed universe features")
	return out, nil
}

func scale(vals []float64, factor float64) []float64 {
	for i := range vals {
		vals[i] *= factor
	}
	return vals
}

// maskWarmup replaces talib's zero-filled warm-up region with NaN so the
// pointer conversion treats it as absent.
func maskWarmup(vals []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(vals); i++ {
		vals[i] = math.NaN()
	}
	return vals
}

func opt(vals []float64, i int) *float64 {
	v := vals[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func ptr(v float64) *float64 { return &v }

func indicator(b bool) *float64 {
	v := 0.0
	if b {
		v = 1.0
	}
	return &v
}
