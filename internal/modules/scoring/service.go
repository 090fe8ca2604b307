package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/config"
	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/marketdata"
	"github.com/quantlab/riskcore/internal/modules/features"
	"github.com/quantlab/riskcore/internal/workers"
	"github.com/quantlab/riskcore/pkg/logger"
)

// sentimentLookbackDays is the trailing window for the per-symbol sentiment
// average feeding the sentiment component.
const sentimentLookbackDays = 7

// DataSource is what the scoring service needs from the bar store.
type DataSource interface {
	Symbols() ([]string, error)
	BarsBetween(symbol, from, to string) (domain.Series, error)
	SentimentBetween(symbol, from, to string) (map[string]domain.SentimentPoint, error)
}

// ScoreSink receives the scored snapshot after each refresh. The store
// implements it to accumulate the score history the backtester replays.
type ScoreSink interface {
	SaveRiskScores(date string, scores map[string]marketdata.ScoredLevel) error
}

// Service scores the whole universe and caches the latest snapshot for the
// API layer. A cron job calls Refresh on a schedule; handlers read Latest.
type Service struct {
	data         DataSource
	engine       *features.Engine
	scorer       Scorer
	thresholds   config.RiskThresholds
	marketSymbol string
	lookbackDays int
	pool         *workers.Pool
	sink         ScoreSink
	log          zerolog.Logger

	mu        sync.RWMutex
	latest    []Result
	inputs    map[string]Input
	updatedAt time.Time
}

func NewService(
	data DataSource,
	engine *features.Engine,
	scorer Scorer,
	thresholds config.RiskThresholds,
	marketSymbol string,
	lookbackDays int,
	pool *workers.Pool,
	log zerolog.Logger,
) (*Service, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		data:         data,
		engine:       engine,
		scorer:       scorer,
		thresholds:   thresholds,
		marketSymbol: marketSymbol,
		lookbackDays: lookbackDays,
		pool:         pool,
		log:          logger.Component(log, "scoring"),
	}, nil
}

// SetSink wires score persistence; nil disables it.
func (s *Service) SetSink(sink ScoreSink) { s.sink = sink }

// ScoreInputs runs one scoring pass over a universe snapshot: normalize
// components, produce headline scores, partition into levels and assign
// descending ranks. The input order does not matter; results come back
// sorted by rank.
func (s *Service) ScoreInputs(inputs []Input) ([]Result, error) {
	if len(inputs) == 0 {
		return []Result{}, nil
	}

	comps, missing := NormalizeComponents(inputs)

	results := make([]Result, len(inputs))
	for i, in := range inputs {
		score, err := s.scorer.Score(in, comps[i])
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", in.Symbol, err)
		}
		results[i] = Result{
			Symbol:           in.Symbol,
			Date:             in.Date,
			Score:            clamp01(score),
			Level:            s.classify(score),
			Components:       comps[i],
			SentimentMissing: missing[i],
			Drivers:          describeDrivers(comps[i]),
		}
	}

	assignRanks(results)

	s.log.Info().
		Int("symbols", len(results)).
		Str("scorer", s.scorer.Name()).
		Msg("Scored universe")
	return results, nil
}

// classify partitions a score into Low/Medium/High.
func (s *Service) classify(score float64) domain.RiskLevel {
	switch {
	case score < s.thresholds.Low:
		return domain.RiskLow
	case score < s.thresholds.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// assignRanks orders by score descending and assigns unique 1-based ranks.
// Tied scores fall back to symbol order so a rerun over the same universe
// always ranks identically.
func assignRanks(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// describeDrivers builds the human-readable driver summary from component
// levels.
func describeDrivers(c Components) string {
	var parts []string
	if c.Volatility > 0.7 {
		parts = append(parts, "High volatility")
	}
	if c.Drawdown > 0.7 {
		parts = append(parts, "Significant drawdown")
	}
	if c.Sentiment > 0.6 {
		parts = append(parts, "Negative news sentiment")
	}
	if c.Liquidity > 0.7 {
		parts = append(parts, "Liquidity concerns")
	}
	if len(parts) == 0 {
		return "Stable conditions"
	}
	return strings.Join(parts, " | ")
}

// Refresh recomputes scores for every symbol in the store and replaces the
// cached snapshot. Called by the scheduler and at startup.
func (s *Service) Refresh(ctx context.Context) error {
	started := time.Now()

	symbols, err := s.data.Symbols()
	if err != nil {
		return fmt.Errorf("failed to list universe: %w", err)
	}
	if len(symbols) == 0 {
		s.log.Warn().Msg("No symbols in store, nothing to score")
		return nil
	}

	from := time.Now().AddDate(0, 0, -s.lookbackDays*2).Format("2006-01-02")

	universe := make([]domain.Series, 0, len(symbols))
	loaded, err := workers.Map(ctx, s.pool, len(symbols), func(_ context.Context, i int) (domain.Series, error) {
		return s.data.BarsBetween(symbols[i], from, "")
	})
	if err != nil {
		return fmt.Errorf("failed to load universe bars: %w", err)
	}
	var market *domain.Series
	for _, series := range loaded {
		if series.Symbol == s.marketSymbol {
			m := series
			market = &m
			continue
		}
		universe = append(universe, series)
	}

	vectors, err := s.engine.ComputeUniverse(universe, market)
	if err != nil {
		return err
	}

	inputs := make([]Input, 0, len(vectors))
	for _, series := range universe {
		vs, ok := vectors[series.Symbol]
		if !ok || len(vs) == 0 {
			continue
		}
		in, err := s.buildInput(series, vs)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	results, err := s.ScoreInputs(inputs)
	if err != nil {
		return err
	}

	bySymbol := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		bySymbol[in.Symbol] = in
	}

	s.mu.Lock()
	s.latest = results
	s.inputs = bySymbol
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.persistScores(results)

	s.log.Info().
		Int("scored", len(results)).
		Dur("elapsed", time.Since(started)).
		Msg("Universe score refresh complete")
	return nil
}

// persistScores appends the snapshot to the score history, grouped by score
// date. Persistence failures are logged, not fatal; the in-memory snapshot
// already serves reads.
func (s *Service) persistScores(results []Result) {
	if s.sink == nil || len(results) == 0 {
		return
	}
	byDate := make(map[string]map[string]marketdata.ScoredLevel)
	for _, r := range results {
		if byDate[r.Date] == nil {
			byDate[r.Date] = make(map[string]marketdata.ScoredLevel)
		}
		byDate[r.Date][r.Symbol] = marketdata.ScoredLevel{Score: r.Score, Level: r.Level}
	}
	for date, scores := range byDate {
		if err := s.sink.SaveRiskScores(date, scores); err != nil {
			s.log.Error().Err(err).Str("date", date).Msg("Failed to persist risk scores")
		}
	}
}

// buildInput assembles the scoring input for one symbol from its latest
// feature vector, trailing sentiment and volume-based liquidity risk.
func (s *Service) buildInput(series domain.Series, vectors []features.FeatureVector) (Input, error) {
	latest := vectors[len(vectors)-1]

	in := Input{
		Symbol:     series.Symbol,
		Date:       latest.Date,
		Volatility: latest.Volatility21,
		Features:   &latest,
	}
	if latest.MaxDrawdown63 != nil {
		mag := -*latest.MaxDrawdown63
		if mag < 0 {
			mag = 0
		}
		in.DrawdownMagnitude = &mag
	}
	if liq := liquidityRisk(series); !math.IsNaN(liq) {
		in.LiquidityRisk = &liq
	}

	sentiment, err := s.trailingSentiment(series.Symbol, latest.Date)
	if err != nil {
		return Input{}, err
	}
	in.Sentiment = sentiment
	return in, nil
}

// trailingSentiment averages the sentiment points of the trailing week.
// nil means no news at all in the window.
func (s *Service) trailingSentiment(symbol, asOf string) (*float64, error) {
	asOfDate, err := time.Parse("2006-01-02", asOf)
	if err != nil {
		return nil, fmt.Errorf("bad as-of date %q: %w", asOf, err)
	}
	from := asOfDate.AddDate(0, 0, -sentimentLookbackDays).Format("2006-01-02")

	points, err := s.data.SentimentBetween(symbol, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load sentiment for %s: %w", symbol, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	var sum float64
	for _, p := range points {
		sum += p.AvgSentiment
	}
	avg := sum / float64(len(points))
	return &avg, nil
}

// liquidityRisk is the trailing 20d coefficient of variation of volume:
// volume std over volume mean, with at least 10 observations.
func liquidityRisk(series domain.Series) float64 {
	n := series.Len()
	window := 20
	if n < window {
		window = n
	}
	if window < 10 {
		return math.NaN()
	}
	vols := series.Bars[n-window:]
	var mean float64
	for _, b := range vols {
		mean += float64(b.Volume)
	}
	mean /= float64(window)
	if mean <= 0 {
		return math.NaN()
	}
	var ss float64
	for _, b := range vols {
		d := float64(b.Volume) - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(window-1))
	return std / mean
}

// Latest returns the cached snapshot from the last refresh.
func (s *Service) Latest() ([]Result, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, time.Time{}, false
	}
	out := make([]Result, len(s.latest))
	copy(out, s.latest)
	return out, s.updatedAt, true
}

// Attribution explains one symbol's latest score.
func (s *Service) Attribution(symbol string, topN int) (Attribution, error) {
	s.mu.RLock()
	results := s.latest
	in, haveInput := s.inputs[symbol]
	s.mu.RUnlock()

	if !haveInput {
		return Attribution{}, domain.NewInvalidConfiguration("no cached score for symbol " + symbol)
	}
	for _, r := range results {
		if r.Symbol == symbol {
			return s.scorer.Attribution(in, r.Components, topN), nil
		}
	}
	return Attribution{}, domain.NewInvalidConfiguration("no cached score for symbol " + symbol)
}
