// Package marketdata is the time-series provider boundary for the analytics
// core. It owns the SQLite bar store; everything above it works on
// already-materialized domain.Series values and never touches the database.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_bars (
	symbol         TEXT NOT NULL,
	date           TEXT NOT NULL,
	open           REAL NOT NULL,
	high           REAL NOT NULL,
	low            REAL NOT NULL,
	close          REAL NOT NULL,
	adjusted_close REAL NOT NULL,
	volume         INTEGER NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_bars_date ON daily_bars(date);

CREATE TABLE IF NOT EXISTS sentiment_daily (
	symbol        TEXT NOT NULL,
	date          TEXT NOT NULL,
	avg_sentiment REAL NOT NULL,
	article_count INTEGER NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS risk_scores (
	symbol     TEXT NOT NULL,
	date       TEXT NOT NULL,
	score      REAL NOT NULL,
	level      TEXT NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS calc_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store provides read/write access to daily bars and sentiment aggregates.
// Reads are safe for concurrent use; bars are append-only by convention.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (and migrates) the bar store at the given path.
// Use "file::memory:?cache=shared" style paths for tests.
func Open(path string, log zerolog.Logger) (*Store, error) {
	connStr := path
	if path != ":memory:" && len(path) > 0 && path[0] != 'f' {
		// WAL with NORMAL sync is the standard profile for on-disk stores.
		connStr = path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar store: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping bar store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply bar store schema: %w", err)
	}

	return &Store{
		db:  db,
		log: logger.Component(log, "marketdata"),
	}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBars upserts a batch of bars for one symbol inside a transaction.
func (s *Store) SaveBars(symbol string, bars []domain.Bar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_bars (symbol, date, open, high, low, close, adjusted_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, adjusted_close = excluded.adjusted_close,
			volume = excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare bar insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert bar %s/%s: %w", symbol, b.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	s.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Saved bars")
	return nil
}

// BarsBetween returns the bar series for one symbol, ascending by date.
// Empty from/to bounds are open-ended.
func (s *Store) BarsBetween(symbol, from, to string) (domain.Series, error) {
	query := `
		SELECT date, open, high, low, close, adjusted_close, volume
		FROM daily_bars
		WHERE symbol = ?`
	args := []any{symbol}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := domain.Series{Symbol: symbol}
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return domain.Series{}, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		series.Bars = append(series.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return domain.Series{}, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}
	return series, nil
}

// SaveSentiment upserts one sentiment aggregate.
func (s *Store) SaveSentiment(symbol, date string, point domain.SentimentPoint) error {
	_, err := s.db.Exec(`
		INSERT INTO sentiment_daily (symbol, date, avg_sentiment, article_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			avg_sentiment = excluded.avg_sentiment,
			article_count = excluded.article_count`,
		symbol, date, point.AvgSentiment, point.ArticleCount)
	if err != nil {
		return fmt.Errorf("failed to save sentiment %s/%s: %w", symbol, date, err)
	}
	return nil
}

// SentimentBetween returns sentiment aggregates keyed by date.
// Dates with no news are simply absent from the map.
func (s *Store) SentimentBetween(symbol, from, to string) (map[string]domain.SentimentPoint, error) {
	query := `SELECT date, avg_sentiment, article_count FROM sentiment_daily WHERE symbol = ?`
	args := []any{symbol}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment for %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make(map[string]domain.SentimentPoint)
	for rows.Next() {
		var date string
		var p domain.SentimentPoint
		if err := rows.Scan(&date, &p.AvgSentiment, &p.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment for %s: %w", symbol, err)
		}
		out[date] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentiment for %s: %w", symbol, err)
	}
	return out, nil
}

// Symbols lists every symbol with at least one bar.
func (s *Store) Symbols() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM daily_bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// SaveRiskScores upserts one day's composite scores for a batch of symbols.
// The accumulated history backs the risk-driven backtest strategy.
func (s *Store) SaveRiskScores(date string, scores map[string]ScoredLevel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO risk_scores (symbol, date, score, level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			score = excluded.score, level = excluded.level`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare risk score insert: %w", err)
	}
	defer stmt.Close()

	for symbol, sc := range scores {
		if _, err := stmt.Exec(symbol, date, sc.Score, string(sc.Level)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert risk score %s/%s: %w", symbol, date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit risk scores: %w", err)
	}
	s.log.Debug().Str("date", date).Int("symbols", len(scores)).Msg("Saved risk scores")
	return nil
}

// ScoredLevel is the persisted slice of a composite score.
type ScoredLevel struct {
	Score float64
	Level domain.RiskLevel
}

// RiskScores returns the full score history for one symbol keyed by date.
func (s *Store) RiskScores(symbol string) (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT date, score FROM risk_scores WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk scores for %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var date string
		var score float64
		if err := rows.Scan(&date, &score); err != nil {
			return nil, fmt.Errorf("failed to scan risk score for %s: %w", symbol, err)
		}
		out[date] = score
	}
	return out, rows.Err()
}

// CachePut stores an opaque computed artifact under a key. Used by the
// analytics layer for expensive intermediates like covariance matrices.
func (s *Store) CachePut(key string, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO calc_cache (cache_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// CacheGet retrieves a cached artifact; the bool reports presence.
func (s *Store) CacheGet(key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM calc_cache WHERE cache_key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return payload, true, nil
}

// LatestDate returns the most recent bar date for a symbol, or "" when the
// symbol has no bars.
func (s *Store) LatestDate(symbol string) (string, error) {
	var date sql.NullString
	err := s.db.QueryRow(`SELECT MAX(date) FROM daily_bars WHERE symbol = ?`, symbol).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest date for %s: %w", symbol, err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}
