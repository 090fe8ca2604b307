// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/quantlab/riskcore/internal/domain"
)

// RiskWeights holds the component weights for the composite risk score.
// The four weights must sum to 1.0; configurations that don't are rejected
// rather than silently renormalized.
type RiskWeights struct {
	Volatility float64
	Drawdown   float64
	Sentiment  float64
	Liquidity  float64
}

// Sum returns the total of the four weights.
func (w RiskWeights) Sum() float64 {
	return w.Volatility + w.Drawdown + w.Sentiment + w.Liquidity
}

// Validate rejects weight sets that do not sum to 1.0 within 1e-9.
func (w RiskWeights) Validate() error {
	if w.Volatility < 0 || w.Drawdown < 0 || w.Sentiment < 0 || w.Liquidity < 0 {
		return domain.NewInvalidConfiguration("risk weights must be non-negative")
	}
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return domain.NewInvalidConfiguration(
			fmt.Sprintf("risk weights must sum to 1.0, got %.12f", w.Sum()))
	}
	return nil
}

// RiskThresholds partitions risk scores into Low/Medium/High bands.
type RiskThresholds struct {
	Low    float64 // scores below this are Low
	Medium float64 // scores below this (and >= Low) are Medium
}

// Validate rejects threshold pairs outside (0,1) or out of order.
func (t RiskThresholds) Validate() error {
	if t.Low <= 0 || t.Medium >= 1 || t.Low >= t.Medium {
		return domain.NewInvalidConfiguration(
			fmt.Sprintf("risk thresholds must satisfy 0 < low < medium < 1, got low=%.3f medium=%.3f", t.Low, t.Medium))
	}
	return nil
}

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for the bar store (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	RiskWeights    RiskWeights
	RiskThresholds RiskThresholds
	ClassifierPath string // Optional trained classifier artifact; empty disables it
	MarketSymbol   string // Market proxy for beta and regime detection

	// Analytics defaults. Each is an explicit parameter at the API boundary;
	// these only seed the defaults when a request omits a value.
	VaRConfidence   float64
	MonteCarloPaths int
	MonteCarloDays  int
	RiskFreeRate    float64
	LookbackDays    int
	RefreshSchedule string // cron spec for the daily score refresh
	ScoringWorkers  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISKCORE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("RISKCORE_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		RiskWeights: RiskWeights{
			Volatility: getEnvAsFloat("RISK_WEIGHT_VOLATILITY", 0.40),
			Drawdown:   getEnvAsFloat("RISK_WEIGHT_DRAWDOWN", 0.30),
			Sentiment:  getEnvAsFloat("RISK_WEIGHT_SENTIMENT", 0.20),
			Liquidity:  getEnvAsFloat("RISK_WEIGHT_LIQUIDITY", 0.10),
		},
		RiskThresholds: RiskThresholds{
			Low:    getEnvAsFloat("RISK_THRESHOLD_LOW", 0.4),
			Medium: getEnvAsFloat("RISK_THRESHOLD_MEDIUM", 0.6),
		},
		ClassifierPath:  getEnv("RISK_CLASSIFIER_PATH", ""),
		MarketSymbol:    getEnv("MARKET_SYMBOL", "SPY"),
		VaRConfidence:   getEnvAsFloat("VAR_CONFIDENCE", 0.95),
		MonteCarloPaths: getEnvAsInt("MONTE_CARLO_PATHS", 500),
		MonteCarloDays:  getEnvAsInt("MONTE_CARLO_DAYS", 30),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.05),
		LookbackDays:    getEnvAsInt("LOOKBACK_DAYS", 252),
		RefreshSchedule: getEnv("SCORE_REFRESH_SCHEDULE", "30 17 * * *"),
		ScoringWorkers:  getEnvAsInt("SCORING_WORKERS", 8),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before any computation runs.
func (c *Config) Validate() error {
	if err := c.RiskWeights.Validate(); err != nil {
		return err
	}
	if err := c.RiskThresholds.Validate(); err != nil {
		return err
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		return domain.NewInvalidConfiguration(
			fmt.Sprintf("VaR confidence must be in (0,1), got %.3f", c.VaRConfidence))
	}
	if c.MonteCarloPaths <= 0 || c.MonteCarloDays <= 0 {
		return domain.NewInvalidConfiguration("Monte Carlo paths and horizon must be positive")
	}
	if c.LookbackDays <= 1 {
		return domain.NewInvalidConfiguration("lookback days must be greater than 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
