package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantlab/riskcore/pkg/logger"
)

// CacheStore is the persistence the calculation cache sits on.
type CacheStore interface {
	CacheGet(key string) ([]byte, bool, error)
	CachePut(key string, payload []byte) error
}

// Cache memoizes covariance results keyed by the universe fingerprint
// (sorted symbols, window, last bar date). Entries are msgpack-encoded.
// A cache miss or decode failure is never fatal; the caller recomputes.
type Cache struct {
	store CacheStore
	log   zerolog.Logger
}

func NewCache(store CacheStore, log zerolog.Logger) *Cache {
	return &Cache{store: store, log: logger.Component(log, "calc_cache")}
}

// CovarianceKey fingerprints a covariance request. Symbol order does not
// matter; the as-of date keys out stale entries after new bars arrive.
func CovarianceKey(symbols []string, window int, asOf string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("cov:%s:%d:%s", hex.EncodeToString(sum[:8]), window, asOf)
}

// GetCovariance returns a cached covariance result, or nil on miss.
func (c *Cache) GetCovariance(key string) *CovarianceResult {
	if c == nil || c.store == nil {
		return nil
	}
	payload, ok, err := c.store.CacheGet(key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil
	}
	if !ok {
		return nil
	}
	var out CovarianceResult
	if err := msgpack.Unmarshal(payload, &out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache entry corrupt, ignoring")
		return nil
	}
	return &out
}

// PutCovariance stores a covariance result. Failures are logged, not
// returned; caching is best effort.
func (c *Cache) PutCovariance(key string, result *CovarianceResult) {
	if c == nil || c.store == nil {
		return
	}
	payload, err := msgpack.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return
	}
	if err := c.store.CachePut(key, payload); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
