// cache.go
// In-memory cache of cleaned completion responses, keyed by a hash of the
// request context. Hits skip the network entirely.
package ghosttype

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
)

// completionCache caches cleaned completion text for identical contexts.
type completionCache struct {
	cache  *ristretto.Cache
	logger *slog.Logger
}

// newCompletionCache initializes the ristretto-backed cache. A construction
// failure disables caching rather than failing the engine.
func newCompletionCache(logger *slog.Logger) *completionCache {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "completionCache")
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     16 << 20, // bytes of cached completion text
		BufferItems: 64,
		Metrics:     true,
		Cost: func(value interface{}) int64 {
			if s, ok := value.(string); ok {
				return int64(len(s)) + 1
			}
			return 1
		},
	})
	if err != nil {
		logger.Warn("Failed to initialize completion cache, caching disabled", "error", err)
		return &completionCache{logger: logger}
	}
	return &completionCache{cache: cache, logger: logger}
}

// key derives a stable cache key from everything that shapes the prompt.
func (cc *completionCache) key(cfg Config, ctx CompletionContext) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|", cfg.Model, ctx.Mode, ctx.Language, cfg.CompletionMaxTokens)
	h.Write([]byte(ctx.PrefixText))
	h.Write([]byte{0})
	h.Write([]byte(ctx.SuffixText))
	h.Write([]byte{0})
	h.Write([]byte(ctx.SelectionText))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached completion for the context, if present.
func (cc *completionCache) Get(cfg Config, ctx CompletionContext) (string, bool) {
	if cc == nil || cc.cache == nil {
		return "", false
	}
	v, ok := cc.cache.Get(cc.key(cfg, ctx))
	if !ok {
		return "", false
	}
	text, ok := v.(string)
	if !ok {
		return "", false
	}
	cc.logger.Debug("Completion cache hit", "file", ctx.FileName)
	return text, true
}

// Set stores a cleaned completion with the configured TTL. A zero TTL
// disables caching.
func (cc *completionCache) Set(cfg Config, ctx CompletionContext, text string) {
	if cc == nil || cc.cache == nil || cfg.CacheTTLSeconds <= 0 || text == "" {
		return
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cc.cache.SetWithTTL(cc.key(cfg, ctx), text, 0, ttl)
}

// Clear drops every cached entry. Called on config updates.
func (cc *completionCache) Clear() {
	if cc == nil || cc.cache == nil {
		return
	}
	cc.cache.Clear()
}

// Metrics exposes ristretto's hit/miss counters for the debug endpoint.
func (cc *completionCache) Metrics() *ristretto.Metrics {
	if cc == nil || cc.cache == nil {
		return nil
	}
	return cc.cache.Metrics
}

// Close releases cache resources.
func (cc *completionCache) Close() {
	if cc == nil || cc.cache == nil {
		return
	}
	cc.cache.Close()
}
