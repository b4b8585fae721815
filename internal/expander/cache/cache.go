// Package cache memoises module answers per (term, module, options). An
// in-process LRU with TTL is always consulted first; Redis can be added as a
// shared second tier for several replicas. Concurrent misses for the same
// key are coalesced.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
)

const keyPrefix = "qe:sugg:"

// Remote is the shared tier. *redis.Client implements it.
type Remote interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type SuggestionCache struct {
	local   *expirable.LRU[string, []module.Suggestion]
	remote  Remote
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache. remote and m may be nil.
func New(cfg config.CacheConfig, remote Remote, m *metrics.Metrics) *SuggestionCache {
	size := cfg.Size
	if size <= 0 {
		size = 10000
	}
	return &SuggestionCache{
		local:   expirable.NewLRU[string, []module.Suggestion](size, nil, cfg.TTL),
		remote:  remote,
		ttl:     cfg.TTL,
		metrics: m,
		logger:  slog.Default().With("component", "suggestion-cache"),
	}
}

// GetOrCompute returns the cached answer for the key or runs compute once
// for all concurrent callers. Errors are never cached. Callers must not
// modify the returned slice.
//
// The shared compute runs on a context detached from any one caller's
// cancellation, so compute must bound itself. A caller whose ctx ends stops
// waiting and gets ctx.Err(); the other callers still get the answer.
func (c *SuggestionCache) GetOrCompute(
	ctx context.Context,
	term, moduleID string,
	opts module.Options,
	compute func(ctx context.Context) ([]module.Suggestion, error),
) ([]module.Suggestion, error) {
	key := buildKey(term, moduleID, opts)
	if sugs, ok := c.lookup(ctx, key); ok {
		return sugs, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if sugs, ok := c.local.Get(key); ok {
			return sugs, nil
		}
		sugs, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.store(shared, key, sugs)
		return sugs, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]module.Suggestion), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SuggestionCache) lookup(ctx context.Context, key string) ([]module.Suggestion, bool) {
	if sugs, ok := c.local.Get(key); ok {
		c.hit("local")
		return sugs, true
	}
	if c.remote != nil {
		data, found, err := c.remote.Load(ctx, key)
		switch {
		case err != nil:
			c.logger.Error("cache get failed", "key", key, "error", err)
		case found:
			var sugs []module.Suggestion
			if err := json.Unmarshal(data, &sugs); err != nil {
				c.logger.Error("cache unmarshal failed", "key", key, "error", err)
				break
			}
			c.local.Add(key, sugs)
			c.hit("redis")
			return sugs, true
		}
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, false
}

func (c *SuggestionCache) store(ctx context.Context, key string, sugs []module.Suggestion) {
	c.local.Add(key, sugs)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(sugs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.remote.Store(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *SuggestionCache) hit(tier string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// Invalidate drops every entry in both tiers.
func (c *SuggestionCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		c.logger.Info("cache invalidated")
		return nil
	}
	deleted, err := c.remote.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "redis_keys_deleted", deleted)
	return nil
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
	Redis   bool    `json:"redis"`
}

func (c *SuggestionCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.local.Len(),
		Redis:   c.remote != nil,
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// buildKey hashes the term, module id, k and sorted parameters.
func buildKey(term, moduleID string, opts module.Options) string {
	var b strings.Builder
	b.WriteString(moduleID)
	b.WriteByte(0)
	b.WriteString(term)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(opts.K))
	keys := make([]string, 0, len(opts.Params))
	for k := range opts.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(opts.Params[k])
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
