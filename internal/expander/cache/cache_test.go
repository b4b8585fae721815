package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string]string
	gets int
}

func newMemRemote() *memRemote {
	return &memRemote{data: make(map[string]string)}
}

func (r *memRemote) Load(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	v, ok := r.data[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (r *memRemote) Store(_ context.Context, key string, value []byte, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = string(value)
	return nil
}

func (r *memRemote) DeletePrefix(_ context.Context, _ string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.data))
	r.data = make(map[string]string)
	return n, nil
}

var kitten = []module.Suggestion{{Text: "kitten", Module: "lookup", Score: 1, Rank: 1}}

func TestGetOrComputeCaches(t *testing.T) {
	m := metrics.New()
	c := New(config.CacheConfig{Size: 10, TTL: time.Minute}, nil, m)
	var calls int
	compute := func(context.Context) ([]module.Suggestion, error) {
		calls++
		return kitten, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, compute)
		require.NoError(t, err)
		assert.Equal(t, kitten, got)
	}
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.False(t, stats.Redis)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestKeysSeparateOptions(t *testing.T) {
	c := New(config.CacheConfig{Size: 10, TTL: time.Minute}, nil, nil)
	var calls int
	compute := func(context.Context) ([]module.Suggestion, error) {
		calls++
		return kitten, nil
	}
	ctx := context.Background()

	_, _ = c.GetOrCompute(ctx, "cat", "lookup", module.Options{}, compute)
	_, _ = c.GetOrCompute(ctx, "cat", "lookup", module.Options{K: 3}, compute)
	_, _ = c.GetOrCompute(ctx, "cat", "fuzzy", module.Options{}, compute)
	_, _ = c.GetOrCompute(ctx, "cat", "lookup", module.Options{Params: map[string]string{"distance": "2"}}, compute)
	_, _ = c.GetOrCompute(ctx, "cat", "lookup", module.Options{Params: map[string]string{"distance": "2"}}, compute)
	assert.Equal(t, 4, calls)
}

func TestBuildKeyIgnoresParamOrder(t *testing.T) {
	a := buildKey("cat", "m", module.Options{Params: map[string]string{"a": "1", "b": "2"}})
	b := buildKey("cat", "m", module.Options{Params: map[string]string{"b": "2", "a": "1"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, buildKey("cat", "m", module.Options{Params: map[string]string{"a": "12"}}))
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(config.CacheConfig{Size: 10, TTL: time.Minute}, nil, nil)
	boom := errors.New("boom")
	_, err := c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, func(context.Context) ([]module.Suggestion, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, func(context.Context) ([]module.Suggestion, error) {
		return kitten, nil
	})
	require.NoError(t, err)
	assert.Equal(t, kitten, got)
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	c := New(config.CacheConfig{Size: 10, TTL: time.Minute}, nil, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) ([]module.Suggestion, error) {
		calls.Add(1)
		<-release
		return kitten, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, compute)
			assert.NoError(t, err)
			assert.Equal(t, kitten, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestCancelledWaiterLeavesComputeRunning(t *testing.T) {
	c := New(config.CacheConfig{Size: 10, TTL: time.Minute}, nil, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	compute := func(ctx context.Context) ([]module.Suggestion, error) {
		close(started)
		select {
		case <-release:
			return kitten, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(leaderCtx, "cat", "lookup", module.Options{}, compute)
		leaderErr <- err
	}()
	<-started

	type result struct {
		sugs []module.Suggestion
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		got, err := c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, compute)
		follower <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, kitten, res.sugs)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestRedisTier(t *testing.T) {
	remote := newMemRemote()
	m := metrics.New()
	first := New(config.CacheConfig{Size: 10, TTL: time.Minute}, remote, m)
	_, err := first.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, func(context.Context) ([]module.Suggestion, error) {
		return kitten, nil
	})
	require.NoError(t, err)
	assert.Len(t, remote.data, 1)

	// A second replica finds the answer in Redis.
	second := New(config.CacheConfig{Size: 10, TTL: time.Minute}, remote, m)
	got, err := second.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, func(context.Context) ([]module.Suggestion, error) {
		t.Fatal("compute must not run on a redis hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, kitten, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis")))
	assert.True(t, second.Stats().Redis)

	require.NoError(t, second.Invalidate(context.Background()))
	assert.Empty(t, remote.data)
	assert.Equal(t, 0, second.Stats().Entries)
}

func TestTTLExpiry(t *testing.T) {
	c := New(config.CacheConfig{Size: 10, TTL: 30 * time.Millisecond}, nil, nil)
	var calls int
	compute := func(context.Context) ([]module.Suggestion, error) {
		calls++
		return kitten, nil
	}
	_, _ = c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, compute)
	time.Sleep(80 * time.Millisecond)
	_, _ = c.GetOrCompute(context.Background(), "cat", "lookup", module.Options{}, compute)
	assert.Equal(t, 2, calls)
}
