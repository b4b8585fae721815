package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/kafka"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalExpansions       int64      `json:"total_expansions"`
	PartialExpansions     int64      `json:"partial_expansions"`
	TotalTerms            int64      `json:"total_terms"`
	TotalSuggestions      int64      `json:"total_suggestions"`
	AvgSuggestionsPerTerm float64    `json:"avg_suggestions_per_term"`
	ZeroSuggestionCount   int64      `json:"zero_suggestion_count"`
	AvgLatencyMs          float64    `json:"avg_latency_ms"`
	P50LatencyMs          int64      `json:"p50_latency_ms"`
	P95LatencyMs          int64      `json:"p95_latency_ms"`
	P99LatencyMs          int64      `json:"p99_latency_ms"`
	TopTerms              []KeyCount `json:"top_terms"`
	ZeroSuggestionTerms   []KeyCount `json:"zero_suggestion_terms"`
	ModuleFailures        []KeyCount `json:"module_failures"`
	ModuleTimeouts        []KeyCount `json:"module_timeouts"`
	ExpansionsPerMinute   float64    `json:"expansions_per_minute"`
	CapturedAt            time.Time  `json:"captured_at"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregator folds expansion events into running statistics. Latency
// percentiles are computed over the most recent samples only.
type Aggregator struct {
	mu               sync.RWMutex
	totalExpansions  atomic.Int64
	partial          atomic.Int64
	totalTerms       atomic.Int64
	totalSuggestions atomic.Int64
	zeroSuggestions  atomic.Int64
	latencies        []int64
	next             int
	termCounts       map[string]int64
	zeroTerms        map[string]int64
	moduleFailures   map[string]int64
	moduleTimeouts   map[string]int64
	startTime        time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. consumer may be nil when events are
// fed through Record directly.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:      make([]int64, 0, 1024),
		termCounts:     make(map[string]int64),
		zeroTerms:      make(map[string]int64),
		moduleFailures: make(map[string]int64),
		moduleTimeouts: make(map[string]int64),
		startTime:      time.Now(),
		consumer:       consumer,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the event stream consumer. It must be called before
// Start.
func (a *Aggregator) SetConsumer(c *kafka.Consumer) {
	a.consumer = c
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes expansion events from the stream. Decode failures
// wrap apperrors.ErrInvalidInput, so the consumer skips them without retry.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ExpansionEvent](value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the statistics.
func (a *Aggregator) Record(event ExpansionEvent) {
	a.totalExpansions.Add(1)
	if event.Outcome == OutcomePartial {
		a.partial.Add(1)
	}
	a.totalTerms.Add(int64(len(event.Terms)))
	a.totalSuggestions.Add(int64(event.Suggestions))
	a.zeroSuggestions.Add(int64(len(event.ZeroSuggestionTerms)))

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	for _, t := range event.Terms {
		a.termCounts[t]++
	}
	for _, t := range event.ZeroSuggestionTerms {
		a.zeroTerms[t]++
	}
	for _, m := range event.FailedModules {
		a.moduleFailures[m]++
	}
	for _, m := range event.TimedOutModules {
		a.moduleTimeouts[m]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalExpansions:     a.totalExpansions.Load(),
		PartialExpansions:   a.partial.Load(),
		TotalTerms:          a.totalTerms.Load(),
		TotalSuggestions:    a.totalSuggestions.Load(),
		ZeroSuggestionCount: a.zeroSuggestions.Load(),
		CapturedAt:          time.Now().UTC(),
	}
	if stats.TotalTerms > 0 {
		stats.AvgSuggestionsPerTerm = float64(stats.TotalSuggestions) / float64(stats.TotalTerms)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTerms = topN(a.termCounts, 10)
	stats.ZeroSuggestionTerms = topN(a.zeroTerms, 10)
	stats.ModuleFailures = topN(a.moduleFailures, 10)
	stats.ModuleTimeouts = topN(a.moduleTimeouts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.ExpansionsPerMinute = float64(stats.TotalExpansions) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []KeyCount {
	result := make([]KeyCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, KeyCount{Key: key, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
