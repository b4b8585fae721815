// Command loadtest drives the expansion API with concurrent workers and
// reports throughput, latency percentiles and the share of partial answers
// (responses carrying module diagnostics).
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 16 -duration 30s [-rps 500] [-queries file]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultQueries = []string{
	"cat",
	"cat AND dog",
	`"big cat" OR kitten`,
	"title:search AND body:(ranking OR caching)",
	"+distributed -monolithic",
	"(query OR queries) AND expansion^2",
	"colour NOT color",
	"separate AND NOT seperate",
	"fish~1 OR bird",
	"anlytics",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	rps         float64
	include     string
	queries     []string
}

type stats struct {
	total     atomic.Int64
	ok        atomic.Int64
	partial   atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{latencies: make([]time.Duration, 0, 100000), codes: make(map[int]int64)}
}

func (s *stats) record(d time.Duration, code int, partial bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	switch {
	case code < 200 || code >= 300:
		s.failed.Add(1)
	case partial:
		s.partial.Add(1)
	default:
		s.ok.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	var opts options
	var queriesFile string
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the expansion service")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.rps, "rps", 0, "global request rate cap (0 = unlimited)")
	flag.StringVar(&opts.include, "include", "", "comma-separated module ids to pass as include")
	flag.StringVar(&queriesFile, "queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	opts.queries = defaultQueries
	if queriesFile != "" {
		qs, err := readQueries(queriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		opts.queries = qs
	}

	fmt.Println("=== Query Expansion Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Queries:     %d unique\n", len(opts.queries))
	fmt.Println()

	s := run(opts)
	if !report(os.Stdout, s, opts.duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

func expandURL(base, q, include string) string {
	v := url.Values{"q": {q}}
	if include != "" {
		v.Set("include", include)
	}
	return strings.TrimRight(base, "/") + "/api/v1/expand?" + v.Encode()
}

func run(opts options) *stats {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	var limiter *rate.Limiter
	if opts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rps), opts.concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				if limiter != nil && limiter.Wait(ctx) != nil {
					return nil
				}
				target := expandURL(opts.baseURL, opts.queries[i%len(opts.queries)], opts.include)
				start := time.Now()
				code, partial, err := call(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				s.record(time.Since(start), code, partial, err)
			}
			return nil
		})
	}

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			fmt.Println(" done!")
			fmt.Println()
			return s
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

func call(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, false, nil
	}
	var body struct {
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, false, err
	}
	return resp.StatusCode, len(body.Diagnostics) > 0, nil
}

// report prints the summary and returns false when nothing completed.
func report(w io.Writer, s *stats, duration time.Duration) bool {
	total := s.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Complete:        %d\n", s.ok.Load())
	fmt.Fprintf(w, "Partial:         %d\n", s.partial.Load())
	fmt.Fprintf(w, "Failed:          %d\n", s.failed.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
