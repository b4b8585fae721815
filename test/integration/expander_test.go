// Package integration contains tests that exercise the expansion service
// through its full HTTP stack: real modules loaded from lexicon files, the
// dispatcher, the suggestion cache and every middleware. External stores
// (Redis, PostgreSQL) are used when reachable and skipped otherwise.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/handler"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/router"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/builtin"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type serverOptions struct {
	limiter *ratelimit.Limiter
	remote  cache.Remote
}

// testConfig writes small lexicons into a temp dir and returns a config
// with a lookup and an fst module over them.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	syn := filepath.Join(dir, "synonyms.tsv")
	words := filepath.Join(dir, "words.txt")
	writeFile(t, syn, "cat\tkitten\tfeline\ndog\tpuppy\thound\n")
	writeFile(t, words, "bat\ncar\ncat\ncut\ndig\ndog\ndot\n")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	cfg.Expansion.ModuleTimeout = time.Second
	cfg.Cache.TTL = time.Minute
	cfg.Modules = []config.ModuleConfig{
		{ID: "syn", Name: "Synonyms", Type: "lookup", Params: map[string]any{"file": syn}},
		{ID: "spell", Name: "Spelling", Type: "fst", Params: map[string]any{"file": words, "distance": 1}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validating config: %v", err)
	}
	return cfg
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// newExpanderServer wires the service the way cmd/expander does.
func newExpanderServer(t *testing.T, opts serverOptions) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	cfg := testConfig(t)

	reg, err := builtin.Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("loading modules: %v", err)
	}

	m := metrics.New()
	sc := cache.New(cfg.Cache, opts.remote, m)
	d := dispatcher.New(dispatcher.ConfigFrom(cfg.Expansion), sc, m)
	svc := expander.New(reg, d, expander.WithMetrics(m))

	checker := health.NewChecker()
	checker.Register("modules", health.MinCount("modules", len(cfg.Modules), reg.Len))

	chain := router.New(handler.New(svc, sc, d), checker, router.Options{
		CORS:           &cfg.CORS,
		Limiter:        opts.limiter,
		Metrics:        m,
		RequestTimeout: 5 * time.Second,
	})
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv, m
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decoding %s: %v (%s)", url, err, body)
		}
	}
	return resp
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	var live map[string]string
	resp := getJSON(t, srv.URL+"/health/live", &live)
	if resp.StatusCode != http.StatusOK || live["status"] != "alive" {
		t.Errorf("live: got %d %v", resp.StatusCode, live)
	}

	var ready health.Report
	resp = getJSON(t, srv.URL+"/health/ready", &ready)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", resp.StatusCode)
	}
	if ready.Components["modules"].Status != health.StatusUp {
		t.Errorf("modules component: %+v", ready.Components["modules"])
	}
}

func TestExpandEndToEnd(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	var body struct {
		Original string `json:"original_query"`
		Query    string `json:"query"`
		Template string `json:"query_expansion_template"`
		Terms    []struct {
			Term        string `json:"term"`
			Suggestions []struct {
				Text   string `json:"text"`
				Module string `json:"module"`
				Rank   int    `json:"rank"`
			} `json:"suggestions"`
		} `json:"terms"`
	}
	resp := getJSON(t, srv.URL+"/?include=syn&q="+url.QueryEscape("cat AND dog"), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if want := "(cat OR kitten OR feline) AND (dog OR puppy OR hound)"; body.Query != want {
		t.Errorf("query: got %q, want %q", body.Query, want)
	}
	if want := "{{cat}} AND {{dog}}"; body.Template != want {
		t.Errorf("template: got %q, want %q", body.Template, want)
	}
	if len(body.Terms) != 2 || len(body.Terms[0].Suggestions) != 2 {
		t.Fatalf("unexpected terms: %+v", body.Terms)
	}
	if s := body.Terms[0].Suggestions[0]; s.Module != "syn" || s.Rank != 1 {
		t.Errorf("first suggestion provenance: %+v", s)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestExpandMergesModules(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	var body struct {
		Query string `json:"query"`
	}
	getJSON(t, srv.URL+"/api/v1/expand?q=cat", &body)
	// syn: kitten, feline; spell (distance 1): bat, car, cut.
	for _, alt := range []string{"kitten", "feline", "bat", "car", "cut"} {
		if !containsWord(body.Query, alt) {
			t.Errorf("expanded query %q is missing %q", body.Query, alt)
		}
	}
}

func TestSyntaxErrorIs400(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	var body map[string]any
	resp := getJSON(t, srv.URL+"/?q="+url.QueryEscape(`title:"big cat`), &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if _, ok := body["position"]; !ok {
		t.Errorf("expected a position in %v", body)
	}
}

func TestModulesEndpoint(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	for _, path := range []string{"/modules", "/api/v1/modules"} {
		var mods []map[string]string
		getJSON(t, srv.URL+path, &mods)
		if len(mods) != 2 || mods[0]["id"] != "syn" || mods[1]["type"] != "fst" {
			t.Errorf("%s: unexpected modules %v", path, mods)
		}
	}
}

func TestCacheServesRepeatedTerms(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	for i := 0; i < 3; i++ {
		getJSON(t, srv.URL+"/?q=dog", nil)
	}

	var stats cache.Stats
	getJSON(t, srv.URL+"/api/v1/cache/stats", &stats)
	// Two modules: two misses on the first request, hits afterwards.
	if stats.Misses != 2 || stats.Hits != 4 {
		t.Errorf("unexpected cache stats: %+v", stats)
	}

	resp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("invalidate: expected 200, got %d", resp.StatusCode)
	}
}

func TestRateLimiting(t *testing.T) {
	limiter := ratelimit.New(0.001, 2)
	t.Cleanup(limiter.Close)
	srv, _ := newExpanderServer(t, serverOptions{limiter: limiter})

	for i := 0; i < 2; i++ {
		resp := getJSON(t, srv.URL+"/?q=cat", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp := getJSON(t, srv.URL+"/?q=cat", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}

	// Probes are never limited.
	resp = getJSON(t, srv.URL+"/health/live", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newExpanderServer(t, serverOptions{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/expand", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin: got %q", got)
	}
}

// TestRedisCacheTier runs when a Redis server is reachable.
func TestRedisCacheTier(t *testing.T) {
	ctx := context.Background()
	client, err := pkgredis.NewClient(ctx, config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 2,
	})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	if _, err := client.DeletePrefix(ctx, "qe:sugg:"); err != nil {
		t.Fatalf("flushing: %v", err)
	}

	first, _ := newExpanderServer(t, serverOptions{remote: client})
	getJSON(t, first.URL+"/?q=cat", nil)

	// A second replica with a cold local tier is served from Redis.
	second, _ := newExpanderServer(t, serverOptions{remote: client})
	getJSON(t, second.URL+"/?q=cat", nil)

	var stats cache.Stats
	getJSON(t, second.URL+"/api/v1/cache/stats", &stats)
	if stats.Hits != 2 || stats.Misses != 0 {
		t.Errorf("second replica stats: %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func containsWord(s, word string) bool {
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] != word {
			continue
		}
		before := i == 0 || s[i-1] == ' ' || s[i-1] == '('
		after := i+len(word) == len(s) || s[i+len(word)] == ' ' || s[i+len(word)] == ')'
		if before && after {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
