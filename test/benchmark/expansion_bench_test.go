package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/compositor"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/builtin"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/moduletest"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
)

func staticModules(n int) []module.Module {
	table := map[string][]string{
		"cat":  {"kitten", "feline", "kitty", "tomcat"},
		"dog":  {"puppy", "hound", "canine"},
		"fish": {"trout", "salmon"},
	}
	mods := make([]module.Module, n)
	for i := range mods {
		mods[i] = moduletest.NewStatic(fmt.Sprintf("m%d", i), table)
	}
	return mods
}

// BenchmarkDispatch measures fan-out and merge for growing module counts.
func BenchmarkDispatch(b *testing.B) {
	tokens, err := query.Tokenize("cat AND dog OR fish AND bird")
	if err != nil {
		b.Fatal(err)
	}
	for _, n := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("modules_%d", n), func(b *testing.B) {
			mods := staticModules(n)
			d := dispatcher.New(dispatcher.Config{TopN: 10, Concurrency: 16, ModuleTimeout: time.Second}, nil, nil)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				d.Expand(ctx, tokens, mods, dispatcher.Overrides{})
			}
		})
	}
}

// BenchmarkDispatchCached measures the same fan-out served from the local
// cache tier.
func BenchmarkDispatchCached(b *testing.B) {
	tokens, err := query.Tokenize("cat AND dog OR fish AND bird")
	if err != nil {
		b.Fatal(err)
	}
	mods := staticModules(4)
	sc := cache.New(config.CacheConfig{Enabled: true, Size: 1024, TTL: time.Hour}, nil, nil)
	d := dispatcher.New(dispatcher.Config{TopN: 10, Concurrency: 16}, sc, nil)
	ctx := context.Background()
	d.Expand(ctx, tokens, mods, dispatcher.Overrides{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Expand(ctx, tokens, mods, dispatcher.Overrides{})
	}
}

func BenchmarkCompose(b *testing.B) {
	q := `title:cat AND (dog OR "big fish") -bird`
	tokens, err := query.Tokenize(q)
	if err != nil {
		b.Fatal(err)
	}
	d := dispatcher.New(dispatcher.Config{TopN: 10, Concurrency: 4}, nil, nil)
	results, _ := d.Expand(context.Background(), tokens, staticModules(2), dispatcher.Overrides{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = compositor.Compose(tokens, results, compositor.Options{})
	}
}

// BenchmarkFSTExpand measures Levenshtein lookups over a generated wordlist.
func BenchmarkFSTExpand(b *testing.B) {
	words := make([]string, 0, 20000)
	for i := 0; i < 20000; i++ {
		words = append(words, fmt.Sprintf("w%05d", i))
	}
	path := filepath.Join(b.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte(strings.Join(words, "\n")), 0o644); err != nil {
		b.Fatal(err)
	}
	cfg := &config.Config{Modules: []config.ModuleConfig{
		{ID: "spell", Type: "fst", Params: map[string]any{"file": path, "distance": 1}},
	}}
	reg, err := builtin.Load(context.Background(), cfg)
	if err != nil {
		b.Fatal(err)
	}
	m, _ := reg.Get("spell")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Expand(ctx, "w12345", module.Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
