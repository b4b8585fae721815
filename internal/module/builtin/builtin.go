// Package builtin wires the module types shipped with the service.
package builtin

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/anagram"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/embedding"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/fst"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/lookup"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
)

// Factories returns the factory for every built-in module type, keyed by
// the type name used in configuration.
func Factories() map[string]module.Factory {
	return map[string]module.Factory{
		lookup.Type:    lookup.New,
		fst.Type:       fst.New,
		anagram.Type:   anagram.New,
		embedding.Type: embedding.New,
	}
}

// Types lists the built-in type names.
func Types() []string {
	return []string{lookup.Type, fst.Type, anagram.Type, embedding.Type}
}

// Load opens lexicons through the configured storage and builds the module
// registry described by cfg.
func Load(ctx context.Context, cfg *config.Config) (*module.Registry, error) {
	src, err := lexicon.NewSource(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return module.Load(ctx, cfg.Modules, Factories(), module.Env{
		Lexicons: src,
		Logger:   logger.WithComponent("module-registry"),
	})
}
