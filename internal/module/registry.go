package module

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// Registry holds the configured modules keyed by id, in registration order.
// Register is for startup only; once serving, the registry is read-only and
// safe to share between requests without locking.
type Registry struct {
	modules []Module
	byID    map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Module)}
}

// Register adds m. A duplicate or malformed id is a configuration error.
func (r *Registry) Register(m Module) error {
	id := m.ID()
	if !config.ValidModuleID(id) {
		return apperrors.Configf("invalid module id %q (alphanumeric only)", id)
	}
	if _, dup := r.byID[id]; dup {
		return apperrors.Configf("duplicate module id %q", id)
	}
	r.byID[id] = m
	r.modules = append(r.modules, m)
	return nil
}

// Load builds every configured module through factories and registers them
// in configuration order. Lexicons load concurrently; the first failure
// cancels the rest and is returned, so the process never starts with a
// partial module set.
func Load(ctx context.Context, cfgs []config.ModuleConfig, factories map[string]Factory, env Env) (*Registry, error) {
	if env.Logger == nil {
		env.Logger = slog.Default().With("component", "module-registry")
	}
	reg := NewRegistry()

	seen := make(map[string]struct{}, len(cfgs))
	for _, cfg := range cfgs {
		if !config.ValidModuleID(cfg.ID) {
			return nil, apperrors.Configf("invalid module id %q (alphanumeric only)", cfg.ID)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, apperrors.Configf("duplicate module id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		if _, ok := factories[cfg.Type]; !ok {
			return nil, apperrors.Configf("module %s: unknown type %q", cfg.ID, cfg.Type)
		}
	}

	built := make([]Module, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range cfgs {
		g.Go(func() error {
			start := time.Now()
			m, err := factories[cfg.Type](gctx, cfg, env)
			if err != nil {
				return fmt.Errorf("loading module %s (%s): %w", cfg.ID, cfg.Type, err)
			}
			if m.ID() != cfg.ID {
				return apperrors.Configf("module %s: factory returned id %q", cfg.ID, m.ID())
			}
			env.Logger.Info("module loaded",
				"id", cfg.ID,
				"type", cfg.Type,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			built[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, m := range built {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Resolve selects the modules taking part in a request. When include is
// non-empty only those ids are used and unknown ids are ignored; otherwise
// every module except those in exclude is used. Registration order is kept.
func (r *Registry) Resolve(include, exclude []string) []Module {
	if len(include) > 0 {
		want := toSet(include)
		out := make([]Module, 0, len(want))
		for _, m := range r.modules {
			if _, ok := want[m.ID()]; ok {
				out = append(out, m)
			}
		}
		return out
	}
	skip := toSet(exclude)
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		if _, ok := skip[m.ID()]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// Get returns the module with the given id.
func (r *Registry) Get(id string) (Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// List describes every module in registration order.
func (r *Registry) List() []Info {
	out := make([]Info, len(r.modules))
	for i, m := range r.modules {
		out[i] = InfoOf(m)
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.modules)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
