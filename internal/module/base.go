package module

import (
	"bytes"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

const (
	DefaultK    = 10
	DefaultMaxK = 100
)

// CommonParams are accepted by every module type. Embed with `yaml:",inline"`.
type CommonParams struct {
	K             int  `yaml:"k"`
	MaxK          int  `yaml:"maxK"`
	CaseSensitive bool `yaml:"caseSensitive"`
}

// Base implements the identity half of Module plus k and case handling.
type Base struct {
	id            string
	name          string
	typ           string
	k             int
	maxK          int
	caseSensitive bool
}

// NewBase validates the common parameters and returns a Base.
func NewBase(cfg config.ModuleConfig, common CommonParams) (Base, error) {
	b := Base{
		id:            cfg.ID,
		name:          cfg.DisplayName(),
		typ:           cfg.Type,
		k:             common.K,
		maxK:          common.MaxK,
		caseSensitive: common.CaseSensitive,
	}
	if b.k < 0 || b.maxK < 0 {
		return Base{}, apperrors.Configf("module %s: k and maxK must not be negative", cfg.ID)
	}
	if b.k == 0 {
		b.k = DefaultK
	}
	if b.maxK == 0 {
		b.maxK = DefaultMaxK
	}
	if b.k > b.maxK {
		return Base{}, apperrors.Configf("module %s: k (%d) exceeds maxK (%d)", cfg.ID, b.k, b.maxK)
	}
	return b, nil
}

func (b Base) ID() string   { return b.id }
func (b Base) Name() string { return b.name }
func (b Base) Type() string { return b.typ }

// K resolves the effective k for a request: the override when set, capped
// at the module ceiling.
func (b Base) K(opts Options) int {
	k := b.k
	if opts.K > 0 {
		k = opts.K
	}
	if k > b.maxK {
		k = b.maxK
	}
	return k
}

// Normalize applies the module's case policy to a term or lexicon entry.
func (b Base) Normalize(s string) string {
	if b.caseSensitive {
		return s
	}
	return Fold(s)
}

// CaseSensitive reports the configured matching policy.
func (b Base) CaseSensitive() bool {
	return b.caseSensitive
}

// DecodeParams decodes a module's raw parameter map into v, rejecting
// unknown keys.
func DecodeParams(cfg config.ModuleConfig, v any) error {
	if len(cfg.Params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(cfg.Params)
	if err != nil {
		return apperrors.Configf("module %s: encoding params: %v", cfg.ID, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return apperrors.Configf("module %s: %v", cfg.ID, err)
	}
	return nil
}

// IntParam reads an integer override from opts, returning def when absent
// or malformed.
func IntParam(opts Options, key string, def int) int {
	if v, ok := opts.Params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// FloatParam reads a float override from opts, returning def when absent or
// malformed.
func FloatParam(opts Options, key string, def float64) float64 {
	if v, ok := opts.Params[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
