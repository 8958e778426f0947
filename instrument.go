package match

import (
	"fmt"
	"sort"

	"github.com/altex-exchange/matching-engine/protocol"
)

// InstrumentRepository is the keyed instrument lookup table. Instruments
// are created once via an InstrumentConfig command and immutable afterward.
type InstrumentRepository struct {
	instruments map[string]*protocol.InstrumentConfig
}

// NewInstrumentRepository creates an empty repository.
func NewInstrumentRepository() *InstrumentRepository {
	return &InstrumentRepository{
		instruments: make(map[string]*protocol.InstrumentConfig),
	}
}

// Add registers a new instrument. Duplicate symbols fail.
func (r *InstrumentRepository) Add(cfg *protocol.InstrumentConfig) error {
	if _, ok := r.instruments[cfg.Symbol]; ok {
		return fmt.Errorf("instrument %q: %w", cfg.Symbol, ErrDuplicateSymbol)
	}
	r.instruments[cfg.Symbol] = cfg
	return nil
}

// Get returns the instrument for symbol.
func (r *InstrumentRepository) Get(symbol string) (*protocol.InstrumentConfig, bool) {
	cfg, ok := r.instruments[symbol]
	return cfg, ok
}

// KnowsAsset reports whether any instrument uses asset as base or quote.
func (r *InstrumentRepository) KnowsAsset(asset string) bool {
	for _, cfg := range r.instruments {
		if cfg.BaseAsset == asset || cfg.QuoteAsset == asset {
			return true
		}
	}
	return false
}

// Len returns the number of instruments.
func (r *InstrumentRepository) Len() int {
	return len(r.instruments)
}

// All returns every instrument sorted by symbol, for deterministic
// snapshots.
func (r *InstrumentRepository) All() []*protocol.InstrumentConfig {
	configs := make([]*protocol.InstrumentConfig, 0, len(r.instruments))
	for _, cfg := range r.instruments {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Symbol < configs[j].Symbol })
	return configs
}

// LoadAll replaces the repository content from a snapshot.
func (r *InstrumentRepository) LoadAll(configs []*protocol.InstrumentConfig) {
	r.instruments = make(map[string]*protocol.InstrumentConfig, len(configs))
	for _, cfg := range configs {
		r.instruments[cfg.Symbol] = cfg
	}
}
