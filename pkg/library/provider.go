// Package library supplies pin definitions for symbols. Providers can be
// backed by memory, by KiCad symbol data, or cached on disk.
package library

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
)

// ErrSymbolNotFound is returned when a provider does not know a symbol.
var ErrSymbolNotFound = errors.New("library: symbol not found")

// PinDef describes one pin of a library symbol. Geometry is optional;
// HasGeometry reports whether Position and Orientation are meaningful.
type PinDef struct {
	Number      string
	Name        string
	Type        circuit.PinType
	Position    geometry.Position
	Orientation float64
	HasGeometry bool
}

// Provider looks up the pins of a symbol.
type Provider interface {
	Pins(library, symbol string) ([]PinDef, error)
}

// SymbolSource is implemented by providers that also hold the drawable
// KiCad definition of their symbols.
type SymbolSource interface {
	Symbol(library, symbol string) (schematic.LibSymbol, bool)
}

// SplitID splits "Lib:Part" into its library and symbol names.
func SplitID(id string) (string, string) {
	lib, sym, ok := strings.Cut(id, ":")
	if !ok {
		return "", id
	}
	return lib, sym
}

func key(library, symbol string) string {
	return library + ":" + symbol
}

// MemoryProvider is a map-backed provider, useful in tests and for symbols
// described inline.
type MemoryProvider struct {
	mu      sync.RWMutex
	symbols map[string][]PinDef
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{symbols: make(map[string][]PinDef)}
}

// Add registers the pins of library:symbol, replacing earlier definitions.
func (p *MemoryProvider) Add(library, symbol string, pins []PinDef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols[key(library, symbol)] = append([]PinDef(nil), pins...)
}

// Pins implements Provider.
func (p *MemoryProvider) Pins(library, symbol string) ([]PinDef, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pins, ok := p.symbols[key(library, symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, key(library, symbol))
	}
	return append([]PinDef(nil), pins...), nil
}

// Symbols returns the registered symbol identifiers, sorted.
func (p *MemoryProvider) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.symbols))
	for id := range p.symbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Chain asks each provider in turn and returns the first hit.
type Chain []Provider

// Pins implements Provider.
func (c Chain) Pins(library, symbol string) ([]PinDef, error) {
	for _, p := range c {
		pins, err := p.Pins(library, symbol)
		if err == nil {
			return pins, nil
		}
		if !errors.Is(err, ErrSymbolNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, key(library, symbol))
}

// Symbol returns the definition of the first provider that has one.
func (c Chain) Symbol(library, symbol string) (schematic.LibSymbol, bool) {
	for _, p := range c {
		if src, ok := p.(SymbolSource); ok {
			if sym, ok := src.Symbol(library, symbol); ok {
				return sym, true
			}
		}
	}
	return schematic.LibSymbol{}, false
}
