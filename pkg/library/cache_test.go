package library

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type countingProvider struct {
	Provider
	calls int
}

func (c *countingProvider) Pins(library, symbol string) ([]PinDef, error) {
	c.calls++
	return c.Provider.Pins(library, symbol)
}

func TestBoltCache(t *testing.T) {
	mem := NewMemoryProvider()
	mem.Add("Device", "R", resistorPins)
	upstream := &countingProvider{Provider: mem}

	path := filepath.Join(t.TempDir(), "pins.db")
	cache, err := OpenBoltCache(path, upstream)
	if err != nil {
		t.Fatalf("OpenBoltCache() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		pins, err := cache.Pins("Device", "R")
		if err != nil {
			t.Fatalf("Pins() error: %v", err)
		}
		if diff := cmp.Diff(resistorPins, pins); diff != "" {
			t.Errorf("Pins() mismatch (-want +got):\n%s", diff)
		}
	}
	if upstream.calls != 1 {
		t.Errorf("upstream called %d times, want 1", upstream.calls)
	}
	if n, err := cache.Len(); err != nil || n != 1 {
		t.Errorf("Len() = %d, %v", n, err)
	}
	if _, err := cache.Pins("Device", "C"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}

	// entries survive a reopen without an upstream provider
	reopened, err := OpenBoltCache(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.Pins("Device", "R"); err != nil {
		t.Errorf("cached entry lost: %v", err)
	}
	if _, err := reopened.Pins("Device", "L"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}

	if err := reopened.Purge(); err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Len(); n != 0 {
		t.Errorf("Len() after Purge = %d", n)
	}
}
