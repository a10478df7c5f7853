package library

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
)

var pinsBucket = []byte("pins")

// BoltCache wraps a Provider and keeps every answer in a bolt database, so
// later runs do not need to parse the symbol libraries again.
type BoltCache struct {
	db   *bolt.DB
	next Provider
}

// OpenBoltCache opens (or creates) the cache database at path. next may be
// nil for a read-only cache.
func OpenBoltCache(path string, next Provider) (*BoltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("library: open cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pinsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("library: init cache: %w", err)
	}
	return &BoltCache{db: db, next: next}, nil
}

// Close releases the database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

// Symbol asks the wrapped provider; definitions are not cached.
func (c *BoltCache) Symbol(library, symbol string) (schematic.LibSymbol, bool) {
	if src, ok := c.next.(SymbolSource); ok {
		return src.Symbol(library, symbol)
	}
	return schematic.LibSymbol{}, false
}

// Pins implements Provider.
func (c *BoltCache) Pins(library, symbol string) ([]PinDef, error) {
	k := []byte(key(library, symbol))

	var cached []byte
	if err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(pinsBucket).Get(k); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("library: read cache: %w", err)
	}
	if cached != nil {
		var pins []PinDef
		if err := unmarshal(cached, &pins); err == nil {
			return pins, nil
		}
		// unreadable entry, fall through and refresh it
	}

	if c.next == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, k)
	}
	pins, err := c.next.Pins(library, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.Put(library, symbol, pins); err != nil {
		return nil, err
	}
	return pins, nil
}

// Put stores pins for library:symbol.
func (c *BoltCache) Put(library, symbol string, pins []PinDef) error {
	data, err := marshal(pins)
	if err != nil {
		return fmt.Errorf("library: encode %s: %w", key(library, symbol), err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pinsBucket).Put([]byte(key(library, symbol)), data)
	})
}

// Len returns the number of cached symbols.
func (c *BoltCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(pinsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Purge removes every cached entry.
func (c *BoltCache) Purge() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(pinsBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(pinsBucket)
		return err
	})
}

func marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := gob.NewEncoder(b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(v)
}
