package library

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
)

// Index is a full text index over symbol names, descriptions and keywords.
type Index struct {
	index bleve.Index
	count int
}

type symbolDoc struct {
	ID          string
	Library     string
	Part        string
	Words       string
	Description string
	Keywords    string
	Pins        string
}

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
}

// NewIndex builds an in-memory index of the given symbols.
func NewIndex(symbols []schematic.LibSymbol) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("library: create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, sym := range symbols {
		lib, part := SplitID(sym.Name)
		doc := symbolDoc{
			ID:      sym.Name,
			Library: lib,
			Part:    part,
			Words: strings.Join(strings.FieldsFunc(part, func(r rune) bool {
				return r == '_' || r == '-' || r == '.'
			}), " "),
		}
		for _, prop := range sym.Properties {
			switch prop.Key {
			case "Description", "ki_description":
				doc.Description = prop.Value
			case "ki_keywords", "Keywords":
				doc.Keywords = prop.Value
			}
		}
		names := make([]string, 0, len(sym.Pins))
		for _, pin := range sym.Pins {
			if pin.Name != "" && pin.Name != "~" {
				names = append(names, pin.Name)
			}
		}
		doc.Pins = strings.Join(names, " ")

		if err := batch.Index(sym.Name, doc); err != nil {
			return nil, fmt.Errorf("library: index %s: %w", sym.Name, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("library: index batch: %w", err)
	}

	return &Index{index: idx, count: len(symbols)}, nil
}

// Search returns up to limit symbols matching text, best first.
func (i *Index) Search(text string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	query := bleve.NewMatchQuery(text)
	result, err := i.index.Search(bleve.NewSearchRequestOptions(query, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("library: search %q: %w", text, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Len returns the number of indexed symbols.
func (i *Index) Len() int {
	return i.count
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
