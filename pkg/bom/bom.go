// Package bom writes bill-of-materials and component placement list
// spreadsheets for a synthesized circuit.
package bom

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

// Sheet names in the generated workbook.
const (
	BOMSheet = "BOM"
	CPLSheet = "CPL"
)

// PartField is the component field carrying the assembler part number.
const PartField = "LCSC"

// DNPField marks a component that is not populated when set to a true value.
const DNPField = "DNP"

// Entry is one BOM line: identical parts and every designator using them.
type Entry struct {
	Comment     string // Value
	Footprint   string
	Symbol      string
	Part        string // assembler part number
	Designators []string
}

// Quantity returns the number of parts on the line.
func (e Entry) Quantity() int {
	return len(e.Designators)
}

// Placement is one CPL line.
type Placement struct {
	Designator string
	X, Y       float64 // mm
	Rotation   float64 // degrees, counter-clockwise
	Layer      string
}

type groupKey struct {
	value, footprint, symbol string
}

// Group collects components into BOM entries keyed by value, footprint and
// symbol. Designators are in natural order and entries are ordered by their
// first designator. Unreferenced and DNP components are skipped.
func Group(components []*circuit.Component) []Entry {
	index := make(map[groupKey]int)
	var entries []Entry
	for _, c := range components {
		if c.Reference == "" || dnp(c) {
			continue
		}
		k := groupKey{c.Value, c.Footprint, c.Symbol}
		i, ok := index[k]
		if !ok {
			i = len(entries)
			index[k] = i
			entries = append(entries, Entry{Comment: c.Value, Footprint: c.Footprint, Symbol: c.Symbol})
		}
		entries[i].Designators = append(entries[i].Designators, c.Reference)
		if entries[i].Part == "" {
			entries[i].Part = c.Field(PartField)
		}
	}

	for i := range entries {
		sort.Slice(entries[i].Designators, func(a, b int) bool {
			return refs.Less(entries[i].Designators[a], entries[i].Designators[b])
		})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return refs.Less(entries[a].Designators[0], entries[b].Designators[0])
	})
	return entries
}

// Placements lists the placed components for the CPL sheet.
func Placements(components []*circuit.Component) []Placement {
	var out []Placement
	for _, c := range components {
		if c.Reference == "" || dnp(c) {
			continue
		}
		out = append(out, Placement{
			Designator: c.Reference,
			X:          round4(c.Position.X),
			Y:          round4(c.Position.Y),
			Rotation:   round4(c.Rotation),
			Layer:      "Top",
		})
	}
	sort.Slice(out, func(a, b int) bool { return refs.Less(out[a].Designator, out[b].Designator) })
	return out
}

func dnp(c *circuit.Component) bool {
	switch strings.ToLower(c.Field(DNPField)) {
	case "1", "yes", "true":
		return true
	}
	return false
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// WriteXLSX writes a workbook with a BOM sheet and, when placements are
// given, a CPL sheet.
func WriteXLSX(w io.Writer, entries []Entry, placements []Placement) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(BOMSheet); err != nil {
		return fmt.Errorf("bom: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("bom: %w", err)
	}

	rows := [][]interface{}{{"Comment", "Designator", "Footprint", "LCSC Part", "Quantity", "Symbol"}}
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.Comment,
			strings.Join(e.Designators, ","),
			e.Footprint,
			e.Part,
			e.Quantity(),
			e.Symbol,
		})
	}
	if err := writeRows(f, BOMSheet, rows); err != nil {
		return err
	}

	if len(placements) > 0 {
		if _, err := f.NewSheet(CPLSheet); err != nil {
			return fmt.Errorf("bom: %w", err)
		}
		rows := [][]interface{}{{"Designator", "Mid X", "Mid Y", "Layer", "Rotation"}}
		for _, p := range placements {
			rows = append(rows, []interface{}{p.Designator, p.X, p.Y, p.Layer, p.Rotation})
		}
		if err := writeRows(f, CPLSheet, rows); err != nil {
			return err
		}
	}

	if idx, err := f.GetSheetIndex(BOMSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("bom: write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("bom: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("bom: %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// ReadXLSX returns the rows of one sheet of a workbook written by WriteXLSX.
func ReadXLSX(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("bom: open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("bom: %w", err)
	}
	return rows, nil
}
