package library

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

const (
	pinPitch  = 2.54
	pinLength = 2.54
	bodyWidth = 10.16
	smallBody = 5.08
)

// DefaultLayout gives pins without geometry a box layout: the first half of
// the pins on the left edge pointing right, the rest on the right edge
// pointing left, 2.54 mm apart and centred on the origin. It returns the
// laid out pins and the overall footprint including pin lengths.
func DefaultLayout(defs []PinDef) ([]PinDef, float64, float64) {
	out := append([]PinDef(nil), defs...)
	n := len(out)
	if n == 0 {
		return out, smallBody, smallBody
	}

	body := bodyWidth
	if n <= 2 {
		body = smallBody
	}
	left := (n + 1) / 2
	right := n - left
	rows := left
	if right > rows {
		rows = right
	}

	edge := body/2 + pinLength
	place := func(i, count int, x, orientation float64) PinDef {
		d := out[i]
		offset := float64(i) - float64(count-1)/2
		if x > 0 {
			offset = float64(i-left) - float64(count-1)/2
		}
		d.Position = geometry.SnapToGrid(geometry.Position{X: x, Y: offset * pinPitch}, geometry.GridSize)
		d.Orientation = orientation
		d.HasGeometry = true
		return d
	}
	for i := 0; i < left; i++ {
		out[i] = place(i, left, -edge, 0)
	}
	for i := left; i < n; i++ {
		out[i] = place(i, right, edge, 180)
	}

	width := round6(2 * edge)
	height := round6(float64(rows)*pinPitch + pinPitch)
	return out, width, height
}

// ApplyPins fills the pins of comp from defs. A component without pins gets
// one pin per definition, laid out with DefaultLayout when the definitions
// carry no geometry. A component that already has pins only gets missing
// names and types filled in. Components without a size get the layout size.
func ApplyPins(comp *circuit.Component, defs []PinDef) {
	if len(defs) == 0 {
		return
	}

	if len(comp.Pins) > 0 {
		byNumber := make(map[string]PinDef, len(defs))
		for _, d := range defs {
			byNumber[d.Number] = d
		}
		for i := range comp.Pins {
			d, ok := byNumber[comp.Pins[i].Number]
			if !ok {
				continue
			}
			if comp.Pins[i].Name == "" {
				comp.Pins[i].Name = d.Name
			}
			if comp.Pins[i].Type == circuit.PinPassive {
				comp.Pins[i].Type = d.Type
			}
		}
		return
	}

	laid := defs
	geometryKnown := true
	for _, d := range defs {
		if !d.HasGeometry {
			geometryKnown = false
			break
		}
	}
	width, height := 0.0, 0.0
	if geometryKnown {
		width, height = extent(defs)
	} else {
		laid, width, height = DefaultLayout(defs)
	}

	comp.Pins = make([]circuit.Pin, 0, len(laid))
	for _, d := range laid {
		comp.Pins = append(comp.Pins, circuit.Pin{
			Number:      d.Number,
			Name:        d.Name,
			Type:        d.Type,
			Position:    d.Position,
			Orientation: d.Orientation,
			Frame:       geometry.FrameLocal,
		})
	}
	if comp.Width == 0 {
		comp.Width = width
	}
	if comp.Height == 0 {
		comp.Height = height
	}
}

// extent returns the size of the box spanned by the pin ends, never smaller
// than the small body size.
func extent(defs []PinDef) (float64, float64) {
	var half geometry.Position
	for _, d := range defs {
		half.X = math.Max(half.X, math.Abs(d.Position.X))
		half.Y = math.Max(half.Y, math.Abs(d.Position.Y))
	}
	w, h := round6(2*half.X), round6(2*half.Y)
	if w < smallBody {
		w = smallBody
	}
	if h < smallBody {
		h = smallBody
	}
	return w, h
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
