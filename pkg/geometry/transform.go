// Package geometry converts pin coordinates between a component's own frame
// and the schematic, and snaps positions and orientations to the KiCad grid.
package geometry

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

// Position is the millimetre coordinate shared with the KiCad packages.
type Position = sexp.Position

const (
	// GridSize is the KiCad schematic connection grid (50 mil).
	GridSize = 1.27

	// LabelOffset is the distance between a pin end and its label (100 mil).
	LabelOffset = 2.54

	// WorldFrameThreshold is the distance under which raw pin coordinates
	// are taken to be world coordinates already.
	WorldFrameThreshold = 50.0
)

// TransformPinPosition rotates localPin about the origin by rotation
// degrees (counter-clockwise) and translates it by componentPos.
func TransformPinPosition(componentPos, localPin Position, rotation float64) Position {
	sin, cos := sinCos(rotation)
	return Position{
		X: componentPos.X + localPin.X*cos - localPin.Y*sin,
		Y: componentPos.Y + localPin.X*sin + localPin.Y*cos,
	}
}

// InverseTransformPinPosition undoes TransformPinPosition.
func InverseTransformPinPosition(componentPos, worldPin Position, rotation float64) Position {
	sin, cos := sinCos(rotation)
	dx := worldPin.X - componentPos.X
	dy := worldPin.Y - componentPos.Y
	return Position{
		X: dx*cos + dy*sin,
		Y: -dx*sin + dy*cos,
	}
}

// sinCos returns exact values for the axis-aligned angles so that the
// common 90 degree rotations do not pick up 1e-17 noise.
func sinCos(deg float64) (float64, float64) {
	switch NormalizeAngle(deg) {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(deg * math.Pi / 180)
}

// NormalizeAngle maps any angle into [0, 360).
func NormalizeAngle(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// SnapOrientation snaps an angle to the nearest of 0, 90, 180 and 270.
func SnapOrientation(angle float64) float64 {
	return NormalizeAngle(math.Floor((NormalizeAngle(angle)+45)/90) * 90)
}

// LabelOrientation returns the orientation of a label attached to a pin:
// the label points away from the pin, then follows the component rotation.
func LabelOrientation(pinOrientation, componentRotation float64) float64 {
	base := NormalizeAngle(pinOrientation + 180)
	return SnapOrientation(NormalizeAngle(base + componentRotation))
}

// Direction returns the unit vector of a snapped orientation, in the same
// counter-clockwise convention TransformPinPosition rotates with, so that a
// label offset along it moves away from the pin in every rotation.
func Direction(orientation float64) Position {
	sin, cos := sinCos(SnapOrientation(orientation))
	return Position{X: cos, Y: sin}
}

// Frame tells which coordinate system a raw pin position is expressed in.
type Frame int

const (
	// FrameAuto guesses the frame from the distance to the component.
	FrameAuto Frame = iota
	// FrameLocal means relative to the unrotated component origin.
	FrameLocal
	// FrameWorld means already in schematic coordinates.
	FrameWorld
)

func (f Frame) String() string {
	switch f {
	case FrameLocal:
		return "local"
	case FrameWorld:
		return "world"
	default:
		return "auto"
	}
}

// ResolvePinWorld returns the world position of a pin given its raw
// coordinates. With FrameAuto, raw coordinates closer than threshold to the
// component position are assumed to be world coordinates already; the
// second result reports when that assumption was made.
func ResolvePinWorld(componentPos, raw Position, rotation float64, frame Frame, threshold float64) (Position, bool) {
	switch frame {
	case FrameWorld:
		return raw, false
	case FrameLocal:
		return TransformPinPosition(componentPos, raw, rotation), false
	}
	if threshold <= 0 {
		threshold = WorldFrameThreshold
	}
	if raw.Distance(componentPos) < threshold {
		return raw, true
	}
	return TransformPinPosition(componentPos, raw, rotation), false
}
