package circuit

import (
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/geometry"
)

// PinType is the electrical type of a pin.
type PinType int

const (
	PinPassive PinType = iota
	PinInput
	PinOutput
	PinBidirectional
	PinPowerIn
	PinPowerOut
	PinOpenCollector
	PinOpenEmitter
	PinNoConnect
	PinUnspecified
)

var pinTypeNames = [...]string{
	PinPassive:       "passive",
	PinInput:         "input",
	PinOutput:        "output",
	PinBidirectional: "bidirectional",
	PinPowerIn:       "power_in",
	PinPowerOut:      "power_out",
	PinOpenCollector: "open_collector",
	PinOpenEmitter:   "open_emitter",
	PinNoConnect:     "no_connect",
	PinUnspecified:   "unspecified",
}

// String returns the KiCad spelling of the pin type.
func (t PinType) String() string {
	if t < 0 || int(t) >= len(pinTypeNames) {
		return "passive"
	}
	return pinTypeNames[t]
}

// ParsePinType maps a case-insensitive pin type name to a PinType.
// Unrecognised names map to PinPassive. KiCad's "tri_state", "bidirectional"
// and "free" spellings are accepted as well.
func ParsePinType(s string) PinType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "bidi", "tri_state":
		return PinBidirectional
	case "nc", "not_connected", "no_connect", "noconnect":
		return PinNoConnect
	case "free":
		return PinUnspecified
	}
	for i, name := range pinTypeNames {
		if s == name {
			return PinType(i)
		}
	}
	return PinPassive
}

// MarshalText implements encoding.TextMarshaler.
func (t PinType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *PinType) UnmarshalText(b []byte) error {
	*t = ParsePinType(string(b))
	return nil
}

// Pin is a symbol pin. Position and Orientation are in the component's own
// unrotated frame unless Frame says otherwise.
type Pin struct {
	Number      string            // Pin number ("1", "A3")
	Name        string            // Pin name ("VCC", "~")
	Position    geometry.Position // Pin end position
	Type        PinType           // Electrical type
	Orientation float64           // Pin angle in degrees
	Frame       geometry.Frame    // Coordinate frame of Position
}

// ID returns the number, or the name for unnumbered pins.
func (p Pin) ID() string {
	if p.Number != "" {
		return p.Number
	}
	return p.Name
}

// IsNoConnect reports whether the pin is marked as not connected, either by
// type or by a conventional name.
func (p Pin) IsNoConnect() bool {
	if p.Type == PinNoConnect {
		return true
	}
	switch strings.ToUpper(p.Name) {
	case "NC", "N/C", "DNC", "NO_CONNECT":
		return true
	}
	return false
}
