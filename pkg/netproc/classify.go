// Package netproc turns the nets of a circuit hierarchy into the flat,
// uniquely named nets of a KiCad netlist and places the hierarchical labels
// that connect a sheet to its parent.
package netproc

import "strings"

// NetClass tells how a net name is scoped.
type NetClass int

const (
	// ClassLocal nets keep their bare name.
	ClassLocal NetClass = iota
	// ClassHierarchical nets are owned by a sheet and named by its path.
	ClassHierarchical
	// ClassGlobal nets (power and ground) keep their literal name everywhere.
	ClassGlobal
	// ClassUnconnected nets hold a single no-connect pin.
	ClassUnconnected
)

func (c NetClass) String() string {
	switch c {
	case ClassHierarchical:
		return "hierarchical"
	case ClassGlobal:
		return "global"
	case ClassUnconnected:
		return "unconnected"
	default:
		return "local"
	}
}

// globalNames are the power and ground nets recognised without a sign prefix.
var globalNames = map[string]bool{
	"VCC":  true,
	"VDD":  true,
	"VSS":  true,
	"GND":  true,
	"GNDA": true,
	"GNDD": true,
	"+3V3": true,
	"+5V":  true,
	"+12V": true,
	"-12V": true,
	"+15V": true,
	"-15V": true,
}

// IsGlobal reports whether name is a power or ground net.
func IsGlobal(name string) bool {
	return globalNames[name] || strings.HasPrefix(name, "+") || strings.HasPrefix(name, "-")
}

// Classify returns the class of a net. Power and ground names win over the
// hierarchical marker.
func Classify(name string, hierarchical bool) NetClass {
	switch {
	case IsGlobal(name):
		return ClassGlobal
	case hierarchical:
		return ClassHierarchical
	default:
		return ClassLocal
	}
}

// ResolveName returns the netlist name of a net found at path. Hierarchical
// names get the path prefix unless they already carry one.
func ResolveName(name string, class NetClass, path string) string {
	if class != ClassHierarchical || strings.HasPrefix(name, "/") {
		return name
	}
	if path == "" || path == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(path, "/") + "/" + name
}

// UnconnectedName is the synthetic net name of a no-connect pin.
func UnconnectedName(ref, pin string) string {
	return "unconnected-" + ref + "-" + pin
}
