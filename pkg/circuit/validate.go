package circuit

import (
	"fmt"
	"sort"
)

// Severity grades a validation issue.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Issue is one problem found by Validate.
type Issue struct {
	Severity   Severity
	Category   string // "circuit", "component", "pin", "net"
	Message    string
	FieldPath  string // "/MCU.components[U1].pins[3]"
	Suggestion string
}

func (i Issue) String() string {
	s := fmt.Sprintf("%s: %s: %s", i.Severity, i.FieldPath, i.Message)
	if i.Suggestion != "" {
		s += " (" + i.Suggestion + ")"
	}
	return s
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks h and its subcircuits and returns every issue found.
// It never stops at the first problem.
func (a *Arena) Validate(h Handle) []Issue {
	var issues []Issue
	add := func(sev Severity, cat, path, msg, hint string) {
		issues = append(issues, Issue{Severity: sev, Category: cat, Message: msg, FieldPath: path, Suggestion: hint})
	}

	if _, err := a.Circuit(h); err != nil {
		add(SeverityError, "circuit", "", err.Error(), "")
		return issues
	}

	// references resolvable from nets anywhere in the design
	known := make(map[string]*Component)
	for _, comp := range a.AllComponents(h) {
		if comp.Reference != "" {
			known[comp.Reference] = comp
		}
	}

	_ = a.Walk(h, func(_ Handle, c *Circuit, path string) error {
		if c.Name == "" {
			add(SeverityError, "circuit", path, "circuit name is empty", "give every circuit a name")
		}
		if len(c.Components) == 0 {
			add(SeverityWarning, "circuit", path, "circuit has no components", "")
		}
		if len(c.Nets) == 0 && len(c.Components) > 1 {
			add(SeverityWarning, "circuit", path, "circuit has components but no nets", "connect the components with nets")
		}

		keys := make([]string, 0, len(c.index))
		for key := range c.index {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if comp := c.index[key]; comp.Reference != key {
				add(SeverityWarning, "component", fmt.Sprintf("%s.components[%s]", path, key),
					fmt.Sprintf("reference %q does not match its key %q", comp.Reference, key), "")
			}
		}

		for i, comp := range c.Components {
			id := comp.Reference
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			field := fmt.Sprintf("%s.components[%s]", path, id)

			if comp.Pending() {
				add(SeverityInfo, "component", field,
					fmt.Sprintf("reference pending with prefix %q", comp.prefix), "run FinalizeReferences")
			}
			if comp.Symbol == "" {
				add(SeverityError, "component", field, "component has no symbol", `set symbol, e.g. "Device:R"`)
			}
			if len(comp.Pins) == 0 {
				add(SeverityWarning, "component", field, "component has no pins", "load pins from a symbol library")
			}
			for j, pin := range comp.Pins {
				if pin.Number == "" && pin.Name == "" {
					add(SeverityError, "pin", fmt.Sprintf("%s.pins[%d]", field, j), "pin has neither name nor number", "")
				}
			}
		}

		for _, net := range c.Nets {
			field := fmt.Sprintf("%s.nets[%s]", path, net.Name)
			if len(net.Connections) < 2 {
				add(SeverityWarning, "net", field,
					fmt.Sprintf("net has %d connection(s)", len(net.Connections)), "nets normally join at least two pins")
			}
			for _, conn := range net.Connections {
				ref := conn.Ref()
				comp, ok := known[ref]
				if conn.component != nil && conn.component.Reference == "" {
					// deferred component, reference assigned later
					comp, ok = conn.component, true
				}
				if !ok {
					add(SeverityError, "net", field, fmt.Sprintf("unknown component %q", ref), "")
					continue
				}
				if len(comp.Pins) > 0 {
					if _, found := comp.Pin(conn.PinID); !found {
						add(SeverityWarning, "net", field, fmt.Sprintf("component %s has no pin %q", ref, conn.PinID), "")
					}
				}
			}
		}
		return nil
	})

	return issues
}
