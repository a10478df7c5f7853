package refs

import (
	"regexp"
	"strconv"
	"strings"
)

var referencePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*\d*$`)

// IsValidFormat reports whether ref is a syntactically valid reference.
func IsValidFormat(ref string) bool {
	return referencePattern.MatchString(ref)
}

// ExtractPrefix returns the leading non-digit run of ref ("R" for "R12").
func ExtractPrefix(ref string) string {
	for i, c := range ref {
		if c >= '0' && c <= '9' {
			return ref[:i]
		}
	}
	return ref
}

// ExtractNumber returns the trailing digit run of ref as a number.
// ok is false when ref does not end in a digit.
func ExtractNumber(ref string) (n int, ok bool) {
	i := len(ref)
	for i > 0 && ref[i-1] >= '0' && ref[i-1] <= '9' {
		i--
	}
	if i == len(ref) {
		return 0, false
	}
	n, err := strconv.Atoi(ref[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasNumber reports whether ref carries a trailing number.
func HasNumber(ref string) bool {
	_, ok := ExtractNumber(ref)
	return ok
}

// prefixes maps lower-case part names to reference designator prefixes.
// Longer keys are tried first.
var prefixes = []struct {
	key    string
	prefix string
}{
	{"testpoint", "TP"},
	{"mountinghole", "H"},
	{"crystal", "Y"},
	{"resonator", "Y"},
	{"connector", "J"},
	{"conn", "J"},
	{"switch", "SW"},
	{"sw", "SW"},
	{"fuse", "F"},
	{"ferrite", "FB"},
	{"led", "D"},
	{"diode", "D"},
	{"zener", "D"},
	{"transistor", "Q"},
	{"mosfet", "Q"},
	{"q_", "Q"},
	{"relay", "K"},
	{"battery", "BT"},
	{"buzzer", "BZ"},
	{"speaker", "LS"},
	{"transformer", "T"},
	{"thermistor", "TH"},
	{"potentiometer", "RV"},
	{"r_pot", "RV"},
	{"inductor", "L"},
	{"resistor", "R"},
	{"capacitor", "C"},
	{"c_polarized", "C"},
	{"d_", "D"},
	{"fb", "FB"},
	{"tp", "TP"},
	{"jp", "JP"},
	{"r", "R"},
	{"c", "C"},
	{"l", "L"},
	{"d", "D"},
	{"y", "Y"},
	{"f", "F"},
	{"j", "J"},
	{"k", "K"},
	{"q", "Q"},
}

// DefaultPrefix derives a reference prefix from a symbol identifier such as
// "Device:R_Small" or "Connector:Conn_01x04". Unknown parts get "U".
func DefaultPrefix(symbol string) string {
	part := symbol
	if i := strings.LastIndex(part, ":"); i >= 0 {
		part = part[i+1:]
	}
	part = strings.ToLower(part)
	if part == "" {
		return "U"
	}

	for _, p := range prefixes {
		if len(p.key) <= 2 {
			continue
		}
		if strings.HasPrefix(part, p.key) {
			return p.prefix
		}
	}

	// short names only match whole or as the leading token ("R", "R_Small", "C_0402")
	head := part
	if i := strings.IndexAny(head, "_- "); i >= 0 {
		head = head[:i]
	}
	for _, p := range prefixes {
		if len(p.key) > 2 {
			continue
		}
		key := strings.TrimSuffix(p.key, "_")
		if head == key {
			return p.prefix
		}
	}
	return "U"
}

// Less orders references naturally: by prefix, then by trailing number, so
// that R2 sorts before R10. Strings without a number sort before numbered
// ones with the same prefix.
func Less(a, b string) bool {
	pa, na, oka := split(a)
	pb, nb, okb := split(b)
	if pa != pb {
		return pa < pb
	}
	if oka != okb {
		return !oka
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func split(ref string) (string, int, bool) {
	i := len(ref)
	for i > 0 && ref[i-1] >= '0' && ref[i-1] <= '9' {
		i--
	}
	if i == len(ref) {
		return ref, 0, false
	}
	n, err := strconv.Atoi(ref[i:])
	if err != nil {
		return ref, 0, false
	}
	return ref[:i], n, true
}
