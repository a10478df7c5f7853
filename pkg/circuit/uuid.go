package circuit

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// AssignUUIDs gives every circuit and component below h that has no UUID a
// random one. Identities are drawn from src in walk order, so a seeded
// source yields the same files on every run; crypto/rand is used when src
// is nil. Existing UUIDs are kept.
func (a *Arena) AssignUUIDs(h Handle, src io.Reader) error {
	next := func() (string, error) {
		if src == nil {
			return uuid.NewString(), nil
		}
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}

	err := a.Walk(h, func(_ Handle, c *Circuit, _ string) error {
		var err error
		if c.UUID == "" {
			if c.UUID, err = next(); err != nil {
				return err
			}
		}
		for _, comp := range c.Components {
			if comp.UUID != "" {
				continue
			}
			if comp.UUID, err = next(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("circuit: assign uuids: %w", err)
	}
	return nil
}

// TimestampPath returns the chain of sheet UUIDs from the root down to h,
// "/<root>/<child>/", the form netlists and symbol instances use.
func (a *Arena) TimestampPath(h Handle) string {
	var ids []string
	for cur := h; cur != NoHandle; {
		c, err := a.Circuit(cur)
		if err != nil {
			break
		}
		ids = append(ids, c.UUID)
		cur = c.Parent
	}
	var b strings.Builder
	b.WriteByte('/')
	for i := len(ids) - 1; i >= 0; i-- {
		b.WriteString(ids[i])
		b.WriteByte('/')
	}
	return b.String()
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SheetFile returns the schematic file name of the circuit: its name with
// anything outside [A-Za-z0-9_.-] replaced by "_", plus ".kicad_sch".
func (c *Circuit) SheetFile() string {
	name := unsafeFileChars.ReplaceAllString(c.Name, "_")
	if name == "" || name == "_" {
		name = fmt.Sprintf("sheet%d", c.ID)
	}
	return name + ".kicad_sch"
}
