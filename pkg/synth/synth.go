// Package synth turns a circuit description into KiCad files: it resolves
// pins and references, places every sheet, names the nets, places the
// hierarchical labels, and renders the netlist and one schematic per sheet.
package synth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceSynth/internal/logging"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/netlist"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/placement"
)

var (
	// ErrInvalidCircuit is returned when validation finds errors. The
	// issues are in Output.Issues.
	ErrInvalidCircuit = errors.New("synth: invalid circuit")
	// ErrDuplicateSheet is returned when two sheets map to the same file.
	ErrDuplicateSheet = errors.New("synth: duplicate sheet file")
)

// Generator runs the synthesis pipeline. The zero value places with
// DefaultConfig, targets KiCad 8 and takes pins only from the components
// themselves.
type Generator struct {
	Provider  library.Provider // Pin definitions; may be nil
	Placement placement.Config // Zero value means placement.DefaultConfig()
	Labels    netproc.LabelOptions
	Board     placement.Board // Placement area; sheets are laid out freely when zero
	KiCad     string          // Target release, schematic.DefaultKiCad when empty
	Tool      string          // Generator name written to every file

	LibraryDir string    // Directory prefix of netlist library URIs
	Date       time.Time // Netlist date; now when zero

	// UUIDSource feeds every generated UUID; crypto/rand when nil. A seeded
	// source makes the output reproducible.
	UUIDSource io.Reader
	Logger     *slog.Logger
}

// Sheet is one generated schematic.
type Sheet struct {
	Path      string // Hierarchical path, "/" for the root
	File      string
	Page      int
	Schematic *schematic.Schematic
	Text      string
}

// Output is everything Run produces.
type Output struct {
	Netlist       string
	Export        *netlist.Export
	Nets          *netproc.NetSet
	Sheets        []Sheet                                // Walk order, root first
	Placement     map[string]placement.Result            // By sheet path
	Labels        map[string][]netproc.HierarchicalLabel // By sheet path
	LabelFailures []netproc.LabelFailure
	Issues        []circuit.Issue
}

// Files returns the schematic text of every sheet by file name.
func (o *Output) Files() map[string]string {
	out := make(map[string]string, len(o.Sheets))
	for _, s := range o.Sheets {
		out[s.File] = s.Text
	}
	return out
}

// Sheet returns the generated sheet at path.
func (o *Output) Sheet(path string) (Sheet, bool) {
	for _, s := range o.Sheets {
		if s.Path == path {
			return s, true
		}
	}
	return Sheet{}, false
}

// run holds the state of one Run call.
type run struct {
	*Generator
	arena  *circuit.Arena
	root   circuit.Handle
	log    *slog.Logger
	legacy bool // KiCad 6 instance paths
	out    *Output

	sheets map[circuit.Handle]*sheetState
	order  []circuit.Handle
}

// Run synthesizes the design below root. Components are modified in place:
// they receive pins, references, UUIDs and their final positions.
func (g *Generator) Run(arena *circuit.Arena, root circuit.Handle) (*Output, error) {
	format, err := schematic.FormatVersion(g.KiCad)
	if err != nil {
		return nil, err
	}
	cfg := g.Placement
	if cfg == (placement.Config{}) {
		cfg = placement.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = g.Logger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		Generator: g,
		arena:     arena,
		root:      root,
		log:       logging.OrDiscard(g.Logger),
		legacy:    format < 20230121,
		out: &Output{
			Placement: make(map[string]placement.Result),
			Labels:    make(map[string][]netproc.HierarchicalLabel),
		},
		sheets: make(map[circuit.Handle]*sheetState),
	}
	if _, err := arena.Circuit(root); err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}

	if err := r.applyPins(); err != nil {
		return r.out, err
	}
	if err := arena.FinalizeReferences(root); err != nil {
		return r.out, fmt.Errorf("synth: %w", err)
	}
	r.out.Issues = append(r.out.Issues, arena.Validate(root)...)
	if circuit.HasErrors(r.out.Issues) {
		return r.out, ErrInvalidCircuit
	}
	if err := r.indexSheets(); err != nil {
		return r.out, err
	}
	if err := arena.AssignUUIDs(root, g.UUIDSource); err != nil {
		return r.out, fmt.Errorf("synth: %w", err)
	}
	r.normalisePins()

	if err := r.place(cfg); err != nil {
		return r.out, err
	}

	nets, err := netproc.Collect(arena, root, netproc.CollectOptions{Logger: g.Logger})
	if err != nil {
		return r.out, fmt.Errorf("synth: %w", err)
	}
	r.out.Nets = nets

	r.generateLabels()

	export, err := netlist.Build(arena, root, nets, netlist.Options{
		Date:       g.Date,
		Tool:       g.Tool,
		LibraryDir: g.LibraryDir,
		UUIDSource: g.UUIDSource,
	})
	if err != nil {
		return r.out, fmt.Errorf("synth: %w", err)
	}
	r.out.Export = export
	r.out.Netlist = export.Format()

	if err := r.renderSheets(); err != nil {
		return r.out, err
	}
	return r.out, nil
}

// indexSheets records every circuit with its file and page and rejects
// designs where two sheets would share a file.
func (r *run) indexSheets() error {
	files := make(map[string]string)
	return r.arena.Walk(r.root, func(h circuit.Handle, c *circuit.Circuit, path string) error {
		file := c.SheetFile()
		if other, ok := files[file]; ok {
			return fmt.Errorf("%w: %s and %s both use %s", ErrDuplicateSheet, other, path, file)
		}
		files[file] = path
		r.sheets[h] = &sheetState{
			handle:  h,
			circuit: c,
			path:    path,
			file:    file,
			page:    len(r.order) + 1,
			isRoot:  h == r.root,
		}
		r.order = append(r.order, h)
		return nil
	})
}

// newUUID draws the next generated identity.
func (r *run) newUUID() (string, error) {
	if r.UUIDSource == nil {
		return uuid.NewString(), nil
	}
	id, err := uuid.NewRandomFromReader(r.UUIDSource)
	if err != nil {
		return "", fmt.Errorf("synth: uuid: %w", err)
	}
	return id.String(), nil
}
