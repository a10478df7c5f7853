package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/board"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/netproc"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/placement"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/synth"
)

// addPlacementFlags registers the flags of every command that places a
// design.
func addPlacementFlags(c *cobra.Command) {
	c.Flags().Float64("spacing", 0, "minimum distance between components in mm")
	c.Flags().Int("iterations", 0, "iterations per placement level")
	c.Flags().Int64("seed", 0, "seed of every random tie-break")
	c.Flags().String("board", "", "take the placement area from the Edge.Cuts outline of a .kicad_pcb")
	c.Flags().Float64("board-width", 0, "placement area width in mm")
	c.Flags().Float64("board-height", 0, "placement area height in mm")
	c.Flags().String("library-dir", "", "directory prefix of the netlist library URIs")
}

// placementConfig layers the defaults, the "placement" section of the config
// file and the command line flags.
func placementConfig(c *cobra.Command) (placement.Config, error) {
	cfg := placement.DefaultConfig()
	if config.IsSet("placement") {
		if err := config.UnmarshalKey("placement", &cfg); err != nil {
			return cfg, fmt.Errorf("invalid placement config: %w", err)
		}
	}
	flags := c.Flags()
	if flags.Changed("spacing") {
		cfg.ComponentSpacing, _ = flags.GetFloat64("spacing")
	}
	if flags.Changed("iterations") {
		cfg.IterationsPerLevel, _ = flags.GetInt("iterations")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	cfg.Logger = logger
	return cfg, cfg.Validate()
}

// placementBoard returns the placement area: a board outline file wins over
// explicit dimensions.
func placementBoard(c *cobra.Command) (placement.Board, error) {
	flags := c.Flags()
	if file, _ := flags.GetString("board"); file != "" {
		outline, err := board.ReadOutlineFile(file)
		if err != nil {
			return placement.Board{}, fmt.Errorf("failed to read board outline: %w", err)
		}
		logger.Debug("board outline", "file", file, "segments", len(outline.Segments),
			"width", outline.Bounds.Width(), "height", outline.Bounds.Height())
		return placement.BoardFromBox(outline.Bounds), nil
	}
	b := placement.Board{
		Width:  config.GetFloat64("board.width"),
		Height: config.GetFloat64("board.height"),
	}
	if flags.Changed("board-width") {
		b.Width, _ = flags.GetFloat64("board-width")
	}
	if flags.Changed("board-height") {
		b.Height, _ = flags.GetFloat64("board-height")
	}
	return b, nil
}

// libraries is the symbol library stack of one command.
type libraries struct {
	provider library.Provider
	symbols  *library.SchematicProvider
	cache    *library.BoltCache
}

// openLibraries loads the --lib files and the "libs" config entry, wrapped
// in the bolt cache when --cache is set.
func openLibraries() (*libraries, error) {
	paths := append(append([]string(nil), libFiles...), config.GetStringSlice("libs")...)
	libs := &libraries{}
	if len(paths) > 0 {
		sp, err := library.LoadFiles(paths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load libraries: %w", err)
		}
		libs.symbols = sp
		libs.provider = sp
		logger.Debug("libraries loaded", "files", len(paths), "symbols", len(sp.Symbols()))
	}
	if file := cacheFile; file != "" || config.GetString("cache") != "" {
		if file == "" {
			file = config.GetString("cache")
		}
		var next library.Provider
		if libs.symbols != nil {
			next = libs.symbols
		}
		cache, err := library.OpenBoltCache(file, next)
		if err != nil {
			return nil, err
		}
		libs.cache = cache
		libs.provider = cache
	}
	return libs, nil
}

func (l *libraries) Close() error {
	if l.cache != nil {
		return l.cache.Close()
	}
	return nil
}

// index builds a search index over the loaded symbols, nil without any.
func (l *libraries) index() (*library.Index, error) {
	if l.symbols == nil {
		return nil, nil
	}
	return library.NewIndex(l.symbols.LibSymbols())
}

// resolveSymbols looks for components whose symbol the libraries do not
// know. With --interactive the user picks a replacement; otherwise the
// closest matches are logged.
func resolveSymbols(out io.Writer, arena *circuit.Arena, root circuit.Handle, libs *libraries) error {
	if libs.provider == nil {
		return nil
	}
	idx, err := libs.index()
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
	}

	replaced := make(map[string]string)
	for _, comp := range arena.AllComponents(root) {
		if comp.Symbol == "" {
			continue
		}
		if repl, ok := replaced[comp.Symbol]; ok {
			if repl != "" {
				comp.Symbol = repl
			}
			continue
		}
		lib, part := library.SplitID(comp.Symbol)
		_, err := libs.provider.Pins(lib, part)
		if err == nil {
			continue
		}
		if !errors.Is(err, library.ErrSymbolNotFound) {
			return err
		}

		missing := comp.Symbol
		if !interactive {
			logger.Warn("symbol not found", "symbol", missing, "suggestions", suggest(idx, part, 3))
			replaced[missing] = ""
			continue
		}
		fmt.Fprintf(out, "Symbol %s (%s) is not in the libraries. Enter a replacement, empty keeps it:\n",
			missing, describe(comp))
		answer := strings.TrimSpace(prompt.Input("> ", symbolCompleter(idx)))
		replaced[missing] = answer
		if answer != "" {
			comp.Symbol = answer
		}
	}
	return nil
}

func describe(comp *circuit.Component) string {
	if comp.Reference != "" {
		return comp.Reference
	}
	return comp.Value
}

func suggest(idx *library.Index, text string, limit int) []string {
	if idx == nil || text == "" {
		return nil
	}
	hits, err := idx.Search(text, limit)
	if err != nil {
		return nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func symbolCompleter(idx *library.Index) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		word := d.GetWordBeforeCursor()
		if idx == nil || word == "" {
			return nil
		}
		hits, err := idx.Search(word, 10)
		if err != nil {
			return nil
		}
		suggestions := make([]prompt.Suggest, 0, len(hits))
		for _, h := range hits {
			suggestions = append(suggestions, prompt.Suggest{Text: h.ID, Description: fmt.Sprintf("score %.2f", h.Score)})
		}
		return suggestions
	}
}

// design is a loaded and synthesized circuit description.
type design struct {
	arena *circuit.Arena
	root  circuit.Handle
	out   *synth.Output
}

// synthesize loads the circuit description at path and runs the pipeline.
// Validation issues are reported on stderr.
func synthesize(c *cobra.Command, path string) (*design, error) {
	arena, root, err := circuit.LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := placementConfig(c)
	if err != nil {
		return nil, err
	}
	area, err := placementBoard(c)
	if err != nil {
		return nil, err
	}
	libs, err := openLibraries()
	if err != nil {
		return nil, err
	}
	defer libs.Close()
	if err := resolveSymbols(c.OutOrStdout(), arena, root, libs); err != nil {
		return nil, err
	}

	libraryDir, _ := c.Flags().GetString("library-dir")
	if libraryDir == "" {
		libraryDir = config.GetString("library_dir")
	}
	g := &synth.Generator{
		Provider:  libs.provider,
		Placement: cfg,
		Labels: netproc.LabelOptions{
			Shape:    config.GetString("labels.shape"),
			FontSize: config.GetFloat64("labels.font_size"),
		},
		Board:      area,
		KiCad:      config.GetString("kicad"),
		LibraryDir: libraryDir,
		Logger:     logger,
	}
	out, err := g.Run(arena, root)
	if out != nil {
		reportIssues(c.ErrOrStderr(), out)
	}
	if err != nil {
		return nil, err
	}
	return &design{arena: arena, root: root, out: out}, nil
}

func reportIssues(w io.Writer, out *synth.Output) {
	for _, is := range out.Issues {
		if is.Severity == circuit.SeverityInfo && !verbose {
			continue
		}
		fmt.Fprintln(w, is)
	}
	for _, f := range out.LabelFailures {
		fmt.Fprintf(w, "label: %v\n", f)
	}
}
