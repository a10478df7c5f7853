package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/board"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/netlist"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Check KiCad files for well-formed S-expressions",
	Long: `Lint and parse KiCad files. The kind is taken from the extension:
  .kicad_sch  schematic
  .net        netlist
  .kicad_pcb  board (Edge.Cuts outline)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		summary, err := checkFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %s\n", path, summary)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func checkFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)

	switch filepath.Ext(path) {
	case ".kicad_sch":
		if err := sexp.Lint(text, "kicad_sch"); err != nil {
			return "", err
		}
		sch, err := schematic.ParseFile(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d symbols, %d sheets", len(sch.Symbols), len(sch.Sheets)), nil
	case ".net":
		if err := sexp.Lint(text, "export"); err != nil {
			return "", err
		}
		export, err := netlist.ParseString(text)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d components, %d nets", len(export.Components), len(export.Nets)), nil
	case ".kicad_pcb":
		if err := sexp.Lint(text, "kicad_pcb"); err != nil {
			return "", err
		}
		outline, err := board.ReadOutlineFile(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("outline %.2f x %.2f mm", outline.Bounds.Width(), outline.Bounds.Height()), nil
	default:
		return "", fmt.Errorf("unknown file kind %q", filepath.Ext(path))
	}
}
