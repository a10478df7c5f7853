package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/bom"
)

var bomCmd = &cobra.Command{
	Use:   "bom <circuit.yaml>",
	Short: "Write the BOM and pick-and-place spreadsheet of a design",
	Long: `Synthesize a circuit description and write an .xlsx workbook with a BOM
sheet (parts grouped by value, footprint and symbol) and a CPL sheet with
the placed positions. Without -o the BOM is printed as a table.`,
	Args: cobra.ExactArgs(1),
	RunE: runBOM,
}

func init() {
	rootCmd.AddCommand(bomCmd)
	addPlacementFlags(bomCmd)
	bomCmd.Flags().StringP("output", "o", "", "output workbook (.xlsx)")
	bomCmd.Flags().Bool("no-cpl", false, "leave out the CPL sheet")
}

func runBOM(cmd *cobra.Command, args []string) error {
	d, err := synthesize(cmd, args[0])
	if err != nil {
		return err
	}
	components := d.arena.AllComponents(d.root)
	entries := bom.Group(components)

	w := cmd.OutOrStdout()
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		fmt.Fprintf(w, "%-4s %-12s %-32s %s\n", "Qty", "Comment", "Footprint", "Designators")
		for _, e := range entries {
			fmt.Fprintf(w, "%-4d %-12s %-32s %s\n", e.Quantity(), e.Comment, e.Footprint, strings.Join(e.Designators, ","))
		}
		return nil
	}

	var placements []bom.Placement
	if noCPL, _ := cmd.Flags().GetBool("no-cpl"); !noCPL {
		placements = bom.Placements(components)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	if err := bom.WriteXLSX(f, entries, placements); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s: %d BOM lines, %d placements\n", output, len(entries), len(placements))
	return nil
}
