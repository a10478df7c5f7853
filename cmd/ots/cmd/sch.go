package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mholt/archiver"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/refs"
)

var schCmd = &cobra.Command{
	Use:   "sch",
	Short: "KiCad schematic file operations",
	Long:  `Commands for generating and inspecting KiCad schematic files (.kicad_sch)`,
}

var schGenerateCmd = &cobra.Command{
	Use:   "generate <circuit.yaml>",
	Short: "Generate the schematics and netlist of a design",
	Long: `Synthesize a circuit description and write one .kicad_sch per sheet plus
the project netlist into the output directory.

With --archive the generated files are also packed into a zip file.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchGenerate,
}

var schInfoCmd = &cobra.Command{
	Use:   "info <schematic_file> [component]",
	Short: "Show schematic information",
	Long: `Display information about a KiCad schematic file.

Without component argument: shows schematic summary
With component argument: shows details for that specific component`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSchInfo,
}

func init() {
	rootCmd.AddCommand(schCmd)
	schCmd.AddCommand(schGenerateCmd)
	schCmd.AddCommand(schInfoCmd)

	addPlacementFlags(schGenerateCmd)
	schGenerateCmd.Flags().StringP("dir", "d", ".", "output directory")
	schGenerateCmd.Flags().String("archive", "", "also pack the generated files into this zip")
}

func runSchGenerate(cmd *cobra.Command, args []string) error {
	d, err := synthesize(cmd, args[0])
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := cmd.OutOrStdout()
	var written []string
	for _, s := range d.out.Sheets {
		path := filepath.Join(dir, s.File)
		if err := os.WriteFile(path, []byte(s.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write schematic: %w", err)
		}
		written = append(written, path)
		fmt.Fprintf(w, "Wrote %s (page %d, %d symbols)\n", path, s.Page, len(s.Schematic.Symbols))
	}

	project := strings.TrimSuffix(d.out.Sheets[0].File, ".kicad_sch")
	netPath := filepath.Join(dir, project+".net")
	if err := os.WriteFile(netPath, []byte(d.out.Netlist), 0o644); err != nil {
		return fmt.Errorf("failed to write netlist: %w", err)
	}
	written = append(written, netPath)
	fmt.Fprintf(w, "Wrote %s (%d nets)\n", netPath, len(d.out.Export.Nets))

	archive, _ := cmd.Flags().GetString("archive")
	if archive == "" {
		return nil
	}
	z := archiver.NewZip()
	z.OverwriteExisting = true
	if err := z.Archive(written, archive); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s (%d files)\n", archive, len(written))
	return nil
}

func runSchInfo(cmd *cobra.Command, args []string) error {
	filename := args[0]
	sch, err := schematic.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("error parsing schematic: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(args) >= 2 {
		return showComponentDetails(w, sch, args[1])
	}
	showSchemSummary(w, sch, filename)
	return nil
}

func showSchemSummary(w io.Writer, sch *schematic.Schematic, filename string) {
	fmt.Fprintf(w, "Schematic: %s\n", filename)
	fmt.Fprintf(w, "Version: %d\n", sch.Version)
	fmt.Fprintf(w, "Generator: %s", sch.Generator)
	if sch.GeneratorVer != "" {
		fmt.Fprintf(w, " v%s", sch.GeneratorVer)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Paper: %s\n", sch.Paper)
	fmt.Fprintln(w)

	// Statistics
	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Components: %d\n", len(sch.Symbols))
	fmt.Fprintf(w, "  Library symbols: %d\n", len(sch.LibSymbols))
	fmt.Fprintf(w, "  Wires: %d\n", len(sch.Wires))
	fmt.Fprintf(w, "  Labels: %d\n", len(sch.Labels))
	fmt.Fprintf(w, "  Global labels: %d\n", len(sch.GlobalLabels))
	fmt.Fprintf(w, "  Hierarchical labels: %d\n", len(sch.HierLabels))
	fmt.Fprintf(w, "  Sheets: %d\n", len(sch.Sheets))
	fmt.Fprintf(w, "  No-connects: %d\n", len(sch.NoConnects))
	fmt.Fprintln(w)

	if len(sch.Symbols) > 0 {
		fmt.Fprintln(w, "Components:")

		// Group by reference prefix
		byPrefix := make(map[string][]string)
		for _, sym := range sch.Symbols {
			ref := sym.Reference()
			if ref != "" {
				prefix := refs.ExtractPrefix(ref)
				byPrefix[prefix] = append(byPrefix[prefix], ref)
			}
		}

		var prefixes []string
		for p := range byPrefix {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)

		for _, prefix := range prefixes {
			designators := byPrefix[prefix]
			sort.Slice(designators, func(i, j int) bool { return refs.Less(designators[i], designators[j]) })
			fmt.Fprintf(w, "  %s: %s\n", prefix, strings.Join(designators, ", "))
		}
		fmt.Fprintln(w)
	}

	labels := sch.GetLabels()
	if len(labels) > 0 {
		fmt.Fprintln(w, "Net Labels:")
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(w, "  %s\n", l)
		}
		fmt.Fprintln(w)
	}

	if len(sch.Sheets) > 0 {
		fmt.Fprintln(w, "Hierarchical Sheets:")
		for _, sheet := range sch.Sheets {
			fmt.Fprintf(w, "  %s (%s)\n", sheet.Name, sheet.FileName)
			if len(sheet.Pins) > 0 {
				var pinNames []string
				for _, p := range sheet.Pins {
					pinNames = append(pinNames, p.Name)
				}
				fmt.Fprintf(w, "    Pins: %s\n", strings.Join(pinNames, ", "))
			}
		}
	}
}

func showComponentDetails(w io.Writer, sch *schematic.Schematic, ref string) error {
	sym := sch.GetSymbol(ref)
	if sym == nil {
		return fmt.Errorf("component %s not found", ref)
	}

	fmt.Fprintf(w, "Component: %s\n", ref)
	fmt.Fprintf(w, "Library: %s\n", sym.LibID)
	fmt.Fprintf(w, "Position: (%.2f, %.2f) angle %.0f\n", sym.Position.X, sym.Position.Y, float64(sym.Angle))
	if sym.Unit > 0 {
		fmt.Fprintf(w, "Unit: %d\n", sym.Unit)
	}
	fmt.Fprintf(w, "UUID: %s\n", sym.UUID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Properties:")
	for _, prop := range sym.Properties {
		if prop.Value != "" {
			fmt.Fprintf(w, "  %s: %s\n", prop.Key, prop.Value)
		}
	}

	if lib := sch.GetLibSymbol(sym.LibID); lib != nil && len(lib.Pins) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Pins:")
		for _, pin := range lib.Pins {
			fmt.Fprintf(w, "  %-4s %-16s %s\n", pin.Number, pin.Name, pin.Type)
		}
	}

	if len(sym.Instances) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Instances:")
		for _, inst := range sym.Instances {
			fmt.Fprintf(w, "  %q -> %s\n", inst.Path, inst.Reference)
		}
	}
	return nil
}
