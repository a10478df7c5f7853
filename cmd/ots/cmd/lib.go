package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/library"
)

var libCmd = &cobra.Command{
	Use:   "lib",
	Short: "Symbol library operations",
	Long:  `Search the symbol libraries given with --lib and show symbol pins.`,
}

var libSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over symbol names, descriptions and pins",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibSearch,
}

var libPinsCmd = &cobra.Command{
	Use:   "pins <Library:Symbol>",
	Short: "Show the pins of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibPins,
}

func init() {
	rootCmd.AddCommand(libCmd)
	libCmd.AddCommand(libSearchCmd)
	libCmd.AddCommand(libPinsCmd)
	libSearchCmd.Flags().IntP("limit", "n", 10, "maximum number of results")
}

func runLibSearch(cmd *cobra.Command, args []string) error {
	libs, err := openLibraries()
	if err != nil {
		return err
	}
	defer libs.Close()
	idx, err := libs.index()
	if err != nil {
		return err
	}
	if idx == nil {
		return errors.New("no symbol libraries given, use --lib")
	}
	defer idx.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	hits, err := idx.Search(args[0], limit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintf(w, "No symbols match %q (%d indexed)\n", args[0], idx.Len())
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%-40s %.3f\n", h.ID, h.Score)
	}
	return nil
}

func runLibPins(cmd *cobra.Command, args []string) error {
	libs, err := openLibraries()
	if err != nil {
		return err
	}
	defer libs.Close()
	if libs.provider == nil {
		return errors.New("no symbol libraries given, use --lib or --cache")
	}

	lib, part := library.SplitID(args[0])
	pins, err := libs.provider.Pins(lib, part)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d pins\n", args[0], len(pins))
	for _, p := range pins {
		fmt.Fprintf(w, "  %-4s %-16s %-14s", p.Number, p.Name, p.Type)
		if p.HasGeometry {
			fmt.Fprintf(w, " (%.2f, %.2f) %3.0f", p.Position.X, p.Position.Y, p.Orientation)
		}
		fmt.Fprintln(w)
	}
	return nil
}
