package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var netlistCmd = &cobra.Command{
	Use:   "netlist <circuit.yaml>",
	Short: "Generate a KiCad netlist",
	Long:  `Synthesize a circuit description and write its KiCad netlist (.net).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runNetlist,
}

func init() {
	rootCmd.AddCommand(netlistCmd)
	addPlacementFlags(netlistCmd)
	netlistCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func runNetlist(cmd *cobra.Command, args []string) error {
	d, err := synthesize(cmd, args[0])
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), d.out.Netlist)
		return err
	}
	if err := os.WriteFile(output, []byte(d.out.Netlist), 0o644); err != nil {
		return fmt.Errorf("failed to write netlist: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d components, %d nets\n",
		output, len(d.out.Export.Components), len(d.out.Export.Nets))
	return nil
}
