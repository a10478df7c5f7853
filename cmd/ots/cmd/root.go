package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OpenTraceLab/OpenTraceSynth/internal/logging"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/schematic"
)

var (
	// Global flags
	verbose     bool
	configFile  string
	libFiles    []string
	cacheFile   string
	interactive bool

	config = viper.New()
	logger = logging.OrDiscard(nil)
)

var rootCmd = &cobra.Command{
	Use:   "ots",
	Short: "OpenTraceSynth - KiCad netlists and schematics from circuit descriptions",
	Long: `OpenTraceSynth (ots) turns a YAML circuit description into KiCad files:
  - reference designators, pin data from symbol libraries
  - force-directed placement of every sheet
  - hierarchical labels, a KiCad netlist and one schematic per sheet
  - BOM and pick-and-place spreadsheets

Examples:
  ots place board.yaml                                # Place and print positions
  ots netlist board.yaml -o board.net                 # Write the netlist
  ots sch generate board.yaml -d out -l Device.kicad_sym
  ots bom board.yaml -o bom.xlsx                      # BOM and CPL sheets
  ots check out/board.kicad_sch                       # Lint generated files
  ots lib search "npn transistor" -l Device.kicad_sym`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&configFile, "config", "", "config file (YAML, TOML or JSON)")
	pf.StringArrayVarP(&libFiles, "lib", "l", nil,
		"symbol library (.kicad_sym) or schematic to take symbols from (repeatable)")
	pf.StringVar(&cacheFile, "cache", "", "bolt database caching pin definitions")
	pf.BoolVarP(&interactive, "interactive", "i", false,
		"ask for a replacement when a symbol is not in the libraries")
	pf.String("kicad", schematic.DefaultKiCad, "target KiCad release (6.0, 7.0, 8.0)")

	config.SetDefault("kicad", schematic.DefaultKiCad)
	config.BindPFlag("kicad", pf.Lookup("kicad"))
	config.SetEnvPrefix("OTS")
	config.AutomaticEnv()
}

// setup builds the logger and reads the config file.
func setup(cmd *cobra.Command, args []string) error {
	logger = logging.New(cmd.ErrOrStderr(), verbose)
	if configFile == "" {
		return nil
	}
	config.SetConfigFile(configFile)
	if err := config.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	logger.Debug("config loaded", "file", config.ConfigFileUsed())
	return nil
}
