// Package placement arranges schematic components with a force-directed
// layout: connected parts attract, every pair repels, the board edge pushes
// inward, and a simulated-annealing schedule settles the result before a
// best-effort collision clean-up.
package placement

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/OpenTraceLab/OpenTraceSynth/internal/logging"
)

// ErrInvalidConfig is returned by Validate and by every entry point that
// receives a configuration it cannot run with.
var ErrInvalidConfig = errors.New("placement: invalid config")

// Config holds the placement tunables. Field tags follow the option names
// accepted in configuration files.
type Config struct {
	ComponentSpacing        float64 `mapstructure:"component_spacing" yaml:"component_spacing"`
	AttractionStrength      float64 `mapstructure:"attraction_strength" yaml:"attraction_strength"`
	RepulsionStrength       float64 `mapstructure:"repulsion_strength" yaml:"repulsion_strength"`
	IterationsPerLevel      int     `mapstructure:"iterations_per_level" yaml:"iterations_per_level"`
	Damping                 float64 `mapstructure:"damping" yaml:"damping"`
	InitialTemperature      float64 `mapstructure:"initial_temperature" yaml:"initial_temperature"`
	CoolingRate             float64 `mapstructure:"cooling_rate" yaml:"cooling_rate"`
	EnableRotation          bool    `mapstructure:"enable_rotation" yaml:"enable_rotation"`
	InternalForceMultiplier float64 `mapstructure:"internal_force_multiplier" yaml:"internal_force_multiplier"`
	ConvergenceThreshold    float64 `mapstructure:"convergence_threshold" yaml:"convergence_threshold"`
	MaxMoveDistance         float64 `mapstructure:"max_move_distance" yaml:"max_move_distance"`

	// Seed drives every random tie-break. Runs with the same seed and input
	// produce the same layout.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Workers bounds the force computation pool; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" yaml:"workers"`

	Logger *slog.Logger `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the tuning used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ComponentSpacing:        5.0,
		AttractionStrength:      1.5,
		RepulsionStrength:       50.0,
		IterationsPerLevel:      100,
		Damping:                 0.8,
		InitialTemperature:      10.0,
		CoolingRate:             0.95,
		EnableRotation:          true,
		InternalForceMultiplier: 2.0,
		ConvergenceThreshold:    0.01,
		Seed:                    1,
	}
}

// Validate reports every out-of-range option. The returned error matches
// ErrInvalidConfig with errors.Is.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.ComponentSpacing > 0, "component_spacing must be > 0, got %v", c.ComponentSpacing)
	check(c.AttractionStrength >= 0, "attraction_strength must be >= 0, got %v", c.AttractionStrength)
	check(c.RepulsionStrength >= 0, "repulsion_strength must be >= 0, got %v", c.RepulsionStrength)
	check(c.IterationsPerLevel > 0, "iterations_per_level must be > 0, got %d", c.IterationsPerLevel)
	check(c.Damping >= 0 && c.Damping <= 1, "damping must be within [0, 1], got %v", c.Damping)
	check(c.InitialTemperature > 0, "initial_temperature must be > 0, got %v", c.InitialTemperature)
	check(c.CoolingRate > 0 && c.CoolingRate <= 1, "cooling_rate must be within (0, 1], got %v", c.CoolingRate)
	check(c.InternalForceMultiplier >= 0, "internal_force_multiplier must be >= 0, got %v", c.InternalForceMultiplier)
	check(c.ConvergenceThreshold >= 0, "convergence_threshold must be >= 0, got %v", c.ConvergenceThreshold)
	check(c.MaxMoveDistance >= 0, "max_move_distance must be >= 0, got %v", c.MaxMoveDistance)
	check(c.Workers >= 0, "workers must be >= 0, got %d", c.Workers)

	return errors.Join(errs...)
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) logger() *slog.Logger {
	return logging.OrDiscard(c.Logger)
}
