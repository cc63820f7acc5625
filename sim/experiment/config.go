package experiment

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/stats"
)

// Config is the top-level experiment configuration.
// Loaded from YAML via LoadConfig(path).
type Config struct {
	Seed         *int64             `yaml:"seed,omitempty"`
	Replications int                `yaml:"replications" validate:"gt=0"`
	Horizon      float64            `yaml:"horizon" validate:"gt=0"`
	Workers      int                `yaml:"workers,omitempty" validate:"gte=0"`
	Stats        []string           `yaml:"stats,omitempty"`
	Parameters   map[string]float64 `yaml:"parameters,omitempty"`
	Sweep        *SweepSpec         `yaml:"sweep,omitempty"`
	Process      NodeSpec           `yaml:"process"`
}

// SweepSpec varies one experiment parameter from Start to End (inclusive) by Step.
type SweepSpec struct {
	Parameter string  `yaml:"parameter" validate:"required"`
	Start     float64 `yaml:"start"`
	End       float64 `yaml:"end" validate:"gtefield=Start"`
	Step      float64 `yaml:"step" validate:"gt=0"`
}

// NodeSpec describes one node of a process tree. Which fields are required depends on Kind;
// the Registry checks them when the tree is built.
type NodeSpec struct {
	Kind          string             `yaml:"kind" validate:"required"`
	Name          string             `yaml:"name,omitempty"`
	Params        map[string]float64 `yaml:"params,omitempty"`
	Bind          map[string]string  `yaml:"bind,omitempty"`
	Probabilities []float64          `yaml:"probabilities,omitempty"`
	Children      []NodeSpec         `yaml:"children,omitempty" validate:"dive"`
}

// DefaultStats is the statistics table used when a config lists none.
var DefaultStats = []string{"median", "average", "interval95"}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	// Report yaml field names so errors point at what the user wrote.
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// LoadConfig reads and parses a YAML experiment file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML experiment document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing experiment config: %w: %w", sim.ErrConfiguration, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults() {
	if len(c.Stats) == 0 {
		c.Stats = append([]string(nil), DefaultStats...)
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Parameters == nil {
		c.Parameters = make(map[string]float64)
	}
}

// Validate checks the structural constraints of the config. Kind-specific fields are checked
// by the Registry when the process tree is built.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return sim.NewFieldError(sim.ErrConfiguration, field, "failed %q validation (value %v)", fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validating experiment config: %w: %w", sim.ErrConfiguration, err)
	}
	if math.IsNaN(c.Horizon) || math.IsInf(c.Horizon, 0) {
		return sim.NewFieldError(sim.ErrConfiguration, "horizon", "must be finite, got %v", c.Horizon)
	}
	if c.Sweep != nil {
		if _, err := SweepValues(*c.Sweep); err != nil {
			return err
		}
	}
	if _, err := stats.TableFor(c.Stats); err != nil {
		return sim.NewFieldError(sim.ErrConfiguration, "stats", "%v", err)
	}
	return nil
}

// StatTable builds the statistics table named by Stats.
func (c *Config) StatTable() (stats.Table, error) {
	return stats.TableFor(c.Stats)
}
