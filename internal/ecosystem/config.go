package ecosystem

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// AbsoluteMinSpecies is the floor below which no configuration may go.
const AbsoluteMinSpecies = 2

// Config tunes the simulation.
type Config struct {
	MinSpecies        int               `yaml:"min_species"`
	MaxSpecies        int               `yaml:"max_species"`
	TimeLimit         time.Duration     `yaml:"time_limit"`
	MaxEnergy         float64           `yaml:"max_energy"`
	BaseGrowth        float64           `yaml:"base_growth"`
	InteractionScale  float64           `yaml:"interaction_scale"`
	StressPenalty     float64           `yaml:"stress_penalty"`
	IdealTrophicRatio float64           `yaml:"ideal_trophic_ratio"`
	TargetStability   float64           `yaml:"target_stability"`
	Environment       EnvironmentRanges `yaml:"environment"`
}

// EnvironmentRanges describes every environment parameter.
type EnvironmentRanges struct {
	Temperature ParameterRange `yaml:"temperature"`
	Depth       ParameterRange `yaml:"depth"`
	Salinity    ParameterRange `yaml:"salinity"`
	LightLevel  ParameterRange `yaml:"light_level"`
}

// ParameterRange bounds one parameter and defines its optimum.
type ParameterRange struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Optimal   float64 `yaml:"optimal"`
	Tolerance float64 `yaml:"tolerance"`
}

func (r ParameterRange) contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Min && v <= r.Max
}

func (r ParameterRange) deviation(v float64) float64 {
	if r.Tolerance <= 0 {
		return 0
	}
	return math.Min(1, math.Abs(v-r.Optimal)/r.Tolerance)
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic(fmt.Sprintf("ecosystem: embedded defaults: %v", err))
	}
	return cfg
}

// LoadConfig overlays the yaml file at path on the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read simulation config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse simulation config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	verr := &ValidationError{}
	if c.MinSpecies < AbsoluteMinSpecies {
		verr.Addf("min_species must be at least %d", AbsoluteMinSpecies)
	}
	if c.MaxSpecies < c.MinSpecies {
		verr.Add("max_species must not be below min_species")
	}
	if c.TimeLimit <= 0 {
		verr.Add("time_limit must be positive")
	}
	if c.MaxEnergy <= 0 {
		verr.Add("max_energy must be positive")
	}
	if c.TargetStability <= 0 || c.TargetStability > 100 {
		verr.Add("target_stability must be within (0, 100]")
	}
	if c.IdealTrophicRatio <= 0 {
		verr.Add("ideal_trophic_ratio must be positive")
	}
	for name, r := range map[string]ParameterRange{
		"temperature": c.Environment.Temperature,
		"depth":       c.Environment.Depth,
		"salinity":    c.Environment.Salinity,
		"light_level": c.Environment.LightLevel,
	} {
		if r.Max <= r.Min || !r.contains(r.Optimal) || r.Tolerance <= 0 {
			verr.Addf("environment.%s range is inconsistent", name)
		}
	}
	return verr.orNil()
}
