package ecosystem

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current status.
var ErrInvalidTransition = errors.New("operation not allowed in current status")

// ErrNotFinished is returned by Result before the simulation ends.
var ErrNotFinished = errors.New("simulation has not finished")

// ValidationError collects every problem found in an input.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "invalid simulation input"
	case 1:
		return e.Issues[0]
	default:
		return "invalid simulation input: " + strings.Join(e.Issues, "; ")
	}
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func (e *ValidationError) orNil() error {
	if !e.HasIssues() {
		return nil
	}
	sort.Strings(e.Issues)
	return e
}

func validateSpecies(cfg Config, s Species, verr *ValidationError) {
	label := s.ID
	if strings.TrimSpace(s.ID) == "" {
		verr.Add("species id is required")
		label = s.Name
	}
	if strings.TrimSpace(s.Name) == "" {
		verr.Addf("species %s: name is required", label)
	}
	if !s.Type.Valid() {
		verr.Addf("species %s: unknown type %q", label, s.Type)
	}
	if !(s.EnergyRequirement > 0 && s.EnergyRequirement <= cfg.MaxEnergy) {
		verr.Addf("species %s: energy_requirement must be within (0, %g]", label, cfg.MaxEnergy)
	}
	if !(s.ReproductionRate >= 0 && s.ReproductionRate <= 1) {
		verr.Addf("species %s: reproduction_rate must be within [0, 1]", label)
	}
}

func validateEnvironment(cfg Config, env Environment, verr *ValidationError) {
	check := func(name string, r ParameterRange, v float64) {
		if !r.contains(v) {
			verr.Addf("environment: %s must be within [%g, %g]", name, r.Min, r.Max)
		}
	}
	check("temperature", cfg.Environment.Temperature, env.Temperature)
	check("depth", cfg.Environment.Depth, env.Depth)
	check("salinity", cfg.Environment.Salinity, env.Salinity)
	check("light_level", cfg.Environment.LightLevel, env.LightLevel)
}
