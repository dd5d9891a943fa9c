// Package ecosystem implements the ecosystem simulation used by the
// simulation game: species and environment modeling, per-tick population
// dynamics and stability scoring. The package is pure; callers own
// persistence and synchronization.
package ecosystem

import "time"

// SpeciesType is the trophic role of a species.
type SpeciesType string

const (
	Producer SpeciesType = "producer"
	Consumer SpeciesType = "consumer"
)

// Valid reports whether t is a known type.
func (t SpeciesType) Valid() bool {
	return t == Producer || t == Consumer
}

// Species is one population in the ecosystem. EnergyRequirement is the
// quantity the step function evolves; a species is extinct once it reaches zero.
type Species struct {
	ID                string      `json:"id" yaml:"id"`
	Name              string      `json:"name" yaml:"name"`
	Type              SpeciesType `json:"type" yaml:"type"`
	EnergyRequirement float64     `json:"energy_requirement" yaml:"energy_requirement"`
	ReproductionRate  float64     `json:"reproduction_rate" yaml:"reproduction_rate"`
}

// Environment holds the abiotic parameters of the habitat.
type Environment struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Depth       float64 `json:"depth" yaml:"depth"`
	Salinity    float64 `json:"salinity" yaml:"salinity"`
	LightLevel  float64 `json:"light_level" yaml:"light_level"`
}

// InteractionType classifies a directed species pair.
type InteractionType string

const (
	Predation   InteractionType = "predation"
	Competition InteractionType = "competition"
	Symbiosis   InteractionType = "symbiosis"
)

// Interaction is a directed species pair. Its effect is applied to the source.
type Interaction struct {
	SourceID string          `json:"source_id"`
	TargetID string          `json:"target_id"`
	Type     InteractionType `json:"type"`
	Strength float64         `json:"strength"`
}

// Status is the lifecycle state of a simulation.
type Status string

const (
	StatusSetup     Status = "SETUP"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// End reasons recorded when a simulation finishes.
const (
	EndStable    = "stability_reached"
	EndTimeLimit = "time_limit"
	EndCollapse  = "collapse"
	EndAborted   = "aborted"
)

// Metrics are recomputed after every change to the species set and every step.
type Metrics struct {
	Diversity           float64 `json:"diversity"`
	TrophicEfficiency   float64 `json:"trophic_efficiency"`
	EnvironmentalStress float64 `json:"environmental_stress"`
}

// State is the full, serializable simulation state.
type State struct {
	Status         Status        `json:"status"`
	Species        []Species     `json:"species"`
	Environment    Environment   `json:"environment"`
	Interactions   []Interaction `json:"interactions"`
	Metrics        Metrics       `json:"metrics"`
	StabilityScore float64       `json:"stability_score"`
	Tick           int           `json:"tick"`
	Extinct        []string      `json:"extinct,omitempty"`
	EndReason      string        `json:"end_reason,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Species = append([]Species(nil), s.Species...)
	out.Interactions = append([]Interaction(nil), s.Interactions...)
	out.Extinct = append([]string(nil), s.Extinct...)
	if s.StartedAt != nil {
		started := *s.StartedAt
		out.StartedAt = &started
	}
	return out
}
