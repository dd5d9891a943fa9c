package feedback

import "time"

// TargetType names what a piece of feedback critiques.
type TargetType string

const (
	TargetDrill      TargetType = "drill"
	TargetSimulation TargetType = "simulation"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	return t == TargetDrill || t == TargetSimulation
}

// Feedback is a structured critique of an attempt.
type Feedback struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	TargetType   TargetType `json:"target_type"`
	TargetID     string     `json:"target_id"`
	Score        int        `json:"score"`
	Summary      string     `json:"summary"`
	Strengths    []string   `json:"strengths"`
	Improvements []string   `json:"improvements"`
	Model        string     `json:"model"`
	CreatedAt    time.Time  `json:"created_at"`
}
