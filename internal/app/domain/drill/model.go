package drill

import "time"

// Type categorizes a drill.
type Type string

const (
	TypeCasePrompt   Type = "case_prompt"
	TypeCalculation  Type = "calculation"
	TypeMarketSizing Type = "market_sizing"
	TypeFramework    Type = "framework"
	TypeBrainteaser  Type = "brainteaser"
)

// Valid reports whether t is a known drill type.
func (t Type) Valid() bool {
	switch t {
	case TypeCasePrompt, TypeCalculation, TypeMarketSizing, TypeFramework, TypeBrainteaser:
		return true
	}
	return false
}

// Difficulty ranks a drill.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Drill is a timed practice exercise.
type Drill struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Type             Type       `json:"type"`
	Difficulty       Difficulty `json:"difficulty"`
	Prompt           string     `json:"prompt"`
	TimeLimitSeconds int        `json:"time_limit_seconds"`
	Premium          bool       `json:"premium"`
	Tags             []string   `json:"tags"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TimeLimit returns the drill's time limit as a duration.
func (d Drill) TimeLimit() time.Duration {
	return time.Duration(d.TimeLimitSeconds) * time.Second
}

// Filter narrows drill listings. Zero values match everything.
type Filter struct {
	Type       Type
	Difficulty Difficulty
	Premium    *bool
	Limit      int
}

// Matches reports whether d satisfies f.
func (f Filter) Matches(d Drill) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Difficulty != "" && d.Difficulty != f.Difficulty {
		return false
	}
	if f.Premium != nil && d.Premium != *f.Premium {
		return false
	}
	return true
}

// AttemptStatus tracks a user's attempt at a drill.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptEvaluated  AttemptStatus = "evaluated"
	AttemptExpired    AttemptStatus = "expired"
)

// Attempt is one timed run of a drill by a user.
type Attempt struct {
	ID          string        `json:"id"`
	DrillID     string        `json:"drill_id"`
	UserID      string        `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	Response    string        `json:"response,omitempty"`
	Score       *int          `json:"score,omitempty"`
	FeedbackID  string        `json:"feedback_id,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Deadline    time.Time     `json:"deadline"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
