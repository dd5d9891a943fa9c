package ecosystem

import (
	"fmt"
	"math"
)

// Rating is the qualitative band of a final score.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "needs_work"
)

// Result summarizes a finished simulation.
type Result struct {
	Score     int      `json:"score"`
	Rating    Rating   `json:"rating"`
	Status    Status   `json:"status"`
	EndReason string   `json:"end_reason"`
	Ticks     int      `json:"ticks"`
	Survivors int      `json:"survivors"`
	Extinct   []string `json:"extinct,omitempty"`
	Metrics   Metrics  `json:"metrics"`
	Feedback  []string `json:"feedback"`
}

// Metric thresholds that trigger targeted hints.
const (
	lowDiversity   = 50.0
	lowTrophic     = 40.0
	highStress     = 40.0
	excellentScore = 80
	goodScore      = 60
	fairScore      = 40
)

// Result scores a finished simulation. A collapsed ecosystem scores zero.
func (e *Engine) Result() (Result, error) {
	st := e.state
	if !st.Status.Finished() {
		return Result{}, ErrNotFinished
	}

	score := int(math.Round(clampScore(st.StabilityScore)))
	if st.Status == StatusFailed {
		score = 0
	}
	res := Result{
		Score:     score,
		Rating:    RatingFor(score),
		Status:    st.Status,
		EndReason: st.EndReason,
		Ticks:     st.Tick,
		Survivors: len(st.Species),
		Extinct:   append([]string(nil), st.Extinct...),
		Metrics:   st.Metrics,
	}
	res.Feedback = feedbackFor(res)
	return res, nil
}

// RatingFor maps a score onto its rating band.
func RatingFor(score int) Rating {
	switch {
	case score >= excellentScore:
		return RatingExcellent
	case score >= goodScore:
		return RatingGood
	case score >= fairScore:
		return RatingFair
	default:
		return RatingPoor
	}
}

func feedbackFor(res Result) []string {
	var out []string
	switch res.Rating {
	case RatingExcellent:
		out = append(out, "Excellent: the ecosystem reached a highly stable balance.")
	case RatingGood:
		out = append(out, "Good: the ecosystem is stable with room to fine-tune.")
	case RatingFair:
		out = append(out, "Fair: the ecosystem survived but remained fragile.")
	default:
		out = append(out, "Needs work: the ecosystem failed to stabilize.")
	}

	if res.EndReason == EndCollapse {
		out = append(out, "Every species went extinct; start with producers that can sustain the food web.")
	}
	if res.EndReason == EndAborted {
		out = append(out, "The simulation was stopped before it could finish.")
	}
	if len(res.Extinct) > 0 && res.Survivors > 0 {
		out = append(out, fmt.Sprintf("%d species went extinct during the run.", len(res.Extinct)))
	}
	if res.Survivors > 0 && res.Metrics.Diversity < lowDiversity {
		out = append(out, "Diversity is low; add species or balance their energy levels.")
	}
	if res.Survivors > 0 && res.Metrics.TrophicEfficiency < lowTrophic {
		out = append(out, "Producers and consumers are out of balance; adjust the food chain.")
	}
	if res.Metrics.EnvironmentalStress > highStress {
		out = append(out, "Environmental conditions are far from optimal; revisit temperature, depth, salinity and light.")
	}
	return out
}
