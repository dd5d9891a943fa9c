package feedback

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/llm"
)

// HeuristicModel labels feedback produced without a language model.
const HeuristicModel = "heuristic"

const maxListItems = 4

var errBadCritique = errors.New("model returned an unusable critique")

// parseCritique reads the model's JSON answer.
func parseCritique(content string) (feedback.Feedback, error) {
	raw, ok := llm.ExtractJSON(content)
	if !ok {
		return feedback.Feedback{}, errBadCritique
	}
	doc := gjson.Parse(raw)
	score := doc.Get("score")
	summary := strings.TrimSpace(doc.Get("summary").String())
	if !score.Exists() || score.Type != gjson.Number || summary == "" {
		return feedback.Feedback{}, fmt.Errorf("%w: missing score or summary", errBadCritique)
	}
	return feedback.Feedback{
		Score:        clampScore(int(score.Int())),
		Summary:      summary,
		Strengths:    stringList(doc.Get("strengths")),
		Improvements: stringList(doc.Get("improvements")),
	}, nil
}

func stringList(v gjson.Result) []string {
	out := []string{}
	v.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return len(out) < maxListItems
	})
	return out
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Target response lengths in words per drill type.
var targetWords = map[drill.Type]int{
	drill.TypeCalculation:  40,
	drill.TypeBrainteaser:  60,
	drill.TypeMarketSizing: 120,
	drill.TypeFramework:    150,
	drill.TypeCasePrompt:   180,
}

var (
	numberPattern     = regexp.MustCompile(`\d+(?:[.,]\d+)?%?`)
	conclusionPattern = regexp.MustCompile(`(?i)\b(recommend|recommendation|conclusion|therefore|overall|in summary|answer)\b`)
)

// HeuristicDrill scores a response from its length, structure, use of numbers
// and presence of a conclusion.
func HeuristicDrill(sub DrillSubmission) feedback.Feedback {
	resp := strings.TrimSpace(sub.Response)
	if resp == "" {
		return feedback.Feedback{
			Score:        0,
			Summary:      "No response was submitted.",
			Strengths:    []string{},
			Improvements: []string{"Write out your approach, even if you run short on time."},
			Model:        HeuristicModel,
		}
	}

	words := len(strings.Fields(resp))
	target := targetWords[sub.Drill.Type]
	if target == 0 {
		target = 120
	}
	length := ratio(words, target) * 40

	structured := 0
	for _, line := range strings.Split(resp, "\n") {
		if isStructuredLine(line) {
			structured++
		}
	}
	structure := ratio(structured, 4) * 30

	numbers := len(numberPattern.FindAllString(resp, -1))
	quant := ratio(numbers, 3) * 20

	conclusion := 0.0
	if conclusionPattern.MatchString(resp) {
		conclusion = 10
	}

	score := clampScore(int(length + structure + quant + conclusion + 0.5))
	f := feedback.Feedback{
		Score:        score,
		Strengths:    []string{},
		Improvements: []string{},
		Model:        HeuristicModel,
	}
	note := func(ok bool, strength, improvement string) {
		if ok {
			f.Strengths = append(f.Strengths, strength)
		} else {
			f.Improvements = append(f.Improvements, improvement)
		}
	}
	note(length >= 30, "Thorough response with enough depth.", fmt.Sprintf("Develop your answer further; aim for roughly %d words.", target))
	note(structure >= 15, "Clear, structured layout.", "Structure your answer into numbered or bulleted buckets.")
	note(quant >= 10, "Backs reasoning with numbers.", "Quantify your reasoning with explicit numbers and assumptions.")
	note(conclusion > 0, "Lands on a clear conclusion.", "Finish with an explicit recommendation or answer.")

	f.Summary = fmt.Sprintf("%s Heuristic score %d/100 based on depth, structure, quantification and conclusion.",
		bandSummary(score), score)
	return f
}

// HeuristicSimulation turns the engine result into a critique.
func HeuristicSimulation(attempt simulation.Attempt, result ecosystem.Result) feedback.Feedback {
	f := feedback.Feedback{
		Score:        result.Score,
		Strengths:    []string{},
		Improvements: []string{},
		Model:        HeuristicModel,
	}
	if len(result.Feedback) > 0 {
		f.Summary = result.Feedback[0]
		for _, hint := range result.Feedback[1:] {
			if len(f.Improvements) < maxListItems {
				f.Improvements = append(f.Improvements, hint)
			}
		}
	} else {
		f.Summary = bandSummary(result.Score)
	}

	m := result.Metrics
	if m.Diversity >= 70 {
		f.Strengths = append(f.Strengths, "Balanced mix of producers and consumers.")
	}
	if m.TrophicEfficiency >= 70 {
		f.Strengths = append(f.Strengths, "Efficient energy transfer between trophic levels.")
	}
	if m.EnvironmentalStress <= 20 {
		f.Strengths = append(f.Strengths, "Environment tuned close to optimal conditions.")
	}
	if result.Survivors > 0 && len(result.Extinct) == 0 {
		f.Strengths = append(f.Strengths, "Every species survived the run.")
	}
	return f
}

func isStructuredLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	switch line[0] {
	case '-', '*', '#':
		return true
	}
	if strings.HasPrefix(line, "•") {
		return true
	}
	// "1." / "2)" style numbering
	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return true
	}
	return strings.HasSuffix(line, ":")
}

func ratio(n, target int) float64 {
	if target <= 0 || n >= target {
		return 1
	}
	return float64(n) / float64(target)
}

func bandSummary(score int) string {
	switch ecosystem.RatingFor(score) {
	case ecosystem.RatingExcellent:
		return "Excellent work."
	case ecosystem.RatingGood:
		return "Good answer with a few gaps."
	case ecosystem.RatingFair:
		return "A fair start that needs more rigor."
	default:
		return "This needs significant work."
	}
}
