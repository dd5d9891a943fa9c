package ecosystem

// Interaction strengths of the fixed rule table.
const (
	PredationStrength   = 0.7
	CompetitionStrength = 0.3
	SymbiosisStrength   = 0.5
)

// Classify returns the interaction for the ordered pair (source, target):
// producer→consumer is predation, same type is competition, and everything
// else is symbiosis.
func Classify(source, target SpeciesType) (InteractionType, float64) {
	switch {
	case source == Producer && target == Consumer:
		return Predation, PredationStrength
	case source == target:
		return Competition, CompetitionStrength
	default:
		return Symbiosis, SymbiosisStrength
	}
}

// BuildInteractions creates one interaction per ordered pair of distinct species.
func BuildInteractions(species []Species) []Interaction {
	if len(species) < 2 {
		return nil
	}
	out := make([]Interaction, 0, len(species)*(len(species)-1))
	for _, source := range species {
		for _, target := range species {
			if source.ID == target.ID {
				continue
			}
			kind, strength := Classify(source.Type, target.Type)
			out = append(out, Interaction{
				SourceID: source.ID,
				TargetID: target.ID,
				Type:     kind,
				Strength: strength,
			})
		}
	}
	return out
}

// effect is the signed contribution of an interaction to its source species.
// Being preyed upon or competing costs energy; symbiosis provides it.
func effect(in Interaction) float64 {
	switch in.Type {
	case Symbiosis:
		return in.Strength
	default:
		return -in.Strength
	}
}
