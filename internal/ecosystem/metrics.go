package ecosystem

import "math"

// Stability weights.
const (
	diversityWeight = 0.3
	trophicWeight   = 0.3
	stressWeight    = 0.4
)

// ComputeMetrics derives the per-tick metrics for the given species and environment.
func ComputeMetrics(cfg Config, species []Species, env Environment) Metrics {
	return Metrics{
		Diversity:           Diversity(cfg, species),
		TrophicEfficiency:   TrophicEfficiency(cfg, species),
		EnvironmentalStress: EnvironmentalStress(cfg, env),
	}
}

// Diversity blends species richness (relative to the configured maximum) with
// Shannon evenness of the energy distribution. Range 0..100.
func Diversity(cfg Config, species []Species) float64 {
	n := len(species)
	if n == 0 {
		return 0
	}
	richness := math.Min(1, float64(n)/float64(cfg.MaxSpecies))

	total := 0.0
	for _, s := range species {
		total += s.EnergyRequirement
	}
	evenness := 0.0
	if n > 1 && total > 0 {
		h := 0.0
		for _, s := range species {
			if s.EnergyRequirement <= 0 {
				continue
			}
			p := s.EnergyRequirement / total
			h -= p * math.Log(p)
		}
		evenness = h / math.Log(float64(n))
	}
	return clampScore(100 * (0.5*richness + 0.5*evenness))
}

// TrophicEfficiency scores how close the consumer/producer energy ratio is to
// the configured ideal. Range 0..100; zero when either level is empty.
func TrophicEfficiency(cfg Config, species []Species) float64 {
	var producers, consumers float64
	for _, s := range species {
		switch s.Type {
		case Producer:
			producers += s.EnergyRequirement
		case Consumer:
			consumers += s.EnergyRequirement
		}
	}
	if producers <= 0 || consumers <= 0 || cfg.IdealTrophicRatio <= 0 {
		return 0
	}
	ratio := consumers / producers
	miss := math.Abs(ratio-cfg.IdealTrophicRatio) / cfg.IdealTrophicRatio
	return clampScore(100 * (1 - math.Min(1, miss)))
}

// EnvironmentalStress is the mean normalized deviation of every parameter from
// its optimum. Range 0..100.
func EnvironmentalStress(cfg Config, env Environment) float64 {
	r := cfg.Environment
	sum := r.Temperature.deviation(env.Temperature) +
		r.Depth.deviation(env.Depth) +
		r.Salinity.deviation(env.Salinity) +
		r.LightLevel.deviation(env.LightLevel)
	return clampScore(100 * sum / 4)
}

// Stability is the weighted score used while the simulation runs.
func Stability(m Metrics) float64 {
	return clampScore(diversityWeight*m.Diversity +
		trophicWeight*m.TrophicEfficiency +
		stressWeight*(100-m.EnvironmentalStress))
}

// InitialStability is the unweighted mean of diversity and environmental fit
// used before the first step.
func InitialStability(m Metrics) float64 {
	return clampScore((m.Diversity + (100 - m.EnvironmentalStress)) / 2)
}

func clampScore(v float64) float64 {
	return clamp(v, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
