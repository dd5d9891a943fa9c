package ecosystem

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawSpecies(t *rapid.T, cfg Config, n int) []Species {
	out := make([]Species, n)
	for i := range out {
		out[i] = Species{
			ID:                fmt.Sprintf("s%d", i),
			Name:              fmt.Sprintf("Species %d", i),
			Type:              rapid.SampledFrom([]SpeciesType{Producer, Consumer}).Draw(t, "type"),
			EnergyRequirement: rapid.Float64Range(0.5, cfg.MaxEnergy).Draw(t, "energy"),
			ReproductionRate:  rapid.Float64Range(0, 1).Draw(t, "rate"),
		}
	}
	return out
}

func drawEnvironment(t *rapid.T, cfg Config) Environment {
	r := cfg.Environment
	return Environment{
		Temperature: rapid.Float64Range(r.Temperature.Min, r.Temperature.Max).Draw(t, "temperature"),
		Depth:       rapid.Float64Range(r.Depth.Min, r.Depth.Max).Draw(t, "depth"),
		Salinity:    rapid.Float64Range(r.Salinity.Min, r.Salinity.Max).Draw(t, "salinity"),
		LightLevel:  rapid.Float64Range(r.LightLevel.Min, r.LightLevel.Max).Draw(t, "light"),
	}
}

func TestRunInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		n := rapid.IntRange(cfg.MinSpecies, cfg.MaxSpecies).Draw(t, "n")
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		eng, err := New(cfg, WithClock(func() time.Time { return now }))
		require.NoError(t, err)

		require.NoError(t, eng.Initialize(drawSpecies(t, cfg, n), drawEnvironment(t, cfg)))
		st := eng.State()
		require.GreaterOrEqual(t, st.StabilityScore, 0.0)
		require.LessOrEqual(t, st.StabilityScore, 100.0)
		require.NoError(t, eng.Start())

		prev := n
		finished := false
		for i := 0; i < 100 && !finished; i++ {
			now = now.Add(10 * time.Second)
			finished, err = eng.Step()
			require.NoError(t, err)

			st := eng.State()
			require.LessOrEqual(t, len(st.Species), prev)
			require.Equal(t, n, len(st.Species)+len(st.Extinct))
			prev = len(st.Species)
			require.GreaterOrEqual(t, st.StabilityScore, 0.0)
			require.LessOrEqual(t, st.StabilityScore, 100.0)
			for _, s := range st.Species {
				require.Greater(t, s.EnergyRequirement, 0.0)
				require.LessOrEqual(t, s.EnergyRequirement, cfg.MaxEnergy)
			}
			require.Len(t, st.Interactions, len(st.Species)*(len(st.Species)-1))
		}
		require.True(t, finished, "time limit must end every run")

		res, err := eng.Result()
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Score, 0)
		require.LessOrEqual(t, res.Score, 100)
		require.NotEmpty(t, res.Feedback)
	})
}

func TestSetupBoundsInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		eng, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, eng.Initialize(drawSpecies(t, cfg, cfg.MinSpecies), DefaultEnvironment(cfg)))

		next := cfg.MinSpecies
		ops := rapid.SliceOfN(rapid.Bool(), 1, 30).Draw(t, "ops")
		for _, add := range ops {
			if add {
				_ = eng.AddSpecies(Species{
					ID:                fmt.Sprintf("s%d", next),
					Name:              "added",
					Type:              Consumer,
					EnergyRequirement: 10,
					ReproductionRate:  0.2,
				})
				next++
			} else {
				ids := eng.State().Species
				victim := rapid.IntRange(0, len(ids)-1).Draw(t, "victim")
				_ = eng.RemoveSpecies(ids[victim].ID)
			}
			count := len(eng.State().Species)
			require.GreaterOrEqual(t, count, cfg.MinSpecies)
			require.LessOrEqual(t, count, cfg.MaxSpecies)
		}
	})
}
