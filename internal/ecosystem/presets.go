package ecosystem

// Presets is a starter catalog of marine species for setting up a simulation.
var Presets = []Species{
	{ID: "phytoplankton", Name: "Phytoplankton", Type: Producer, EnergyRequirement: 40, ReproductionRate: 0.9},
	{ID: "kelp", Name: "Giant Kelp", Type: Producer, EnergyRequirement: 35, ReproductionRate: 0.7},
	{ID: "seagrass", Name: "Seagrass", Type: Producer, EnergyRequirement: 30, ReproductionRate: 0.6},
	{ID: "zooplankton", Name: "Zooplankton", Type: Consumer, EnergyRequirement: 20, ReproductionRate: 0.5},
	{ID: "sardine", Name: "Sardine", Type: Consumer, EnergyRequirement: 15, ReproductionRate: 0.4},
	{ID: "sea-urchin", Name: "Sea Urchin", Type: Consumer, EnergyRequirement: 12, ReproductionRate: 0.3},
	{ID: "sea-otter", Name: "Sea Otter", Type: Consumer, EnergyRequirement: 10, ReproductionRate: 0.2},
	{ID: "reef-shark", Name: "Reef Shark", Type: Consumer, EnergyRequirement: 8, ReproductionRate: 0.1},
}

// DefaultEnvironment is the optimum of the default configuration.
func DefaultEnvironment(cfg Config) Environment {
	return Environment{
		Temperature: cfg.Environment.Temperature.Optimal,
		Depth:       cfg.Environment.Depth.Optimal,
		Salinity:    cfg.Environment.Salinity.Optimal,
		LightLevel:  cfg.Environment.LightLevel.Optimal,
	}
}
