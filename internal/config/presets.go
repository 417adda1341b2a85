package config

import "sort"

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"two_field": {
		"spinodal": preset(func(c *Config) {
			c.NoiseVariance = []float64{0.01, 0}
		}),
		"attractor": preset(func(c *Config) {
			c.InitialValues = []float64{0.9, 0}
			c.WellDepth = 0.5
			c.Sigma = 1.5
			c.ReactionType = 2
			c.KProduction = 0.1
			c.KDegradation = 0.1
		}),
		"reaction_diffusion": preset(func(c *Config) {
			c.ModelABDynamicsType = 2
			c.ReactionType = 2
			c.BasalKProduction = 0.01
			c.KProduction = 0.2
			c.KDegradation = 0.2
		}),
		"nucleated": preset(func(c *Config) {
			c.InitialValues = []float64{0.7, 0}
			c.NoiseVariance = []float64{0.001, 0}
			c.NucleateSeed = []int{1, 0}
			c.SeedValue = []float64{1.4, 0}
			c.NucleusSize = []float64{1.5, 0}
			c.Location = [][]float64{{2, 0}, {0, 0}}
		}),
	},
	"coupled": {
		"tethered": preset(func(c *Config) {
			c.FreeEnergyType = 3
			c.Chi = 0.5
			c.WellDepth = 0.5
			c.Sigma = 1.5
			c.KTilde = 0.1
			c.RestLength = []float64{2, 0}
			c.M3 = 0.1
			c.LocusRatio = 100
		}),
		"disc": preset(func(c *Config) {
			c.FreeEnergyType = 3
			c.CircFlag = 1
			c.Radius = 8
			c.Chi = 0.5
			c.WellDepth = 0.4
			c.KTilde = 0.05
			c.M3 = 0.1
		}),
	},
	"three_field": {
		"delayed": preset(func(c *Config) {
			c.ModelType = ModelThreeField
			c.NConcentrations = 3
			c.InitialValues = []float64{1, 0, 1}
			c.NoiseVariance = []float64{0.01, 0, 0}
			c.NucleateSeed = []int{0, 0, 0}
			c.SeedValue = []float64{0, 0, 0}
			c.NucleusSize = []float64{0, 0, 0}
			c.Location = [][]float64{{0, 0}, {0, 0}, {0, 0}}
			c.ReactionType = 3
			c.ProductionSource = 3
			c.BasalKProduction = 0.05
			c.KProduction = 0.2
			c.HillVmax = 1
			c.HillKd = 0.5
			c.HillN = 2
			c.KDegradation = 0.1
			c.Tau = 0.05
		}),
		"delayed_disk": preset(func(c *Config) {
			c.ModelType = ModelThreeField
			c.NConcentrations = 3
			c.InitialValues = []float64{1, 0, 1}
			c.NoiseVariance = []float64{0.01, 0, 0}
			c.NucleateSeed = []int{0, 0, 0}
			c.SeedValue = []float64{0, 0, 0}
			c.NucleusSize = []float64{0, 0, 0}
			c.Location = [][]float64{{0, 0}, {0, 0}, {0, 0}}
			c.ReactionType = 4
			c.ProductionSource = 3
			c.KProduction = 0.2
			c.LinearM = 1
			c.KDegradation = 0.1
			c.Tau = 0.05
			c.DelayBacking = "disk"
		}),
	},
}

func GetPreset(model, name string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models lists the preset families.
func Models() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
