package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt          = 1e-3
	DefaultTotalSteps  = 1000
	DefaultMaxResidual = 1e-8
	DefaultMaxSweeps   = 50
	DefaultLocusRatio  = 10
	DefaultSaveEvery   = 10
	DefaultTolerance   = 1e-12
	DefaultIterations  = 2000
)

// Model types select the number of evolved species.
const (
	ModelTwoField   = 1
	ModelThreeField = 2
)

// Config is the flat parameter surface of a run. Per-species lists are
// indexed by species.
type Config struct {
	Dimension int     `yaml:"dimension" json:"dimension"`
	CircFlag  int     `yaml:"circ_flag" json:"circ_flag"`
	Length    float64 `yaml:"length" json:"length"`
	Radius    float64 `yaml:"radius" json:"radius"`
	Dx        float64 `yaml:"dx" json:"dx"`

	NConcentrations int         `yaml:"n_concentrations" json:"n_concentrations"`
	InitialValues   []float64   `yaml:"initial_values" json:"initial_values"`
	NoiseVariance   []float64   `yaml:"initial_condition_noise_variance" json:"initial_condition_noise_variance"`
	RandomSeed      int64       `yaml:"random_seed" json:"random_seed"`
	NucleateSeed    []int       `yaml:"nucleate_seed" json:"nucleate_seed"`
	SeedValue       []float64   `yaml:"seed_value" json:"seed_value"`
	NucleusSize     []float64   `yaml:"nucleus_size" json:"nucleus_size"`
	Location        [][]float64 `yaml:"location" json:"location"`

	FreeEnergyType int       `yaml:"free_energy_type" json:"free_energy_type"`
	Alpha          float64   `yaml:"alpha" json:"alpha"`
	Beta           float64   `yaml:"beta" json:"beta"`
	Gamma          float64   `yaml:"gamma" json:"gamma"`
	Lambda         float64   `yaml:"lamda" json:"lamda"`
	Kappa          float64   `yaml:"kappa" json:"kappa"`
	CBar           float64   `yaml:"c_bar_1" json:"c_bar_1"`
	Chi            float64   `yaml:"chi" json:"chi"`
	WellDepth      float64   `yaml:"well_depth" json:"well_depth"`
	WellCenter     []float64 `yaml:"well_center" json:"well_center"`
	Sigma          float64   `yaml:"sigma" json:"sigma"`
	KTilde         float64   `yaml:"k_tilde" json:"k_tilde"`
	RP             []float64 `yaml:"r_p" json:"r_p"`
	RestLength     []float64 `yaml:"rest_length" json:"rest_length"`

	ReactionType     int       `yaml:"reaction_type" json:"reaction_type"`
	BasalKProduction float64   `yaml:"basal_k_production" json:"basal_k_production"`
	KProduction      float64   `yaml:"k_production" json:"k_production"`
	ReactionSigma    float64   `yaml:"reaction_sigma" json:"reaction_sigma"`
	ReactionCenter   []float64 `yaml:"reaction_center" json:"reaction_center"`
	HillVmax         float64   `yaml:"hill_vmax" json:"hill_vmax"`
	HillC0           float64   `yaml:"hill_c0" json:"hill_c0"`
	HillKd           float64   `yaml:"hill_kd" json:"hill_kd"`
	HillN            float64   `yaml:"hill_n" json:"hill_n"`
	HillV0           float64   `yaml:"hill_v0" json:"hill_v0"`
	LinearM          float64   `yaml:"linear_m" json:"linear_m"`
	LinearC          float64   `yaml:"linear_c" json:"linear_c"`
	KDegradation     float64   `yaml:"k_degradation" json:"k_degradation"`

	M1                  float64 `yaml:"M1" json:"M1"`
	M2                  float64 `yaml:"M2" json:"M2"`
	M3                  float64 `yaml:"M3" json:"M3"`
	ModelABDynamicsType int     `yaml:"modelAB_dynamics_type" json:"modelAB_dynamics_type"`
	ModelType           int     `yaml:"model_type" json:"model_type"`
	Tau                 float64 `yaml:"tau" json:"tau"`
	RelaxationTime      float64 `yaml:"relaxation_time" json:"relaxation_time"`
	ProductionSource    int     `yaml:"production_source" json:"production_source"`
	DelayBacking        string  `yaml:"delay_backing" json:"delay_backing"`

	Dt               float64 `yaml:"dt" json:"dt"`
	MinDt            float64 `yaml:"min_dt" json:"min_dt"`
	MaxDt            float64 `yaml:"max_dt" json:"max_dt"`
	DtGrowth         float64 `yaml:"dt_growth" json:"dt_growth"`
	DtGrowthBelow    float64 `yaml:"dt_growth_threshold" json:"dt_growth_threshold"`
	TotalSteps       int     `yaml:"total_steps" json:"total_steps"`
	Duration         float64 `yaml:"duration" json:"duration"`
	MaxResidual      float64 `yaml:"max_residual" json:"max_residual"`
	MaxSweeps        int     `yaml:"max_sweeps" json:"max_sweeps"`
	LocusRatio       int     `yaml:"locus_ratio" json:"locus_ratio"`
	LocusIntegrator  string  `yaml:"locus_integrator" json:"locus_integrator"`
	Solver           string  `yaml:"solver" json:"solver"`
	SolverTolerance  float64 `yaml:"solver_tolerance" json:"solver_tolerance"`
	SolverIterations int     `yaml:"solver_iterations" json:"solver_iterations"`
	SaveEvery        int     `yaml:"save_every" json:"save_every"`
}

// DefaultConfig is a small two-field run around a weak attractor.
func DefaultConfig() *Config {
	return &Config{
		Dimension: 2,
		Length:    16,
		Radius:    8,
		Dx:        0.5,

		NConcentrations: 2,
		InitialValues:   []float64{1.0, 0.0},
		NoiseVariance:   []float64{0.01, 0.0},
		RandomSeed:      1,
		NucleateSeed:    []int{0, 0},
		SeedValue:       []float64{0, 0},
		NucleusSize:     []float64{0, 0},
		Location:        [][]float64{{0, 0}, {0, 0}},

		FreeEnergyType: 2,
		Alpha:          1,
		Beta:           -0.5,
		Gamma:          0.1,
		Lambda:         1,
		Kappa:          0.01,
		CBar:           1,
		WellDepth:      0,
		WellCenter:     []float64{0, 0},
		Sigma:          1,
		RP:             []float64{0, 0},
		RestLength:     []float64{0, 0},

		ReactionType:   1,
		ReactionSigma:  1,
		ReactionCenter: []float64{0, 0},
		HillN:          1,
		HillKd:         1,

		M1:                  1,
		M2:                  1,
		M3:                  0,
		ModelABDynamicsType: 1,
		ModelType:           ModelTwoField,
		Tau:                 1,
		RelaxationTime:      1,
		ProductionSource:    1,
		DelayBacking:        "memory",

		Dt:               DefaultDt,
		MinDt:            1e-8,
		MaxDt:            1e-1,
		DtGrowth:         1.5,
		TotalSteps:       DefaultTotalSteps,
		MaxResidual:      DefaultMaxResidual,
		MaxSweeps:        DefaultMaxSweeps,
		LocusRatio:       DefaultLocusRatio,
		LocusIntegrator:  "euler",
		Solver:           "bicgstab",
		SolverTolerance:  DefaultTolerance,
		SolverIterations: DefaultIterations,
		SaveEvery:        DefaultSaveEvery,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse overlays YAML on the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

// Set assigns one key from a YAML scalar or sequence, as a sweep does.
func (c *Config) Set(key string, value any) error {
	raw := map[string]any{}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw[key]; !ok {
		return fmt.Errorf("unknown parameter %q", key)
	}
	raw[key] = value
	data, err = yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Dimension == 2 || c.Dimension == 3, "dimension must be 2 or 3, got %d", c.Dimension)
	check(c.Dx > 0, "dx must be > 0")
	if c.Dimension == 2 && c.CircFlag == 1 {
		check(c.Radius > 0, "radius must be > 0")
	} else {
		check(c.Length > 0, "length must be > 0")
	}
	check(c.CircFlag == 0 || c.Dimension == 2, "circ_flag requires dimension 2")

	check(c.ModelType == ModelTwoField || c.ModelType == ModelThreeField, "model_type must be 1 or 2, got %d", c.ModelType)
	want := 2
	if c.ModelType == ModelThreeField {
		want = 3
	}
	check(c.NConcentrations == want, "model_type %d needs n_concentrations %d, got %d", c.ModelType, want, c.NConcentrations)
	check(len(c.InitialValues) >= c.NConcentrations, "initial_values needs %d entries", c.NConcentrations)
	check(len(c.NoiseVariance) == 0 || len(c.NoiseVariance) >= c.NConcentrations, "initial_condition_noise_variance needs %d entries", c.NConcentrations)
	for i, s := range c.NucleateSeed {
		if s == 1 {
			check(i < len(c.SeedValue) && i < len(c.NucleusSize) && i < len(c.Location), "nucleate_seed[%d] needs seed_value, nucleus_size and location", i)
			if i < len(c.Location) {
				check(len(c.Location[i]) == c.Dimension, "location[%d] needs %d components", i, c.Dimension)
			}
		}
	}

	check(c.FreeEnergyType >= 1 && c.FreeEnergyType <= 3, "free_energy_type must be 1-3, got %d", c.FreeEnergyType)
	check(c.Lambda > 0, "lamda must be > 0, got %g", c.Lambda)
	check(c.Sigma > 0, "sigma must be > 0")
	check(c.Kappa >= 0, "kappa must be >= 0")
	check(len(c.WellCenter) == c.Dimension, "well_center needs %d components", c.Dimension)

	check(c.ReactionType >= 1 && c.ReactionType <= 4, "reaction_type must be 1-4, got %d", c.ReactionType)
	if c.ReactionType > 1 {
		check(c.ReactionSigma > 0, "reaction_sigma must be > 0")
		check(len(c.ReactionCenter) == c.Dimension, "reaction_center needs %d components", c.Dimension)
	}
	check(c.KDegradation >= 0, "k_degradation must be >= 0")
	check(c.ModelABDynamicsType == 1 || c.ModelABDynamicsType == 2, "modelAB_dynamics_type must be 1 or 2")
	check(c.M1 >= 0 && c.M2 >= 0 && c.M3 >= 0, "mobilities must be >= 0")
	check(c.ProductionSource >= 1 && c.ProductionSource <= c.NConcentrations && c.ProductionSource != 2, "production_source must name species 1 or 3")
	if c.ModelType == ModelThreeField {
		check(c.Tau > 0, "tau must be > 0")
		check(c.RelaxationTime > 0, "relaxation_time must be > 0")
		check(c.DelayBacking == "memory" || c.DelayBacking == "disk", "delay_backing must be memory or disk, got %q", c.DelayBacking)
	}

	check(c.Dt > 0, "dt must be > 0")
	check(c.MinDt > 0 && c.MinDt <= c.Dt, "min_dt must be in (0, dt]")
	check(c.MaxDt >= c.Dt, "max_dt must be >= dt")
	check(c.DtGrowth >= 1, "dt_growth must be >= 1")
	check(c.DtGrowthBelow >= 0, "dt_growth_threshold must be >= 0")
	check(c.TotalSteps > 0 || c.Duration > 0, "total_steps or duration must be > 0")
	check(c.MaxResidual >= 0, "max_residual must be >= 0")
	check(c.MaxSweeps >= 1, "max_sweeps must be >= 1")
	check(c.LocusRatio >= 1, "locus_ratio must be >= 1")
	check(c.LocusIntegrator == "euler" || c.LocusIntegrator == "rk4", "locus_integrator must be euler or rk4, got %q", c.LocusIntegrator)
	check(slices.Contains([]string{"", "cg", "bicgstab", "gmres"}, c.Solver), "solver must be cg, bicgstab or gmres, got %q", c.Solver)
	check(c.SolverTolerance > 0 && c.SolverTolerance < 1, "solver_tolerance must be in (0, 1)")
	check(c.SolverIterations >= 1, "solver_iterations must be >= 1")
	check(c.SaveEvery >= 1, "save_every must be >= 1")

	return errors.Join(errs...)
}

// Species is the number of evolved fields.
func (c *Config) Species() int {
	if c.ModelType == ModelThreeField {
		return 3
	}
	return 2
}

// OutputName builds a directory-friendly name from the key parameters.
func (c *Config) OutputName() string {
	parts := []struct {
		key string
		val float64
	}{
		{"M1", c.M1},
		{"b", c.Beta},
		{"g", c.Gamma},
		{"c", c.Chi},
		{"k", c.Kappa},
		{"kp", c.KProduction},
		{"c1", first(c.InitialValues)},
		{"sw", c.Sigma},
		{"sr", c.ReactionSigma},
		{"cn", first(c.SeedValue)},
		{"M3", c.M3},
		{"kt", c.KTilde},
		{"rl", first(c.RestLength)},
		{"wd", c.WellDepth},
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(p.key)
		b.WriteByte('_')
		b.WriteString(strconv.FormatFloat(p.val, 'g', -1, 64))
	}
	if c.ModelType == ModelThreeField {
		b.WriteString("_t_")
		b.WriteString(strconv.FormatFloat(c.Tau, 'g', -1, 64))
	}
	return b.String()
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Steps resolves the number of steps from total_steps or duration.
func (c *Config) Steps() int {
	if c.TotalSteps > 0 {
		return c.TotalSteps
	}
	return int(c.Duration/c.Dt + 0.5)
}
