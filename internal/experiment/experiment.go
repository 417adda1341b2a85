package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/delay"
	"github.com/san-kum/condensim/internal/dynamics"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/integrators"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/metrics"
	"github.com/san-kum/condensim/internal/reaction"
	"github.com/san-kum/condensim/internal/sim"
)

// DelayFile is the series name of a disk-backed delay history inside the
// run directory.
const DelayFile = "delay.bin"

type Options struct {
	// Dir holds files the run writes on its own, such as a disk delay
	// history. Required for delay_backing: disk.
	Dir      string
	Registry *Registry
	Logger   *slog.Logger
}

// Experiment is one fully wired run: mesh, models, stepper, initial state
// and driver.
type Experiment struct {
	cfg        *config.Config
	mesh       *mesh.Mesh
	freeEnergy freeenergy.Model
	model      *dynamics.Model
	tracker    delay.Tracker
	state      *integrators.State
	simulator  *sim.Simulator
	randSource *rand.Rand
}

func New(cfg *config.Config, opts Options) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w: %w", dynamo.ErrInvalidParameter, err)
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Experiment{
		cfg:        cfg.Clone(),
		randSource: rand.New(rand.NewSource(cfg.RandomSeed)),
	}
	cfg = e.cfg

	m, err := reg.GetMesh(cfg)
	if err != nil {
		return nil, err
	}
	e.mesh = m

	e.freeEnergy, err = freeenergy.New(freeenergy.Type(cfg.FreeEnergyType), freeenergy.Params{
		Alpha:          cfg.Alpha,
		Beta:           cfg.Beta,
		Gamma:          cfg.Gamma,
		Lambda:         cfg.Lambda,
		Kappa:          cfg.Kappa,
		CBar:           cfg.CBar,
		Chi:            cfg.Chi,
		WellDepth:      cfg.WellDepth,
		Sigma:          cfg.Sigma,
		SpringConstant: cfg.KTilde,
		Reference:      cfg.RP,
		RestLength:     cfg.RestLength,
	})
	if err != nil {
		return nil, err
	}

	production, err := reaction.New(reaction.Type(cfg.ReactionType), m, reaction.Params{
		Basal:    cfg.BasalKProduction,
		K:        cfg.KProduction,
		Sigma:    cfg.ReactionSigma,
		Center:   cfg.ReactionCenter,
		HillVmax: cfg.HillVmax,
		HillC0:   cfg.HillC0,
		HillKd:   cfg.HillKd,
		HillN:    cfg.HillN,
		HillV0:   cfg.HillV0,
		LinearM:  cfg.LinearM,
		LinearB:  cfg.LinearC,
	})
	if err != nil {
		return nil, err
	}

	e.model, err = dynamics.New(m, e.freeEnergy, production, dynamics.Params{
		M1:               cfg.M1,
		M2:               cfg.M2,
		M3:               cfg.M3,
		Mode:             dynamics.Mode(cfg.ModelABDynamicsType),
		Degradation:      cfg.KDegradation,
		ProductionSource: cfg.ProductionSource - 1,
		RelaxationTime:   cfg.RelaxationTime,
	})
	if err != nil {
		return nil, err
	}

	locus, err := reg.GetIntegrator(cfg.LocusIntegrator)
	if err != nil {
		return nil, err
	}
	solver, err := reg.GetSolver(cfg.Solver, cfg.SolverTolerance, cfg.SolverIterations)
	if err != nil {
		return nil, err
	}

	sc := integrators.StrangConfig{
		MaxSweeps:   cfg.MaxSweeps,
		MaxResidual: cfg.MaxResidual,
		LocusRatio:  cfg.LocusRatio,
		Locus:       locus,
		Logger:      logger,
	}
	if cfg.Species() == 3 {
		if cfg.DelayBacking == delay.BackingDisk && opts.Dir == "" {
			return nil, fmt.Errorf("disk delay backing needs a run directory: %w", dynamo.ErrInvalidParameter)
		}
		e.tracker, err = delay.New(cfg.DelayBacking, cfg.Tau, DelayCapacity(cfg), m.NumCells(), filepath.Join(opts.Dir, DelayFile))
		if err != nil {
			return nil, err
		}
		sc.Delay = e.tracker
	}
	stepper, err := integrators.NewStrang(e.model, solver, sc)
	if err != nil {
		e.Close()
		return nil, err
	}

	fields, err := e.initialFields()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.state = &integrators.State{
		Fields: fields,
		Locus:  dynamo.State(cfg.WellCenter).Clone(),
	}

	e.simulator = sim.New(stepper, logger)
	e.simulator.AddMetric(metrics.NewMassDrift())
	e.simulator.AddMetric(metrics.NewMaxChange())
	e.simulator.AddMetric(metrics.NewLocusTravel())
	e.simulator.AddMetric(metrics.NewSolverEffort())
	e.simulator.AddMetric(metrics.NewFreeEnergy(e.freeEnergy))
	e.simulator.AddMetric(metrics.NewSpinodal(e.freeEnergy))
	return e, nil
}

// initialFields applies, per species, the uniform initial value, an
// optional spherical nucleus and Gaussian noise, in that order.
// DelayCapacity bounds the memory delay ring: every step of a step-bounded
// run, or the steps at min_dt that fit in tau plus run-up slack.
func DelayCapacity(cfg *config.Config) int {
	smallest := cfg.MinDt
	if smallest <= 0 || smallest > cfg.Dt {
		smallest = cfg.Dt
	}
	window := math.Ceil(cfg.Tau/smallest) + 2
	if cfg.TotalSteps > 0 && float64(cfg.TotalSteps+1) < window {
		return cfg.TotalSteps + 1
	}
	if window > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(window)
}

func (e *Experiment) initialFields() (field.Vector, error) {
	cfg := e.cfg
	n := cfg.Species()
	v := make(field.Vector, n)
	for k := 0; k < n; k++ {
		f := field.New(fmt.Sprintf("c%d", k+1), e.mesh, cfg.InitialValues[k])
		values := f.Values()

		if k < len(cfg.NucleateSeed) && cfg.NucleateSeed[k] == 1 {
			r2 := cfg.NucleusSize[k] * cfg.NucleusSize[k]
			for i, d := range e.mesh.SquaredDistanceFrom(cfg.Location[k]) {
				if d <= r2 {
					values[i] = cfg.SeedValue[k]
				}
			}
		}
		if k < len(cfg.NoiseVariance) && cfg.NoiseVariance[k] > 0 {
			sd := math.Sqrt(cfg.NoiseVariance[k])
			for i := range values {
				values[i] += sd * e.randSource.NormFloat64()
			}
		}

		f.Commit()
		v[k] = f
	}
	return v, v.Validate()
}

func (e *Experiment) Config() *config.Config       { return e.cfg }
func (e *Experiment) Mesh() *mesh.Mesh             { return e.mesh }
func (e *Experiment) FreeEnergy() freeenergy.Model { return e.freeEnergy }
func (e *Experiment) Model() *dynamics.Model       { return e.model }
func (e *Experiment) State() *integrators.State    { return e.state }
func (e *Experiment) Simulator() *sim.Simulator    { return e.simulator }
func (e *Experiment) SimConfig() sim.Config        { return sim.FromConfig(e.cfg) }
func (e *Experiment) AddObserver(o sim.Observer)   { e.simulator.AddObserver(o) }

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.simulator.Run(ctx, e.state, e.SimConfig())
}

// Close releases a disk-backed delay history.
func (e *Experiment) Close() error {
	if c, ok := e.tracker.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
