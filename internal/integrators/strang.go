package integrators

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/condensim/internal/delay"
	"github.com/san-kum/condensim/internal/dynamics"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/linsolve"
)

// Phase names the states a global step passes through.
type Phase int

const (
	PhaseLocusRelax Phase = iota
	PhaseSweepC1First
	PhaseSweepC2
	PhaseSweepC1Second
	PhaseSweepC3
	PhaseConverged
	PhaseMaxSweepsExceeded
)

var phaseNames = [...]string{
	"locus-relax",
	"sweep-c1-first",
	"sweep-c2",
	"sweep-c1-second",
	"sweep-c3",
	"converged",
	"max-sweeps-exceeded",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// State is what one step mutates: the species fields and the locus.
type State struct {
	Fields field.Vector
	Locus  dynamo.State
}

type Report struct {
	Converged bool
	// One pre-solve residual per sweep sequence, in phase order.
	Residuals []float64
	MaxChange float64
	Phase     Phase

	Sweeps           int
	LinearIterations int
	SolverFailures   int
}

// MaxResidual is the largest entry of Residuals.
func (r Report) MaxResidual() float64 {
	m := 0.0
	for _, v := range r.Residuals {
		m = math.Max(m, v)
	}
	return m
}

type StrangConfig struct {
	MaxSweeps   int
	MaxResidual float64
	LocusRatio  int
	Locus       dynamo.Integrator
	// Required with three species.
	Delay  delay.Tracker
	Logger *slog.Logger
}

// Strang advances the coupled system by one step: locus sub-steps, then
// c1 over dt/2, c2 over dt, c1 over dt/2 and, with three species, c3 over dt.
// Each species is swept with Picard re-linearization until the residual of
// the system built at the current iterate drops below MaxResidual.
type Strang struct {
	model  *dynamics.Model
	solver linsolve.Solver
	cfg    StrangConfig
	logger *slog.Logger
}

func NewStrang(model *dynamics.Model, solver linsolve.Solver, cfg StrangConfig) (*Strang, error) {
	if cfg.MaxSweeps < 1 {
		return nil, fmt.Errorf("max sweeps must be >= 1, got %d: %w", cfg.MaxSweeps, dynamo.ErrInvalidParameter)
	}
	if cfg.MaxResidual < 0 {
		return nil, fmt.Errorf("max residual must be >= 0: %w", dynamo.ErrInvalidParameter)
	}
	if cfg.LocusRatio < 1 {
		cfg.LocusRatio = 1
	}
	if cfg.Locus == nil {
		cfg.Locus = NewEuler()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Strang{
		model:  model,
		solver: solver,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "strang")),
	}, nil
}

// Step advances st from t to t+dt. A report that is not converged still
// carries committed values; the caller decides whether to retry.
func (s *Strang) Step(st *State, t float64, step int, dt float64) (Report, error) {
	rep := Report{Phase: PhaseLocusRelax}
	c := st.Fields
	if err := c.Validate(); err != nil {
		return rep, err
	}
	if len(c) == 3 && s.cfg.Delay == nil {
		return rep, fmt.Errorf("three species need a delay tracker: %w", dynamo.ErrPrecondition)
	}
	if dt <= 0 {
		return rep, fmt.Errorf("dt must be > 0, got %g: %w", dt, dynamo.ErrInvalidParameter)
	}

	s.relaxLocus(st, t, dt)

	c1, c2 := c[field.Species1], c[field.Species2]
	half := 0.5 * dt

	rep.Phase = PhaseSweepC1First
	res, err := s.sweep(&rep, c1, func() (*linsolve.CSR, []float64, error) {
		return s.model.AssembleSpecies1(c, st.Locus, half)
	})
	if err != nil {
		return rep, err
	}
	s.commit(&rep, c1, res)

	rep.Phase = PhaseSweepC2
	res, err = s.sweep(&rep, c2, func() (*linsolve.CSR, []float64, error) {
		return s.model.AssembleSpecies2(c, dt)
	})
	if err != nil {
		return rep, err
	}
	s.commit(&rep, c2, res)

	rep.Phase = PhaseSweepC1Second
	res, err = s.sweep(&rep, c1, func() (*linsolve.CSR, []float64, error) {
		return s.model.AssembleSpecies1(c, st.Locus, half)
	})
	if err != nil {
		return rep, err
	}
	s.commit(&rep, c1, res)

	if len(c) == 3 {
		rep.Phase = PhaseSweepC3
		c3 := c[field.Species3]
		if err := s.cfg.Delay.Record(t+dt, c1, step); err != nil {
			return rep, fmt.Errorf("record delayed c1: %w", err)
		}
		driver, err := s.cfg.Delay.Delayed(t+dt, step)
		if err != nil {
			return rep, fmt.Errorf("delayed c1: %w", err)
		}
		res, err = s.sweep(&rep, c3, func() (*linsolve.CSR, []float64, error) {
			return s.model.AssembleSpecies3(c, driver, dt)
		})
		if err != nil {
			return rep, err
		}
		s.commit(&rep, c3, res)
	}

	rep.Converged = true
	for _, r := range rep.Residuals {
		if !(r < s.cfg.MaxResidual) {
			rep.Converged = false
			break
		}
	}
	rep.Phase = PhaseConverged
	if !rep.Converged {
		rep.Phase = PhaseMaxSweepsExceeded
	}

	for k, f := range c {
		if !f.IsValid() {
			return rep, fmt.Errorf("species %d: %w", k+1, dynamo.ErrInvalidState)
		}
	}
	if !st.Locus.IsValid() {
		return rep, fmt.Errorf("locus: %w", dynamo.ErrInvalidState)
	}

	s.logger.Debug("step",
		slog.Int("step", step),
		slog.Float64("t", t),
		slog.Float64("dt", dt),
		slog.String("phase", rep.Phase.String()),
		slog.Float64("residual", rep.MaxResidual()),
		slog.Float64("max_change", rep.MaxChange),
		slog.Int("sweeps", rep.Sweeps),
	)
	return rep, nil
}

func (s *Strang) relaxLocus(st *State, t, dt float64) {
	if s.model.Params().M3 == 0 {
		return
	}
	sys := s.model.Locus(st.Fields[field.Species1])
	st.Locus = s.cfg.Locus.Integrate(sys, st.Locus, t, dt, s.cfg.LocusRatio)
}

// sweep solves the equation for f until the pre-solve residual is below
// tolerance or the sweep budget runs out. It returns the last residual.
func (s *Strang) sweep(rep *Report, f *field.Field, assemble func() (*linsolve.CSR, []float64, error)) (float64, error) {
	residual := math.Inf(1)
	for i := 0; i < s.cfg.MaxSweeps; i++ {
		a, b, err := assemble()
		if err != nil {
			return residual, err
		}
		residual = a.Residual(f.Values(), b)
		stats, err := s.solver.Solve(a, b, f.Values())
		rep.Sweeps++
		rep.LinearIterations += stats.Iterations
		switch {
		case errors.Is(err, linsolve.ErrNotConverged):
			rep.SolverFailures++
			s.logger.Debug("linear solve hit iteration cap",
				slog.String("field", f.Name),
				slog.String("phase", rep.Phase.String()),
				slog.Float64("residual", stats.Residual),
			)
		case err != nil:
			return residual, fmt.Errorf("%s %s: %w", rep.Phase, f.Name, err)
		}
		if residual < s.cfg.MaxResidual {
			break
		}
	}
	return residual, nil
}

func (s *Strang) commit(rep *Report, f *field.Field, residual float64) {
	rep.Residuals = append(rep.Residuals, residual)
	rep.MaxChange = math.Max(rep.MaxChange, f.MaxChange())
	f.Commit()
}
