package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/integrators"
)

type Simulator struct {
	stepper   Stepper
	metrics   []Metric
	observers []Observer
	logger    *slog.Logger
}

func New(stepper Stepper, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		stepper:   stepper,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		logger:    logger.With(slog.String("component", "sim")),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run steps st until cfg.Steps steps are accepted or cfg.Duration is
// reached. With Steps unset a duration run only stops at Duration or at
// stepLimit. Cancellation is checked between steps. On error the partial
// result is returned with a *dynamo.SimulationError.
func (s *Simulator) Run(ctx context.Context, st *integrators.State, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := st.Fields.Validate(); err != nil {
		return nil, err
	}
	if !st.Fields.IsValid() || !st.Locus.IsValid() {
		return nil, fmt.Errorf("initial state: %w", dynamo.ErrInvalidState)
	}

	result := &Result{Metrics: make(map[string]float64)}
	for _, m := range s.metrics {
		m.Reset()
		m.Observe(st, integrators.Report{Converged: true}, 0)
	}

	pool := NewSnapshotPool(len(st.Fields), st.Fields.Mesh().NumCells())
	t := 0.0
	dt := cfg.Dt
	if err := s.notify(Frame{Step: 0, Time: t, Dt: dt, State: st, Report: integrators.Report{Converged: true}}); err != nil {
		return result, &dynamo.SimulationError{Step: 0, Time: t, Wrapped: err}
	}

	limit := stepLimit(cfg)
	saved := 0
	var last integrators.Report
	for step := 1; step <= limit; step++ {
		select {
		case <-ctx.Done():
			return s.finish(result), &dynamo.SimulationError{
				Step:    step,
				Time:    t,
				Wrapped: fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err()),
			}
		default:
		}
		if cfg.Duration > 0 {
			remaining := cfg.Duration - t
			if remaining <= 1e-9*cfg.Dt {
				break
			}
			dt = math.Min(dt, remaining)
		}

		rep, used, err := s.advance(st, t, step, dt, cfg, pool, result)
		if err != nil {
			return s.finish(result), &dynamo.SimulationError{Step: step, Time: t, Wrapped: err}
		}
		t += used
		dt = used
		last = rep

		result.Steps = step
		result.Time = t
		result.LinearIterations += rep.LinearIterations
		result.MaxResidual = math.Max(result.MaxResidual, rep.MaxResidual())
		if !rep.Converged {
			result.NonConverged++
		}

		for _, m := range s.metrics {
			m.Observe(st, rep, t)
		}
		if step%cfg.SaveEvery == 0 || step == limit {
			if err := s.notify(Frame{Step: step, Time: t, Dt: used, State: st, Report: rep}); err != nil {
				return s.finish(result), &dynamo.SimulationError{Step: step, Time: t, Wrapped: err}
			}
			saved = step
		}

		if cfg.Adaptive && rep.Converged && rep.MaxChange < cfg.GrowBelow && dt < cfg.MaxDt {
			dt = math.Min(dt*cfg.Growth, cfg.MaxDt)
		}
		if !st.Fields.IsValid() {
			return s.finish(result), &dynamo.SimulationError{Step: step, Time: t, Wrapped: dynamo.ErrInvalidState}
		}
	}

	if cfg.Steps <= 0 && cfg.Duration-t > 1e-9*cfg.Dt {
		return s.finish(result), &dynamo.SimulationError{
			Step:    result.Steps,
			Time:    t,
			Wrapped: fmt.Errorf("%d steps before duration %g: %w", limit, cfg.Duration, dynamo.ErrStepTooSmall),
		}
	}
	if result.Steps > saved {
		if err := s.notify(Frame{Step: result.Steps, Time: t, Dt: dt, State: st, Report: last}); err != nil {
			return s.finish(result), &dynamo.SimulationError{Step: result.Steps, Time: t, Wrapped: err}
		}
	}
	result.FinalDt = dt

	s.logger.Info("run finished",
		slog.Int("steps", result.Steps),
		slog.Float64("t", result.Time),
		slog.Int("retries", result.Retries),
		slog.Int("non_converged", result.NonConverged),
		slog.Float64("max_residual", result.MaxResidual),
	)
	return s.finish(result), nil
}

// advance takes one step, rolling back and halving dt while the stepper
// reports non-convergence. It returns the dt actually used.
func (s *Simulator) advance(st *integrators.State, t float64, step int, dt float64, cfg Config, pool *SnapshotPool, result *Result) (integrators.Report, float64, error) {
	before := pool.Capture(st.Fields)
	defer pool.Put(before)
	locus := st.Locus.Clone()

	for {
		rep, err := s.stepper.Step(st, t, step, dt)
		if err != nil {
			return rep, dt, err
		}
		if rep.Converged || !cfg.Adaptive {
			return rep, dt, nil
		}
		if dt/2 < cfg.MinDt {
			return rep, dt, fmt.Errorf("dt %g, residual %g after %d sweeps: %w: %w",
				dt, rep.MaxResidual(), rep.Sweeps, dynamo.ErrNonConvergence, dynamo.ErrStepTooSmall)
		}

		st.Fields.Restore(before)
		st.Locus = locus.Clone()
		dt /= 2
		result.Retries++
		s.logger.Warn("step did not converge, halving dt",
			slog.Int("step", step),
			slog.Float64("t", t),
			slog.Float64("dt", dt),
			slog.Float64("residual", rep.MaxResidual()),
		)
	}
}

func (s *Simulator) notify(f Frame) error {
	for _, obs := range s.observers {
		if err := obs.OnStep(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) finish(result *Result) *Result {
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result
}

// stepLimit is cfg.Steps, or for a duration-only run the count of the
// smallest allowed steps that covers Duration.
func stepLimit(cfg Config) int {
	if cfg.Steps > 0 {
		return cfg.Steps
	}
	smallest := cfg.Dt
	if cfg.Adaptive {
		smallest = cfg.MinDt
	}
	n := math.Ceil(cfg.Duration/smallest) + 1
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %g: %w", cfg.Dt, dynamo.ErrInvalidParameter)
	}
	if cfg.Steps <= 0 && cfg.Duration <= 0 {
		return fmt.Errorf("steps or duration must be positive, got %d and %g: %w", cfg.Steps, cfg.Duration, dynamo.ErrInvalidParameter)
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("steps must not be negative, got %d: %w", cfg.Steps, dynamo.ErrInvalidParameter)
	}
	if cfg.SaveEvery <= 0 {
		return fmt.Errorf("save interval must be positive, got %d: %w", cfg.SaveEvery, dynamo.ErrInvalidParameter)
	}
	if cfg.Adaptive {
		if cfg.MinDt <= 0 || cfg.MinDt > cfg.Dt {
			return fmt.Errorf("min dt must be in (0, dt]: %w", dynamo.ErrInvalidParameter)
		}
		if cfg.MaxDt < cfg.Dt {
			return fmt.Errorf("max dt must be >= dt: %w", dynamo.ErrInvalidParameter)
		}
		if cfg.Growth < 1 {
			return fmt.Errorf("dt growth must be >= 1, got %g: %w", cfg.Growth, dynamo.ErrInvalidParameter)
		}
	}
	return nil
}
