package sim

import (
	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/integrators"
)

// Stepper advances the species fields and locus by one global step.
type Stepper interface {
	Step(st *integrators.State, t float64, step int, dt float64) (integrators.Report, error)
}

type Metric interface {
	Name() string
	Observe(st *integrators.State, rep integrators.Report, t float64)
	Value() float64
	Reset()
}

// Frame is what observers see at each save point. State is live; observers
// that keep values must copy them.
type Frame struct {
	Step   int
	Time   float64
	Dt     float64
	State  *integrators.State
	Report integrators.Report
}

type Observer interface {
	OnStep(f Frame) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f Frame) error

func (fn ObserverFunc) OnStep(f Frame) error { return fn(f) }

type Config struct {
	Dt    float64
	MinDt float64
	MaxDt float64
	// Steps bounds the number of accepted steps; zero leaves a duration run
	// unbounded. Duration, when set, stops the run once t reaches it.
	Steps    int
	Duration float64

	// Adaptive halves dt on non-convergence and grows it by Growth while
	// the per-step change stays below GrowBelow.
	Adaptive  bool
	Growth    float64
	GrowBelow float64

	SaveEvery int
}

func DefaultConfig() Config {
	return Config{
		Dt:        config.DefaultDt,
		MinDt:     1e-8,
		MaxDt:     1e-1,
		Steps:     config.DefaultTotalSteps,
		Adaptive:  true,
		Growth:    1.5,
		SaveEvery: config.DefaultSaveEvery,
	}
}

// FromConfig maps the run configuration onto the driver's.
func FromConfig(c *config.Config) Config {
	return Config{
		Dt:        c.Dt,
		MinDt:     c.MinDt,
		MaxDt:     c.MaxDt,
		Steps:     c.TotalSteps,
		Duration:  c.Duration,
		Adaptive:  true,
		Growth:    c.DtGrowth,
		GrowBelow: c.DtGrowthBelow,
		SaveEvery: c.SaveEvery,
	}
}

type Result struct {
	Steps   int
	Time    float64
	FinalDt float64

	Retries          int
	NonConverged     int
	LinearIterations int
	MaxResidual      float64

	Metrics map[string]float64
}
