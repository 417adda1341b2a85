package metrics

import (
	"math"

	"github.com/san-kum/condensim/internal/integrators"
)

// SolverEffort is the mean number of linear iterations per step.
type SolverEffort struct {
	name    string
	sum     float64
	samples int
}

func NewSolverEffort() *SolverEffort {
	return &SolverEffort{
		name: "solver_iterations",
	}
}

func (c *SolverEffort) Name() string {
	return c.name
}

func (c *SolverEffort) Observe(st *integrators.State, rep integrators.Report, t float64) {
	c.sum += float64(rep.LinearIterations)
	c.samples++
}

func (c *SolverEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *SolverEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// MaxChange is the peak per-step change over all species.
type MaxChange struct {
	name string
	peak float64
}

func NewMaxChange() *MaxChange { return &MaxChange{name: "max_change"} }

func (c *MaxChange) Name() string { return c.name }

func (c *MaxChange) Observe(st *integrators.State, rep integrators.Report, t float64) {
	c.peak = math.Max(c.peak, rep.MaxChange)
}

func (c *MaxChange) Value() float64 { return c.peak }
func (c *MaxChange) Reset()         { c.peak = 0 }

// LocusTravel is the distance of the locus from where it was first seen.
type LocusTravel struct {
	name  string
	start []float64
	dist  float64
}

func NewLocusTravel() *LocusTravel { return &LocusTravel{name: "locus_travel"} }

func (l *LocusTravel) Name() string { return l.name }

func (l *LocusTravel) Observe(st *integrators.State, rep integrators.Report, t float64) {
	if l.start == nil {
		l.start = st.Locus.Clone()
	}
	l.dist = st.Locus.Sub(l.start).Norm()
}

func (l *LocusTravel) Value() float64 { return l.dist }

func (l *LocusTravel) Reset() {
	l.start = nil
	l.dist = 0
}
