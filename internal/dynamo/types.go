package dynamo

import (
	"math"
)

// State is a small dense vector. The locus position is a State with one
// component per mesh dimension.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Sub returns s - other. Missing components of other count as zero.
func (s State) Sub(other State) State {
	result := s.Clone()
	for i := range result {
		if i < len(other) {
			result[i] -= other[i]
		}
	}
	return result
}

// AddScaled sets s = x + a*d in place and returns s.
func (s State) AddScaled(x State, a float64, d State) State {
	for i := range s {
		s[i] = x[i] + a*d[i]
	}
	return s
}

// System is the right-hand side dx/dt = f(x, t) of the locus drift.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// Integrator advances a System across [t, t+dt] in n equal explicit
// sub-steps. The returned State never aliases x.
type Integrator interface {
	Integrate(dyn System, x State, t, dt float64, n int) State
}
