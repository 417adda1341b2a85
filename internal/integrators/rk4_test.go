package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/condensim/internal/dynamo"
)

// oscillator is x'' = -x.
type oscillator struct{}

func (s *oscillator) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *oscillator) StateDim() int { return 2 }

// drift pulls x towards the origin at unit rate.
type drift struct{}

func (drift) Derive(x dynamo.State, t float64) dynamo.State {
	d := make(dynamo.State, len(x))
	for i := range x {
		d[i] = -x[i]
	}
	return d
}

func (drift) StateDim() int { return 2 }

func TestRK4Accuracy(t *testing.T) {
	x := NewRK4().Integrate(&oscillator{}, dynamo.State{1.0, 0.0}, 0, 1, 100)

	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], -math.Sin(1))
	}
}

func TestEulerSubsteps(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0.9},
		{1, 0.9},
		{2, 0.9025},
		{10, math.Pow(0.99, 10)},
	}
	for _, tt := range tests {
		x := NewEuler().Integrate(drift{}, dynamo.State{1, 2}, 0, 0.1, tt.n)
		if math.Abs(x[0]-tt.want) > 1e-12 || math.Abs(x[1]-2*tt.want) > 1e-12 {
			t.Errorf("n=%d: got %v, want %g", tt.n, x, tt.want)
		}
	}
}

func TestIntegratorsDoNotAlias(t *testing.T) {
	for name, integ := range map[string]dynamo.Integrator{"euler": NewEuler(), "rk4": NewRK4()} {
		x := dynamo.State{1, 1}
		out := integ.Integrate(drift{}, x, 0, 0.5, 5)
		if x[0] != 1 || x[1] != 1 {
			t.Errorf("%s: input modified to %v", name, x)
		}
		if out[0] >= 1 || out[0] <= 0 {
			t.Errorf("%s: expected decay towards 0, got %v", name, out)
		}
	}
}

func TestRK4Convergence(t *testing.T) {
	exact := math.Exp(-1)
	coarse := NewRK4().Integrate(drift{}, dynamo.State{1, 0}, 0, 1, 4)
	fine := NewRK4().Integrate(drift{}, dynamo.State{1, 0}, 0, 1, 8)

	ratio := math.Abs(coarse[0]-exact) / math.Abs(fine[0]-exact)
	if ratio < 12 || ratio > 20 {
		t.Errorf("expected fourth-order error ratio near 16, got %.2f", ratio)
	}
}
