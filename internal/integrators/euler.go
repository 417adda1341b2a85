package integrators

import "github.com/san-kum/condensim/internal/dynamo"

// Euler is the forward scheme the locus uses by default.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Integrate(dyn dynamo.System, x dynamo.State, t, dt float64, n int) dynamo.State {
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	out := x.Clone()
	for k := 0; k < n; k++ {
		out.AddScaled(out, h, dyn.Derive(out, t+float64(k)*h))
	}
	return out
}
