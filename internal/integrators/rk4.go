package integrators

import "github.com/san-kum/condensim/internal/dynamo"

// RK4 is the classical fourth-order scheme. Stage buffers are reused across
// calls, so an RK4 belongs to one stepper and one goroutine.
type RK4 struct {
	k      [4]dynamo.State
	stage  dynamo.State
	weight [4]float64
}

func NewRK4() *RK4 {
	return &RK4{weight: [4]float64{1, 2, 2, 1}}
}

func (r *RK4) resize(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Integrate(dyn dynamo.System, x dynamo.State, t, dt float64, n int) dynamo.State {
	if n < 1 {
		n = 1
	}
	r.resize(len(x))
	h := dt / float64(n)
	out := x.Clone()
	for s := 0; s < n; s++ {
		r.step(dyn, out, t+float64(s)*h, h)
	}
	return out
}

// step advances x by h in place.
func (r *RK4) step(dyn dynamo.System, x dynamo.State, t, h float64) {
	copy(r.k[0], dyn.Derive(x, t))
	copy(r.k[1], dyn.Derive(r.stage.AddScaled(x, h/2, r.k[0]), t+h/2))
	copy(r.k[2], dyn.Derive(r.stage.AddScaled(x, h/2, r.k[1]), t+h/2))
	copy(r.k[3], dyn.Derive(r.stage.AddScaled(x, h, r.k[2]), t+h))

	for i := range x {
		sum := 0.0
		for j, k := range r.k {
			sum += r.weight[j] * k[i]
		}
		x[i] += h / 6 * sum
	}
}
