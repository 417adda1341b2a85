package integrators

import (
	"testing"

	"github.com/san-kum/condensim/internal/dynamo"
)

func BenchmarkEulerLocus(b *testing.B) {
	integrator := NewEuler()
	x := dynamo.State{1.0, 0.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Integrate(drift{}, x, 0, 1e-3, 10)
	}
}

func BenchmarkRK4Locus(b *testing.B) {
	integrator := NewRK4()
	x := dynamo.State{1.0, 0.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Integrate(drift{}, x, 0, 1e-3, 10)
	}
}
