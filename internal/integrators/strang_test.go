package integrators_test

import (
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/condensim/internal/delay"
	"github.com/san-kum/condensim/internal/dynamics"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/integrators"
	"github.com/san-kum/condensim/internal/linsolve"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/reaction"
)

type fixture struct {
	mesh    *mesh.Mesh
	model   *dynamics.Model
	stepper *integrators.Strang
	state   *integrators.State
}

type fixtureOpts struct {
	fe      freeenergy.Params
	dyn     dynamics.Params
	species int
	noise   float64
	sweeps  int
	maxRes  float64
	tracker delay.Tracker
}

func dimensionless() freeenergy.Params {
	return freeenergy.Params{
		CBar: 1, Beta: -0.5, Gamma: 0.1, Lambda: 1, Kappa: 0.01,
		WellDepth: 0, Sigma: 1,
	}
}

func build(o fixtureOpts) *fixture {
	m, err := mesh.Square2D(8, 0.5)
	Expect(err).NotTo(HaveOccurred())
	fe, err := freeenergy.New(freeenergy.TypeDimensionless, o.fe)
	Expect(err).NotTo(HaveOccurred())
	model, err := dynamics.New(m, fe, reaction.FirstOrder{}, o.dyn)
	Expect(err).NotTo(HaveOccurred())

	stepper, err := integrators.NewStrang(model, linsolve.NewBiCGSTAB(1e-12, 2000), integrators.StrangConfig{
		MaxSweeps:   o.sweeps,
		MaxResidual: o.maxRes,
		LocusRatio:  10,
		Delay:       o.tracker,
	})
	Expect(err).NotTo(HaveOccurred())

	rng := rand.New(rand.NewSource(11))
	c := field.Vector{field.New("c1", m, 1), field.New("c2", m, 0)}
	if o.species == 3 {
		c = append(c, field.New("c3", m, 0))
	}
	for i := range c[0].Values() {
		c[0].Values()[i] += o.noise * rng.NormFloat64()
	}
	c[0].Commit()

	return &fixture{
		mesh:    m,
		model:   model,
		stepper: stepper,
		state:   &integrators.State{Fields: c, Locus: dynamo.State{0, 0}},
	}
}

var _ = Describe("Strang", func() {
	It("keeps the mass of species 1 over a two-field run and converges every step", func() {
		f := build(fixtureOpts{
			fe:     dimensionless(),
			dyn:    dynamics.Params{M1: 1, M2: 1, Mode: dynamics.ModelAB},
			noise:  1e-3,
			sweeps: 50,
			maxRes: 1e-8,
		})
		c1 := f.state.Fields[0]
		mass0 := c1.Integral()

		const dt = 1e-3
		for step := 0; step < 100; step++ {
			rep, err := f.stepper.Step(f.state, float64(step)*dt, step, dt)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Converged).To(BeTrue(), "step %d residuals %v", step, rep.Residuals)
			Expect(rep.Phase).To(Equal(integrators.PhaseConverged))
			Expect(rep.Residuals).To(HaveLen(3))
		}
		Expect(math.Abs(c1.Integral()-mass0) / mass0).To(BeNumerically("<", 1e-6))
	})

	It("conserves mass under pure diffusion", func() {
		fp := dimensionless()
		fp.Beta, fp.Gamma, fp.Kappa = 1, 0, 0
		f := build(fixtureOpts{
			fe:     fp,
			dyn:    dynamics.Params{M1: 1, M2: 1, Mode: dynamics.ReactionDiffusion},
			noise:  0.1,
			sweeps: 20,
			maxRes: 1e-8,
		})
		c1 := f.state.Fields[0]
		mass0 := c1.Integral()
		spread0 := spread(c1.Values())

		for step := 0; step < 20; step++ {
			_, err := f.stepper.Step(f.state, float64(step)*0.01, step, 0.01)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(math.Abs(c1.Integral()-mass0) / mass0).To(BeNumerically("<", 1e-8))
		Expect(spread(c1.Values())).To(BeNumerically("<", spread0))
	})

	It("reports non-convergence with one sweep and zero tolerance but commits values", func() {
		f := build(fixtureOpts{
			fe:     dimensionless(),
			dyn:    dynamics.Params{M1: 1, M2: 1, Mode: dynamics.ModelAB},
			noise:  1e-2,
			sweeps: 1,
			maxRes: 0,
		})
		c1 := f.state.Fields[0]
		before := c1.Snapshot()

		rep, err := f.stepper.Step(f.state, 0, 0, 1e-2)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Converged).To(BeFalse())
		Expect(rep.Phase).To(Equal(integrators.PhaseMaxSweepsExceeded))
		Expect(rep.Sweeps).To(Equal(3))
		Expect(c1.Old()).To(Equal(c1.Values()))
		Expect(c1.Values()).NotTo(Equal(before))
		Expect(rep.MaxChange).To(BeNumerically(">", 0))
	})

	It("relaxes species 3 toward the delayed species 1", func() {
		tracker, err := delay.NewMemory(0.01, 64, 256)
		Expect(err).NotTo(HaveOccurred())

		f := build(fixtureOpts{
			fe:      dimensionless(),
			dyn:     dynamics.Params{M1: 1, M2: 1, Mode: dynamics.ModelAB, RelaxationTime: 0.05},
			species: 3,
			noise:   1e-3,
			sweeps:  20,
			maxRes:  1e-8,
			tracker: tracker,
		})
		c3 := f.state.Fields[2]

		const dt = 1e-3
		for step := 0; step < 30; step++ {
			rep, err := f.stepper.Step(f.state, float64(step)*dt, step, dt)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Converged).To(BeTrue())
			Expect(rep.Residuals).To(HaveLen(4))
		}
		// c3 relaxes from 0 toward c1 ~ 1 with tau3 = 0.05 over t = 0.03.
		mean := c3.Integral() / 64
		Expect(mean).To(BeNumerically(">", 0.3))
		Expect(mean).To(BeNumerically("<", 1))
		Expect(tracker.Head()).To(BeNumerically(">", 0))
	})

	It("rejects three species without a delay tracker", func() {
		f := build(fixtureOpts{
			fe:      dimensionless(),
			dyn:     dynamics.Params{M1: 1, M2: 1, Mode: dynamics.ModelAB, RelaxationTime: 1},
			species: 3,
			sweeps:  5,
		})
		_, err := f.stepper.Step(f.state, 0, 0, 1e-3)
		Expect(err).To(MatchError(dynamo.ErrPrecondition))
	})

	It("moves the locus toward species 1", func() {
		fp := dimensionless()
		fp.WellDepth = 0.5
		f := build(fixtureOpts{
			fe:     fp,
			dyn:    dynamics.Params{M1: 1, M2: 1, M3: 1, Mode: dynamics.ModelAB},
			sweeps: 20,
			maxRes: 1e-8,
		})
		c1 := f.state.Fields[0]
		for i := 0; i < f.mesh.NumCells(); i++ {
			if f.mesh.Center(i)[0] > 1 {
				c1.Values()[i] = 1.5
			}
		}
		c1.Commit()

		_, err := f.stepper.Step(f.state, 0, 0, 1e-2)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.state.Locus[0]).To(BeNumerically(">", 0))
		Expect(math.Abs(f.state.Locus[1])).To(BeNumerically("<", 1e-9))
	})
})

var _ = Describe("Phase", func() {
	It("has readable names", func() {
		Expect(integrators.PhaseSweepC1Second.String()).To(Equal("sweep-c1-second"))
		Expect(integrators.Phase(42).String()).To(Equal("phase(42)"))
	})
})

func spread(v []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return hi - lo
}
