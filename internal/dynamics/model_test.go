package dynamics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/linsolve"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/reaction"
)

func setup(t *testing.T, p Params, fp freeenergy.Params, rate reaction.Rate) (*Model, *mesh.Mesh) {
	t.Helper()
	m, err := mesh.Square2D(4, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	fe, err := freeenergy.New(freeenergy.TypeCoupled, fp)
	if err != nil {
		t.Fatal(err)
	}
	model, err := New(m, fe, rate, p)
	if err != nil {
		t.Fatal(err)
	}
	return model, m
}

func defaultFE() freeenergy.Params {
	return freeenergy.Params{
		Beta: -0.5, Gamma: 0.1, Lambda: 1, Kappa: 0.01, CBar: 1, Chi: 0.2,
		WellDepth: 0.3, Sigma: 1,
		Reference: []float64{0, 0}, RestLength: []float64{0, 0},
	}
}

func noisy(m *mesh.Mesh, n int, seed int64) field.Vector {
	rng := rand.New(rand.NewSource(seed))
	c := make(field.Vector, n)
	for k := range c {
		c[k] = field.New("c", m, 0)
		for i := range c[k].Values() {
			c[k].Values()[i] = 1 + 0.1*rng.NormFloat64()
		}
		c[k].Commit()
	}
	return c
}

func TestSpecies1SystemConservesMass(t *testing.T) {
	model, m := setup(t, Params{M1: 1, M2: 1, Mode: ModelAB}, defaultFE(), nil)
	c := noisy(m, 2, 1)

	a, rhs, err := model.AssembleSpecies1(c, dynamo.State{0.3, -0.2}, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsSymmetric(1e-12) {
		t.Error("species-1 system should be symmetric")
	}

	// Column sums of A equal the cell volumes and the rhs integrates to the
	// old mass, so any solution keeps the mass of c1_old.
	vol := m.Volumes()
	colSum := make([]float64, m.NumCells())
	for i := 0; i < a.Dim(); i++ {
		a.Row(i, func(j int, v float64) { colSum[j] += v })
	}
	for j, s := range colSum {
		if math.Abs(s-vol[j]) > 1e-12 {
			t.Fatalf("column %d sums to %g, want %g", j, s, vol[j])
		}
	}
	total := 0.0
	for _, r := range rhs {
		total += r
	}
	if old := m.Integrate(c[0].Old()); math.Abs(total-old) > 1e-10 {
		t.Errorf("rhs integrates to %g, want %g", total, old)
	}
}

func TestSpecies1UniformIsStationary(t *testing.T) {
	fp := defaultFE()
	fp.WellDepth = 0
	model, m := setup(t, Params{M1: 1, M2: 1, Mode: ModelAB}, fp, nil)
	c := field.Vector{field.New("c1", m, 0.8), field.New("c2", m, 0.1)}

	a, rhs, err := model.AssembleSpecies1(c, dynamo.State{0, 0}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if r := a.Residual(c[0].Values(), rhs); r > 1e-12 {
		t.Errorf("uniform state should satisfy the system, residual %g", r)
	}
}

func TestSpecies2UniformReaction(t *testing.T) {
	const (
		k, kd, dt = 0.4, 0.2, 0.05
	)
	for _, mode := range []Mode{ModelAB, ReactionDiffusion} {
		model, m := setup(t, Params{M1: 1, M2: 1, Mode: mode, Degradation: kd}, defaultFE(), reaction.FirstOrder{K: k})
		c := field.Vector{field.New("c1", m, 1.2), field.New("c2", m, 0.5)}

		a, rhs, err := model.AssembleSpecies2(c, dt)
		if err != nil {
			t.Fatal(err)
		}
		x := c[1].Snapshot()
		if _, err := linsolve.NewBiCGSTAB(1e-14, 500).Solve(a, rhs, x); err != nil {
			t.Fatal(err)
		}
		want := (0.5 + dt*k*1.2) / (1 + dt*kd)
		for i, v := range x {
			if math.Abs(v-want) > 1e-10 {
				t.Fatalf("mode %d cell %d: got %g want %g", mode, i, v, want)
			}
		}
	}
}

func TestSpecies2FrozenFactorGoesToRHS(t *testing.T) {
	m, _ := mesh.Square2D(4, 0.5)
	hill, err := reaction.New(reaction.TypeLocalizedHill, m, reaction.Params{
		Basal: 1, Sigma: 1, Center: []float64{0, 0}, HillVmax: 1, HillKd: 1, HillN: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	fe, _ := freeenergy.New(freeenergy.TypeDimensionless, defaultFE())
	model, err := New(m, fe, hill, Params{M2: 1, Mode: ReactionDiffusion, ProductionSource: field.Species3, RelaxationTime: 1})
	if err != nil {
		t.Fatal(err)
	}
	c := field.Vector{field.New("c1", m, 1), field.New("c2", m, 0), field.New("c3", m, 1)}
	a, rhs, err := model.AssembleSpecies2(c, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	// 0.1 * V * (1 * 1/(1+1))
	want := 0.1 * m.Volume(0) * 0.5
	if math.Abs(rhs[0]-want) > 1e-12 {
		t.Errorf("expected production %g in rhs, got %g", want, rhs[0])
	}
	if math.Abs(a.At(0, 0)-m.Volume(0)-sumOffDiag(a, 0)) > 1e-12 {
		t.Errorf("production should not touch the diagonal")
	}
}

func sumOffDiag(a *linsolve.CSR, i int) float64 {
	s := 0.0
	a.Row(i, func(j int, v float64) {
		if j != i {
			s -= v
		}
	})
	return s
}

func TestSpecies3Relaxation(t *testing.T) {
	model, m := setup(t, Params{M1: 1, M2: 1, Mode: ModelAB, RelaxationTime: 0.5}, defaultFE(), nil)
	c := field.Vector{field.New("c1", m, 1), field.New("c2", m, 0), field.New("c3", m, 0.2)}
	driver := make([]float64, m.NumCells())
	for i := range driver {
		driver[i] = 1
	}

	a, rhs, err := model.AssembleSpecies3(c, driver, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	want := (0.2 + 0.2*1) / 1.2
	for i := 0; i < a.Dim(); i++ {
		if got := rhs[i] / a.At(i, i); math.Abs(got-want) > 1e-12 {
			t.Fatalf("cell %d: got %g want %g", i, got, want)
		}
	}

	if _, _, err := model.AssembleSpecies3(c[:2], driver, 0.1); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestLocusVelocity(t *testing.T) {
	fp := defaultFE()
	fp.SpringConstant = 0.5
	fp.Reference = []float64{0.5, 0}
	fp.RestLength = []float64{0.25, 0}
	model, m := setup(t, Params{M1: 1, M2: 1, M3: 2, Mode: ModelAB}, fp, nil)

	// Uniform c1 on a mesh symmetric about the origin exerts no net drift at
	// the origin, leaving only the spring.
	c1 := field.New("c1", m, 1)
	v := model.LocusVelocity(c1, dynamo.State{0, 0})
	if math.Abs(v[0]-2*0.5*0.75) > 1e-12 || math.Abs(v[1]) > 1e-12 {
		t.Errorf("unexpected velocity %v", v)
	}

	// Mass to the right pulls the locus right.
	fp.SpringConstant = 0
	model, m = setup(t, Params{M1: 1, M2: 1, M3: 1, Mode: ModelAB}, fp, nil)
	c1 = field.New("c1", m, 0)
	for i := 0; i < m.NumCells(); i++ {
		if m.Center(i)[0] > 0 {
			c1.Values()[i] = 1
		}
	}
	sys := model.Locus(c1)
	if sys.StateDim() != 2 {
		t.Fatalf("expected 2D locus, got %d", sys.StateDim())
	}
	if v := sys.Derive(dynamo.State{0, 0}, 0); v[0] <= 0 || math.Abs(v[1]) > 1e-12 {
		t.Errorf("expected drift toward +x, got %v", v)
	}
}

func TestNewValidates(t *testing.T) {
	m, _ := mesh.Square2D(2, 1)
	fe, _ := freeenergy.New(freeenergy.TypeDimensionless, defaultFE())
	tests := []Params{
		{Mode: 3},
		{Mode: ModelAB, M1: -1},
		{Mode: ModelAB, ProductionSource: field.Species2},
	}
	for _, p := range tests {
		if _, err := New(m, fe, nil, p); !errors.Is(err, dynamo.ErrInvalidParameter) {
			t.Errorf("params %+v: expected invalid parameter, got %v", p, err)
		}
	}
}
