// Package dynamics assembles the per-species transport equations and the
// locus drift of the condensate model as explicit sparse systems.
//
// Every equation is integrated over the cells, so row i is multiplied by the
// cell volume V_i. With the symmetric diffusion operators of the mesh this
// keeps the species-1 system symmetric and makes the row sum of each flux
// term vanish, which is what conserves species-1 mass.
package dynamics

import (
	"fmt"
	"math"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/linsolve"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/reaction"
)

// Mode selects the species-2 transport law. Values match modelAB_dynamics_type.
type Mode int

const (
	ModelAB           Mode = 1
	ReactionDiffusion Mode = 2
)

type Params struct {
	M1, M2, M3 float64
	Mode       Mode

	Degradation float64

	// Species index (0-based) the production law reads from.
	ProductionSource int

	// Relaxation time of species 3 toward its delayed driver.
	RelaxationTime float64
}

type Model struct {
	p          Params
	mesh       *mesh.Mesh
	fe         freeenergy.Model
	production reaction.Rate
	decay      reaction.Rate

	// S V^-1 S, fixed by geometry.
	biharmonic *linsolve.CSR
}

func New(m *mesh.Mesh, fe freeenergy.Model, production reaction.Rate, p Params) (*Model, error) {
	if p.Mode != ModelAB && p.Mode != ReactionDiffusion {
		return nil, fmt.Errorf("unknown species-2 dynamics %d: %w", int(p.Mode), dynamo.ErrInvalidParameter)
	}
	if p.M1 < 0 || p.M2 < 0 || p.M3 < 0 {
		return nil, fmt.Errorf("negative mobility: %w", dynamo.ErrInvalidParameter)
	}
	if p.ProductionSource != field.Species1 && p.ProductionSource != field.Species3 {
		return nil, fmt.Errorf("production source must be species 1 or 3, got %d: %w", p.ProductionSource+1, dynamo.ErrInvalidParameter)
	}
	if production == nil {
		production = reaction.FirstOrder{}
	}
	inv := make([]float64, m.NumCells())
	for i, v := range m.Volumes() {
		inv[i] = 1 / v
	}
	bi, err := linsolve.Product(m.Stiffness(), inv, m.Stiffness())
	if err != nil {
		return nil, err
	}
	return &Model{
		p:          p,
		mesh:       m,
		fe:         fe,
		production: production,
		decay:      reaction.FirstOrder{K: p.Degradation},
		biharmonic: bi,
	}, nil
}

func (m *Model) Params() Params               { return m.p }
func (m *Model) Mesh() *mesh.Mesh             { return m.mesh }
func (m *Model) FreeEnergy() freeenergy.Model { return m.fe }

func (m *Model) check(c field.Vector, want int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c) < want {
		return fmt.Errorf("equation needs %d species, vector has %d: %w", want, len(c), dynamo.ErrPrecondition)
	}
	if c.Mesh() != m.mesh {
		return fmt.Errorf("fields live on a different mesh: %w", dynamo.ErrPrecondition)
	}
	return nil
}

// transient starts a system with V_i on the diagonal and V_i c_old on the
// right-hand side.
func (m *Model) transient(f *field.Field, scale float64) (*linsolve.Builder, []float64) {
	vol := m.mesh.Volumes()
	b := linsolve.NewBuilder(len(vol))
	rhs := make([]float64, len(vol))
	old := f.Old()
	for i, v := range vol {
		b.Add(i, i, scale*v)
		rhs[i] = v * old[i]
	}
	return b, rhs
}

// source adds sign*dt*V*s for the equation solving unknown. A term linear
// in the unknown goes on the diagonal; anything else is evaluated now.
func (m *Model) source(b *linsolve.Builder, rhs []float64, s reaction.Source, unknown *field.Field, sign, dt float64) {
	vol := m.mesh.Volumes()
	if s.Var == unknown && s.Linear() {
		for i, v := range vol {
			b.Add(i, i, -sign*dt*v*s.Coeff[i])
		}
		return
	}
	for i, e := range s.Eval() {
		rhs[i] += sign * dt * vol[i] * e
	}
}

func scaled(a []float64, k float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = k * v
	}
	return out
}

// AssembleSpecies1 builds
//
//	V(c1 - c1_old) = dt [D(M1 J11) c1 + D(M1 J12) c2 - M1 kappa S V^-1 S c1 - M1 S W]
//
// linearized at the current iterate, with c1 as unknown.
func (m *Model) AssembleSpecies1(c field.Vector, center dynamo.State, dt float64) (*linsolve.CSR, []float64, error) {
	if err := m.check(c, 2); err != nil {
		return nil, nil, err
	}
	if len(center) != m.mesh.Dim() {
		return nil, nil, fmt.Errorf("locus has %d components on a %dD mesh: %w", len(center), m.mesh.Dim(), dynamo.ErrDimensionMismatch)
	}
	j, err := m.fe.Jacobian(c)
	if err != nil {
		return nil, nil, err
	}

	b, rhs := m.transient(c[field.Species1], 1)
	b.AddMatrix(m.mesh.Diffusion(scaled(j[0][0], m.p.M1)), -dt)
	if kappa := m.fe.Params().Kappa; kappa != 0 {
		b.AddMatrix(m.biharmonic, dt*m.p.M1*kappa)
	}

	cross := m.mesh.Diffusion(scaled(j[0][1], m.p.M1)).MulVec(c[field.Species2].Values())
	lapW := m.mesh.Stiffness().MulVec(m.fe.GaussianWell(m.mesh, center))
	for i := range rhs {
		rhs[i] += dt * (cross[i] - m.p.M1*lapW[i])
	}
	return b.Build(), rhs, nil
}

// AssembleSpecies2 builds
//
//	V(c2 - c2_old) = dt [D(M2 J22) c2 (+ D(M2 J21) c1) + V P - V k_d c2]
//
// where the cross term is present only in Model-AB mode and P is the
// production law applied to its source species.
func (m *Model) AssembleSpecies2(c field.Vector, dt float64) (*linsolve.CSR, []float64, error) {
	want := 2
	if m.p.ProductionSource == field.Species3 {
		want = 3
	}
	if err := m.check(c, want); err != nil {
		return nil, nil, err
	}
	j, err := m.fe.Jacobian(c)
	if err != nil {
		return nil, nil, err
	}

	c2 := c[field.Species2]
	b, rhs := m.transient(c2, 1)
	b.AddMatrix(m.mesh.Diffusion(scaled(j[1][1], m.p.M2)), -dt)
	if m.p.Mode == ModelAB {
		cross := m.mesh.Diffusion(scaled(j[1][0], m.p.M2)).MulVec(c[field.Species1].Values())
		for i := range rhs {
			rhs[i] += dt * cross[i]
		}
	}
	m.source(b, rhs, m.production.Rate(c[m.p.ProductionSource]), c2, 1, dt)
	m.source(b, rhs, m.decay.Rate(c2), c2, -1, dt)
	return b.Build(), rhs, nil
}

// AssembleSpecies3 builds tau3 (c3 - c3_old) = dt (driver - c3).
func (m *Model) AssembleSpecies3(c field.Vector, driver []float64, dt float64) (*linsolve.CSR, []float64, error) {
	if err := m.check(c, 3); err != nil {
		return nil, nil, err
	}
	if len(driver) != m.mesh.NumCells() {
		return nil, nil, fmt.Errorf("driver has %d values for %d cells: %w", len(driver), m.mesh.NumCells(), dynamo.ErrDimensionMismatch)
	}
	if m.p.RelaxationTime <= 0 {
		return nil, nil, fmt.Errorf("relaxation time must be > 0: %w", dynamo.ErrInvalidParameter)
	}
	r := dt / m.p.RelaxationTime
	b, rhs := m.transient(c[field.Species3], 1+r)
	for i, v := range m.mesh.Volumes() {
		rhs[i] += r * v * driver[i]
	}
	return b.Build(), rhs, nil
}

// LocusVelocity is the drift of the attractor center toward species 1
// plus the spring of the free energy, both scaled by M3.
func (m *Model) LocusVelocity(c1 *field.Field, center dynamo.State) dynamo.State {
	p := m.fe.Params()
	dim := m.mesh.Dim()
	v := make(dynamo.State, dim)
	if m.p.M3 == 0 {
		return v
	}

	s2 := p.Sigma * p.Sigma
	d2 := m.mesh.SquaredDistanceFrom(center)
	values := c1.Values()
	for i, vol := range m.mesh.Volumes() {
		w := vol * values[i] * p.WellDepth * math.Exp(-d2[i]/(2*s2)) / s2
		if w == 0 {
			continue
		}
		for d := 0; d < dim; d++ {
			v[d] += w * (m.mesh.Coordinates(d)[i] - center[d])
		}
	}
	spring := m.fe.Spring(center)
	for d := range v {
		v[d] = m.p.M3 * (v[d] + spring[d])
	}
	return v
}

// Locus adapts the drift of the locus against the current c1 to a dynamo.System.
func (m *Model) Locus(c1 *field.Field) dynamo.System {
	return &locus{model: m, c1: c1}
}

type locus struct {
	model *Model
	c1    *field.Field
}

func (l *locus) Derive(x dynamo.State, t float64) dynamo.State {
	return l.model.LocusVelocity(l.c1, x)
}

func (l *locus) StateDim() int { return l.model.mesh.Dim() }
