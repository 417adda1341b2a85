// Package freeenergy implements the bulk and gradient free energies of the
// two- and three-species condensate model together with their chemical
// potentials and local Hessians.
package freeenergy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/mesh"
)

// Type selects a free-energy variant. Values match the free_energy_type key.
type Type int

const (
	TypeDoubleWell    Type = 1
	TypeDimensionless Type = 2
	TypeCoupled       Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeDoubleWell:
		return "double-well"
	case TypeDimensionless:
		return "dimensionless"
	case TypeCoupled:
		return "coupled"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Params are the coefficients of every variant. Variants ignore the ones
// they do not use.
type Params struct {
	Alpha  float64
	Beta   float64
	Gamma  float64
	Lambda float64
	Kappa  float64
	CBar   float64
	Chi    float64

	WellDepth float64
	Sigma     float64

	// Harmonic spring on the locus (coupled variant only).
	SpringConstant float64
	Reference      []float64
	RestLength     []float64
}

// Jacobian holds per-cell bulk Hessian entries, J[a][b][i].
type Jacobian [][][]float64

// Model is a free energy over a species vector and a locus position.
type Model interface {
	Type() Type
	Params() Params
	FreeEnergy(c field.Vector, center dynamo.State) ([]float64, error)
	ChemicalPotential(c field.Vector, center dynamo.State) ([][]float64, error)
	BulkChemicalPotential(c field.Vector, center dynamo.State) ([][]float64, error)
	Jacobian(c field.Vector) (Jacobian, error)
	GaussianWell(m *mesh.Mesh, center dynamo.State) []float64
	Spring(center dynamo.State) dynamo.State
}

// New builds the variant t.
func New(t Type, p Params) (Model, error) {
	if p.Lambda <= 0 {
		return nil, fmt.Errorf("lambda must be > 0, got %g: %w", p.Lambda, dynamo.ErrInvalidParameter)
	}
	if p.Sigma <= 0 {
		return nil, fmt.Errorf("sigma must be > 0, got %g: %w", p.Sigma, dynamo.ErrInvalidParameter)
	}
	switch t {
	case TypeDoubleWell:
		return &quartic{typ: t, p: p}, nil
	case TypeDimensionless:
		p.Alpha = 1
		p.Chi = 0
		p.SpringConstant = 0
		return &quartic{typ: t, p: p}, nil
	case TypeCoupled:
		p.Alpha = 1
		return &quartic{typ: t, p: p}, nil
	}
	return nil, fmt.Errorf("unknown free energy type %d: %w", int(t), dynamo.ErrInvalidParameter)
}

// quartic covers all three variants. The dimensionless forms pin alpha to 1
// and the coupled form adds the chi cross term and the spring.
type quartic struct {
	typ Type
	p   Params
}

func (q *quartic) Type() Type     { return q.typ }
func (q *quartic) Params() Params { return q.p }

func (q *quartic) chi() float64 {
	if q.typ != TypeCoupled {
		return 0
	}
	return q.p.Chi
}

func (q *quartic) GaussianWell(m *mesh.Mesh, center dynamo.State) []float64 {
	w := m.SquaredDistanceFrom(center)
	s2 := 2 * q.p.Sigma * q.p.Sigma
	for i, d := range w {
		w[i] = q.p.WellDepth * math.Exp(-d/s2)
	}
	return w
}

func (q *quartic) FreeEnergy(c field.Vector, center dynamo.State) ([]float64, error) {
	if err := q.check(c, center); err != nil {
		return nil, err
	}
	m := c.Mesh()
	c1, c2 := c[field.Species1].Values(), c[field.Species2].Values()
	well := q.GaussianWell(m, center)
	grad2 := m.GradientMagnitudeSquared(c1)
	chi := q.chi()

	f := make([]float64, len(c1))
	for i := range f {
		d := c1[i] - q.p.CBar
		f[i] = q.p.Alpha/4*d*d*d*d +
			q.p.Beta/2*d*d +
			q.p.Gamma*c1[i]*c2[i] +
			q.p.Lambda/2*c2[i]*c2[i] +
			chi/2*c1[i]*c1[i]*c2[i]*c2[i] +
			q.p.Kappa/2*grad2[i] -
			well[i]*c1[i]
	}
	return f, nil
}

// BulkChemicalPotential returns mu without the surface-tension term.
func (q *quartic) BulkChemicalPotential(c field.Vector, center dynamo.State) ([][]float64, error) {
	if err := q.check(c, center); err != nil {
		return nil, err
	}
	c1, c2 := c[field.Species1].Values(), c[field.Species2].Values()
	well := q.GaussianWell(c.Mesh(), center)
	chi := q.chi()

	mu1 := make([]float64, len(c1))
	mu2 := make([]float64, len(c1))
	for i := range mu1 {
		d := c1[i] - q.p.CBar
		mu1[i] = q.p.Alpha*d*d*d + q.p.Beta*d + q.p.Gamma*c2[i] + chi*c1[i]*c2[i]*c2[i] - well[i]
		mu2[i] = q.p.Gamma*c1[i] + q.p.Lambda*c2[i] + chi*c1[i]*c1[i]*c2[i]
	}
	return [][]float64{mu1, mu2}, nil
}

func (q *quartic) ChemicalPotential(c field.Vector, center dynamo.State) ([][]float64, error) {
	mu, err := q.BulkChemicalPotential(c, center)
	if err != nil {
		return nil, err
	}
	lap := c.Mesh().Laplacian(c[field.Species1].Values())
	for i := range mu[0] {
		mu[0][i] -= q.p.Kappa * lap[i]
	}
	return mu, nil
}

func (q *quartic) Jacobian(c field.Vector) (Jacobian, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c1, c2 := c[field.Species1].Values(), c[field.Species2].Values()
	n := len(c1)
	chi := q.chi()

	j := Jacobian{
		{make([]float64, n), make([]float64, n)},
		{make([]float64, n), make([]float64, n)},
	}
	for i := 0; i < n; i++ {
		d := c1[i] - q.p.CBar
		j[0][0][i] = 3*q.p.Alpha*d*d + q.p.Beta + chi*c2[i]*c2[i]
		j[0][1][i] = q.p.Gamma + 2*chi*c1[i]*c2[i]
		j[1][0][i] = j[0][1][i]
		j[1][1][i] = q.p.Lambda + chi*c1[i]*c1[i]
	}
	return j, nil
}

// Spring returns the restoring force -k (center - reference - rest) on the
// locus. Zero for variants without a spring.
func (q *quartic) Spring(center dynamo.State) dynamo.State {
	f := make(dynamo.State, len(center))
	if q.typ != TypeCoupled || q.p.SpringConstant == 0 {
		return f
	}
	for d := range f {
		f[d] = -q.p.SpringConstant * (center[d] - component(q.p.Reference, d) - component(q.p.RestLength, d))
	}
	return f
}

func component(v []float64, d int) float64 {
	if d < len(v) {
		return v[d]
	}
	return 0
}

func (q *quartic) check(c field.Vector, center dynamo.State) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(center) != c.Mesh().Dim() {
		return fmt.Errorf("locus has %d components on a %dD mesh: %w", len(center), c.Mesh().Dim(), dynamo.ErrDimensionMismatch)
	}
	return nil
}

// LocalJacobian returns the 2x2 Hessian of cell i.
func LocalJacobian(j Jacobian, i int) *mat.SymDense {
	return mat.NewSymDense(2, []float64{
		j[0][0][i], j[0][1][i],
		j[1][0][i], j[1][1][i],
	})
}

// IsSymmetric reports whether J12 == J21 everywhere within tol.
func (j Jacobian) IsSymmetric(tol float64) bool {
	for i := range j[0][1] {
		if math.Abs(j[0][1][i]-j[1][0][i]) > tol {
			return false
		}
	}
	return true
}
