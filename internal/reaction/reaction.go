// Package reaction provides the production and degradation rate laws used
// by the species-2 equation.
package reaction

import (
	"fmt"
	"math"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/mesh"
)

// Type values match the reaction_type configuration key.
type Type int

const (
	TypeFirstOrder      Type = 1
	TypeLocalized       Type = 2
	TypeLocalizedHill   Type = 3
	TypeLocalizedLinear Type = 4
)

// Source is the implicit term Coeff * Factor. A nil Factor stands for Var
// itself, so the term is linear in Var and can be placed on the matrix
// diagonal when Var is the unknown. A non-nil Factor is frozen at the
// current iterate.
type Source struct {
	Var    *field.Field
	Coeff  []float64
	Factor []float64
}

// Linear reports whether the term is linear in Var.
func (s Source) Linear() bool { return s.Factor == nil }

// Eval returns Coeff * Factor at the working values of Var.
func (s Source) Eval() []float64 {
	out := make([]float64, len(s.Coeff))
	factor := s.Factor
	if factor == nil {
		factor = s.Var.Values()
	}
	for i := range out {
		out[i] = s.Coeff[i] * factor[i]
	}
	return out
}

// Rate maps a concentration field to its implicit source term.
type Rate interface {
	Rate(c *field.Field) Source
}

// FirstOrder is k c with a uniform k.
type FirstOrder struct {
	K float64
}

func (r FirstOrder) Rate(c *field.Field) Source {
	coeff := make([]float64, c.Len())
	for i := range coeff {
		coeff[i] = r.K
	}
	return Source{Var: c, Coeff: coeff}
}

// Localized is (k0 + k exp(-|x-x0|^2/2 sigma^2)) c.
type Localized struct {
	coeff []float64
}

// NewLocalized precomputes the spatial rate constant on m.
func NewLocalized(m *mesh.Mesh, k0, k, sigma float64, x0 []float64) (*Localized, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("reaction sigma must be > 0, got %g: %w", sigma, dynamo.ErrInvalidParameter)
	}
	if len(x0) != m.Dim() {
		return nil, fmt.Errorf("reaction center has %d components on a %dD mesh: %w", len(x0), m.Dim(), dynamo.ErrDimensionMismatch)
	}
	d2 := m.SquaredDistanceFrom(x0)
	s2 := 2 * sigma * sigma
	for i, d := range d2 {
		d2[i] = k0 + k*math.Exp(-d/s2)
	}
	return &Localized{coeff: d2}, nil
}

func (r *Localized) Coefficient() []float64 { return r.coeff }

func (r *Localized) Rate(c *field.Field) Source {
	return Source{Var: c, Coeff: r.coeff}
}

// Hill saturates the localized rate with vmax (c-c0)^n / ((c-c0)^n + kd^n) + v0.
type Hill struct {
	*Localized
	Vmax, C0, Kd, N, V0 float64
}

func (r *Hill) Rate(c *field.Field) Source {
	values := c.Values()
	factor := make([]float64, len(values))
	kdn := math.Pow(r.Kd, r.N)
	for i, v := range values {
		x := math.Pow(v-r.C0, r.N)
		factor[i] = r.Vmax*x/(x+kdn) + r.V0
	}
	return Source{Var: c, Coeff: r.coeff, Factor: factor}
}

// Linear scales the localized rate with m c + b.
type Linear struct {
	*Localized
	M, B float64
}

func (r *Linear) Rate(c *field.Field) Source {
	values := c.Values()
	factor := make([]float64, len(values))
	for i, v := range values {
		factor[i] = r.M*v + r.B
	}
	return Source{Var: c, Coeff: r.coeff, Factor: factor}
}

// Params carries the coefficients for New.
type Params struct {
	Basal  float64
	K      float64
	Sigma  float64
	Center []float64

	HillVmax, HillC0, HillKd, HillN, HillV0 float64

	LinearM, LinearB float64
}

// New builds the production rate law of type t on m.
func New(t Type, m *mesh.Mesh, p Params) (Rate, error) {
	if t == TypeFirstOrder {
		return FirstOrder{K: p.Basal}, nil
	}
	loc, err := NewLocalized(m, p.Basal, p.K, p.Sigma, p.Center)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeLocalized:
		return loc, nil
	case TypeLocalizedHill:
		return &Hill{Localized: loc, Vmax: p.HillVmax, C0: p.HillC0, Kd: p.HillKd, N: p.HillN, V0: p.HillV0}, nil
	case TypeLocalizedLinear:
		return &Linear{Localized: loc, M: p.LinearM, B: p.LinearB}, nil
	}
	return nil, fmt.Errorf("unknown reaction type %d: %w", int(t), dynamo.ErrInvalidParameter)
}
