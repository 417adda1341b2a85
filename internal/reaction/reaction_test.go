package reaction

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/mesh"
)

func TestFirstOrder(t *testing.T) {
	m, _ := mesh.Square2D(2, 1)
	c := field.New("c", m, 2)
	s := FirstOrder{K: 0.5}.Rate(c)

	if !s.Linear() || s.Var != c {
		t.Fatal("first order term should be linear in its argument")
	}
	for i, v := range s.Eval() {
		if v != 1 {
			t.Errorf("cell %d: expected 1, got %f", i, v)
		}
	}
}

func TestLocalizedPeaksAtCenter(t *testing.T) {
	m, _ := mesh.Square2D(4, 1)
	center := m.Center(5)
	r, err := NewLocalized(m, 0.1, 1, 0.5, center)
	if err != nil {
		t.Fatal(err)
	}
	k := r.Coefficient()
	if math.Abs(k[5]-1.1) > 1e-12 {
		t.Errorf("expected k0+k at center, got %f", k[5])
	}
	for i, v := range k {
		if v > k[5] || v < 0.1 {
			t.Errorf("cell %d: rate %f outside [k0, k0+k]", i, v)
		}
	}
}

func TestHillFactor(t *testing.T) {
	m, _ := mesh.Square2D(2, 1)
	rate, err := New(TypeLocalizedHill, m, Params{
		Basal: 1, K: 0, Sigma: 1, Center: []float64{0, 0},
		HillVmax: 2, HillC0: 0, HillKd: 1, HillN: 2, HillV0: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	c := field.New("c", m, 1)
	s := rate.Rate(c)
	if s.Linear() {
		t.Fatal("hill term should carry a frozen factor")
	}
	// 2 * 1 / (1 + 1) + 0.5
	for i, v := range s.Eval() {
		if math.Abs(v-1.5) > 1e-12 {
			t.Errorf("cell %d: expected 1.5, got %f", i, v)
		}
	}
}

func TestLinearFactor(t *testing.T) {
	m, _ := mesh.Square2D(2, 1)
	rate, _ := New(TypeLocalizedLinear, m, Params{
		Basal: 2, Sigma: 1, Center: []float64{0, 0}, LinearM: 3, LinearB: -1,
	})
	c := field.New("c", m, 0.5)
	for i, v := range rate.Rate(c).Eval() {
		if math.Abs(v-1) > 1e-12 {
			t.Errorf("cell %d: expected 1, got %f", i, v)
		}
	}
}

func TestNewErrors(t *testing.T) {
	m, _ := mesh.Square2D(2, 1)
	tests := []struct {
		name string
		typ  Type
		p    Params
		want error
	}{
		{"unknown", Type(7), Params{Sigma: 1, Center: []float64{0, 0}}, dynamo.ErrInvalidParameter},
		{"zero sigma", TypeLocalized, Params{Center: []float64{0, 0}}, dynamo.ErrInvalidParameter},
		{"bad center", TypeLocalized, Params{Sigma: 1, Center: []float64{0}}, dynamo.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.typ, m, tt.p); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
