package metrics

import (
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/integrators"
	"gonum.org/v1/gonum/mat"
)

// Spinodal is the fraction of cells whose local free-energy Hessian has a
// negative eigenvalue in the last observed state.
type Spinodal struct {
	name     string
	model    freeenergy.Model
	unstable int
	cells    int
}

func NewSpinodal(model freeenergy.Model) *Spinodal {
	return &Spinodal{
		name:  "spinodal_fraction",
		model: model,
	}
}

func (s *Spinodal) Name() string {
	return s.name
}

func (s *Spinodal) Observe(st *integrators.State, rep integrators.Report, t float64) {
	j, err := s.model.Jacobian(st.Fields)
	if err != nil {
		return
	}
	n := len(j[0][0])
	s.unstable = 0
	s.cells = n

	var eig mat.EigenSym
	for i := 0; i < n; i++ {
		if !eig.Factorize(freeenergy.LocalJacobian(j, i), false) {
			continue
		}
		for _, v := range eig.Values(nil) {
			if v < 0 {
				s.unstable++
				break
			}
		}
	}
}

func (s *Spinodal) Value() float64 {
	if s.cells == 0 {
		return 0
	}
	return float64(s.unstable) / float64(s.cells)
}

func (s *Spinodal) Reset() {
	s.unstable = 0
	s.cells = 0
}
