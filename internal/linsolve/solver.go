package linsolve

import (
	"errors"
	"fmt"
	"slices"

	krylov "gonum.org/v1/exp/linsolve"
	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged is returned when the iteration cap is reached before the
// relative tolerance. The iterate in x is still the best available value.
var ErrNotConverged = errors.New("linsolve: iteration limit reached")

// ErrBreakdown is returned when a Krylov recurrence divides by zero.
var ErrBreakdown = errors.New("linsolve: solver breakdown")

// gmresRestart caps the GMRES basis; smaller systems restart at n.
const gmresRestart = 30

type Stats struct {
	Iterations int
	Residual   float64
}

// Solver solves A x = b in place, starting from the values already in x.
type Solver interface {
	Name() string
	Solve(a *CSR, b, x []float64) (Stats, error)
}

func New(name string, tol float64, maxIter int) (Solver, error) {
	switch name {
	case "cg":
		return NewCG(tol, maxIter), nil
	case "bicgstab", "":
		return NewBiCGSTAB(tol, maxIter), nil
	case "gmres":
		return NewGMRES(tol, maxIter), nil
	}
	return nil, fmt.Errorf("unknown solver: %s", name)
}

// Krylov runs one of the gonum iterative methods with a Jacobi
// preconditioner. A fresh method is built per solve since gonum methods
// carry iteration state.
type Krylov struct {
	name    string
	tol     float64
	maxIter int
	method  func(n int) krylov.Method
}

// NewCG solves SPD systems with conjugate gradients.
func NewCG(tol float64, maxIter int) *Krylov {
	return &Krylov{name: "cg", tol: tol, maxIter: maxIter,
		method: func(int) krylov.Method { return &krylov.CG{} }}
}

// NewBiCGSTAB solves general systems.
func NewBiCGSTAB(tol float64, maxIter int) *Krylov {
	return &Krylov{name: "bicgstab", tol: tol, maxIter: maxIter,
		method: func(int) krylov.Method { return &krylov.BiCGStab{} }}
}

// NewGMRES solves general systems with restarted GMRES.
func NewGMRES(tol float64, maxIter int) *Krylov {
	return &Krylov{name: "gmres", tol: tol, maxIter: maxIter,
		method: func(n int) krylov.Method { return &krylov.GMRES{Restart: min(n, gmresRestart)} }}
}

func (s *Krylov) Name() string { return s.name }

func (s *Krylov) Solve(a *CSR, b, x []float64) (Stats, error) {
	n := a.Dim()
	if len(b) != n || len(x) != n {
		return Stats{}, fmt.Errorf("linsolve: %s size %d with b=%d x=%d", s.name, n, len(b), len(x))
	}
	if s.tol <= 0 || s.tol >= 1 || s.maxIter < 1 {
		return Stats{}, fmt.Errorf("linsolve: %s tolerance %g, iterations %d", s.name, s.tol, s.maxIter)
	}
	if n == 0 {
		return Stats{}, nil
	}

	inv := jacobi(a)
	res, err := krylov.Iterative(operator{a}, mat.NewVecDense(n, b), s.method(n), &krylov.Settings{
		InitX:         mat.NewVecDense(n, slices.Clone(x)),
		Dst:           mat.NewVecDense(n, x),
		Tolerance:     s.tol,
		MaxIterations: s.maxIter,
		PreconSolve: func(dst *mat.VecDense, _ bool, rhs mat.Vector) error {
			for i, d := range inv {
				dst.SetVec(i, d*rhs.AtVec(i))
			}
			return nil
		},
	})

	st := Stats{Iterations: res.Stats.Iterations, Residual: a.Residual(x, b)}
	var breakdown *krylov.BreakdownError
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, krylov.ErrIterationLimit):
		return st, ErrNotConverged
	case errors.As(err, &breakdown):
		return st, fmt.Errorf("%w: %s", ErrBreakdown, err)
	}
	return st, err
}

// operator exposes a CSR as the matrix-vector product gonum iterates on.
type operator struct{ m *CSR }

func (o operator) MulVecTo(dst *mat.VecDense, trans bool, x mat.Vector) {
	m := o.m
	if !trans {
		for i := 0; i < m.n; i++ {
			s := 0.0
			for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
				s += m.vals[k] * x.AtVec(m.cols[k])
			}
			dst.SetVec(i, s)
		}
		return
	}
	dst.Zero()
	for i := 0; i < m.n; i++ {
		xi := x.AtVec(i)
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			j := m.cols[k]
			dst.SetVec(j, dst.AtVec(j)+m.vals[k]*xi)
		}
	}
}

func jacobi(a *CSR) []float64 {
	d := a.Diagonal()
	for i, v := range d {
		if v == 0 {
			d[i] = 1
		} else {
			d[i] = 1 / v
		}
	}
	return d
}
