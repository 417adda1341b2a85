package linsolve

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CSR is a square sparse matrix in compressed sparse row layout.
type CSR struct {
	n      int
	rowPtr []int
	cols   []int
	vals   []float64
}

// Builder accumulates matrix entries; repeated (row, col) pairs are summed.
type Builder struct {
	n    int
	rows []map[int]float64
}

func NewBuilder(n int) *Builder {
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = make(map[int]float64, 8)
	}
	return &Builder{n: n, rows: rows}
}

func (b *Builder) Add(row, col int, v float64) {
	if v == 0 {
		return
	}
	b.rows[row][col] += v
}

// AddMatrix adds scale*m into the builder.
func (b *Builder) AddMatrix(m *CSR, scale float64) {
	for i := 0; i < m.n; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			b.Add(i, m.cols[k], scale*m.vals[k])
		}
	}
}

// AddRowScaled adds rowScale[i]*scale*m into the builder, row by row.
func (b *Builder) AddRowScaled(m *CSR, rowScale []float64, scale float64) {
	for i := 0; i < m.n; i++ {
		f := scale * rowScale[i]
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			b.Add(i, m.cols[k], f*m.vals[k])
		}
	}
}

func (b *Builder) Build() *CSR {
	m := &CSR{n: b.n, rowPtr: make([]int, b.n+1)}
	nnz := 0
	for _, r := range b.rows {
		nnz += len(r)
	}
	m.cols = make([]int, 0, nnz)
	m.vals = make([]float64, 0, nnz)

	keys := make([]int, 0, 16)
	for i, r := range b.rows {
		keys = keys[:0]
		for c := range r {
			keys = append(keys, c)
		}
		sort.Ints(keys)
		for _, c := range keys {
			m.cols = append(m.cols, c)
			m.vals = append(m.vals, r[c])
		}
		m.rowPtr[i+1] = len(m.cols)
	}
	return m
}

func (m *CSR) Dim() int { return m.n }
func (m *CSR) NNZ() int { return len(m.vals) }

// At returns entry (i, j); zero when not stored.
func (m *CSR) At(i, j int) float64 {
	lo, hi := m.rowPtr[i], m.rowPtr[i+1]
	k := lo + sort.SearchInts(m.cols[lo:hi], j)
	if k < hi && m.cols[k] == j {
		return m.vals[k]
	}
	return 0
}

// Row calls fn for every stored entry in row i.
func (m *CSR) Row(i int, fn func(j int, v float64)) {
	for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
		fn(m.cols[k], m.vals[k])
	}
}

// MulVecTo computes dst = m * x.
func (m *CSR) MulVecTo(dst, x []float64) {
	for i := 0; i < m.n; i++ {
		s := 0.0
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			s += m.vals[k] * x[m.cols[k]]
		}
		dst[i] = s
	}
}

func (m *CSR) MulVec(x []float64) []float64 {
	dst := make([]float64, m.n)
	m.MulVecTo(dst, x)
	return dst
}

func (m *CSR) Diagonal() []float64 {
	d := make([]float64, m.n)
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

// Residual returns ||m*x - b||_2.
func (m *CSR) Residual(x, b []float64) float64 {
	r := m.MulVec(x)
	floats.Sub(r, b)
	return floats.Norm(r, 2)
}

// IsSymmetric reports whether |m_ij - m_ji| <= tol for all stored entries.
func (m *CSR) IsSymmetric(tol float64) bool {
	for i := 0; i < m.n; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			j := m.cols[k]
			d := m.vals[k] - m.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}

// Product returns a * diag(w) * b. A nil w is the identity.
func Product(a *CSR, w []float64, b *CSR) (*CSR, error) {
	if a.n != b.n || (w != nil && len(w) != a.n) {
		return nil, fmt.Errorf("linsolve: product of %dx%d and %dx%d", a.n, a.n, b.n, b.n)
	}
	out := NewBuilder(a.n)
	for i := 0; i < a.n; i++ {
		for ka := a.rowPtr[i]; ka < a.rowPtr[i+1]; ka++ {
			k := a.cols[ka]
			f := a.vals[ka]
			if w != nil {
				f *= w[k]
			}
			for kb := b.rowPtr[k]; kb < b.rowPtr[k+1]; kb++ {
				out.Add(i, b.cols[kb], f*b.vals[kb])
			}
		}
	}
	return out.Build(), nil
}
