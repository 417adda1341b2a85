package mesh

import (
	"github.com/san-kum/condensim/internal/linsolve"
)

// Gradient returns the cell-centered gradient [axis][cell]. Central
// differences in the interior, one-sided next to a boundary.
func (m *Mesh) Gradient(values []float64) [][]float64 {
	g := make([][]float64, m.dim)
	for d := 0; d < m.dim; d++ {
		g[d] = make([]float64, m.NumCells())
		for i := range g[d] {
			p, q := m.plus[d][i], m.minus[d][i]
			switch {
			case p >= 0 && q >= 0:
				g[d][i] = (values[p] - values[q]) / (2 * m.dx)
			case p >= 0:
				g[d][i] = (values[p] - values[i]) / m.dx
			case q >= 0:
				g[d][i] = (values[i] - values[q]) / m.dx
			}
		}
	}
	return g
}

// GradientMagnitudeSquared returns |∇v|² per cell.
func (m *Mesh) GradientMagnitudeSquared(values []float64) []float64 {
	out := make([]float64, m.NumCells())
	for _, gd := range m.Gradient(values) {
		for i, v := range gd {
			out[i] += v * v
		}
	}
	return out
}

// FaceGradient returns (v_J - v_I) / distance for every face.
func (m *Mesh) FaceGradient(values []float64) []float64 {
	out := make([]float64, len(m.faces))
	for f, fc := range m.faces {
		out[f] = (values[fc.J] - values[fc.I]) / m.dx
	}
	return out
}

// Divergence of a face flux oriented from I to J, per unit cell volume.
func (m *Mesh) Divergence(faceFlux []float64) []float64 {
	out := make([]float64, m.NumCells())
	for f, fc := range m.faces {
		q := faceFlux[f] * fc.Area
		out[fc.I] += q / m.volumes[fc.I]
		out[fc.J] -= q / m.volumes[fc.J]
	}
	return out
}

// Laplacian returns div(grad v) with no-flux boundaries.
func (m *Mesh) Laplacian(values []float64) []float64 {
	out := m.Stiffness().MulVec(values)
	for i := range out {
		out[i] /= m.volumes[i]
	}
	return out
}

// Stiffness is the symmetric graph Laplacian (S v)_i = Σ_j T_ij (v_j - v_i).
// Built once and cached.
func (m *Mesh) Stiffness() *linsolve.CSR {
	if m.stiffness == nil {
		m.stiffness = m.Diffusion(nil)
	}
	return m.stiffness
}

// Diffusion returns the operator (D v)_i = Σ_j T_ij a_ij (v_j - v_i) where
// a_ij is the arithmetic face average of the per-cell coefficient. A nil
// coefficient is 1 everywhere. The result is symmetric and its rows sum
// to zero, so it conserves Σ_i V_i v_i.
func (m *Mesh) Diffusion(coeff []float64) *linsolve.CSR {
	b := linsolve.NewBuilder(m.NumCells())
	for _, fc := range m.faces {
		w := fc.Trans
		if coeff != nil {
			w *= 0.5 * (coeff[fc.I] + coeff[fc.J])
		}
		b.Add(fc.I, fc.J, w)
		b.Add(fc.J, fc.I, w)
		b.Add(fc.I, fc.I, -w)
		b.Add(fc.J, fc.J, -w)
	}
	return b.Build()
}
