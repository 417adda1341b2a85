package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/condensim/internal/linsolve"
)

// Face is an internal face between cells I < J. Boundary faces are not
// stored, which gives no-flux boundaries everywhere.
type Face struct {
	I, J  int
	Axis  int
	Area  float64
	Trans float64 // Area / center distance
}

// Mesh is a finite-volume mesh of cells cut from a regular lattice. Cell
// centers for square and cube meshes span [-L/2, L/2]; circular meshes are
// centered at the origin.
type Mesh struct {
	dim     int
	dx      float64
	centers [][]float64 // [axis][cell]
	volumes []float64
	faces   []Face
	cellFcs [][]int
	plus    [][]int // [axis][cell] neighbor index or -1
	minus   [][]int

	stiffness *linsolve.CSR
}

// Square2D builds an n x n lattice with n = round(length/dx).
func Square2D(length, dx float64) (*Mesh, error) {
	return lattice(2, length, dx, nil)
}

// Cube3D builds an n x n x n lattice with n = round(length/dx).
func Cube3D(length, dx float64) (*Mesh, error) {
	return lattice(3, length, dx, nil)
}

// Circle2D keeps the cells of a square lattice whose centers fall inside
// the disc of the given radius.
func Circle2D(radius, dx float64) (*Mesh, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("mesh: radius must be positive, got %g", radius)
	}
	r2 := radius * radius
	return lattice(2, 2*radius, dx, func(p []float64) bool {
		return p[0]*p[0]+p[1]*p[1] <= r2
	})
}

func lattice(dim int, length, dx float64, keep func([]float64) bool) (*Mesh, error) {
	if length <= 0 || dx <= 0 {
		return nil, fmt.Errorf("mesh: length and dx must be positive, got %g and %g", length, dx)
	}
	n := int(math.Round(length / dx))
	if n < 1 {
		return nil, fmt.Errorf("mesh: dx %g larger than domain %g", dx, length)
	}
	total := 1
	for d := 0; d < dim; d++ {
		total *= n
	}

	coord := func(k int) float64 { return (float64(k)+0.5)*dx - float64(n)*dx/2 }
	lat := make([]int, dim)
	point := make([]float64, dim)
	index := make([]int, total)

	m := &Mesh{dim: dim, dx: dx, centers: make([][]float64, dim)}
	for lin := 0; lin < total; lin++ {
		unflatten(lin, n, lat)
		for d := range lat {
			point[d] = coord(lat[d])
		}
		if keep != nil && !keep(point) {
			index[lin] = -1
			continue
		}
		index[lin] = len(m.volumes)
		for d := range point {
			m.centers[d] = append(m.centers[d], point[d])
		}
		m.volumes = append(m.volumes, math.Pow(dx, float64(dim)))
	}
	cells := len(m.volumes)
	if cells == 0 {
		return nil, fmt.Errorf("mesh: no cells inside domain")
	}

	m.cellFcs = make([][]int, cells)
	m.plus = make([][]int, dim)
	m.minus = make([][]int, dim)
	for d := 0; d < dim; d++ {
		m.plus[d] = filled(cells, -1)
		m.minus[d] = filled(cells, -1)
	}
	area := math.Pow(dx, float64(dim-1))
	stride := 1
	for d := 0; d < dim; d++ {
		for lin := 0; lin < total; lin++ {
			i := index[lin]
			if i < 0 {
				continue
			}
			unflatten(lin, n, lat)
			if lat[d]+1 >= n {
				continue
			}
			j := index[lin+stride]
			if j < 0 {
				continue
			}
			m.plus[d][i] = j
			m.minus[d][j] = i
			f := len(m.faces)
			m.faces = append(m.faces, Face{I: i, J: j, Axis: d, Area: area, Trans: area / dx})
			m.cellFcs[i] = append(m.cellFcs[i], f)
			m.cellFcs[j] = append(m.cellFcs[j], f)
		}
		stride *= n
	}
	return m, nil
}

func unflatten(lin, n int, out []int) {
	for d := range out {
		out[d] = lin % n
		lin /= n
	}
}

func filled(n, v int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func (m *Mesh) Dim() int             { return m.dim }
func (m *Mesh) NumCells() int        { return len(m.volumes) }
func (m *Mesh) CellSize() float64    { return m.dx }
func (m *Mesh) Faces() []Face        { return m.faces }
func (m *Mesh) Volume(i int) float64 { return m.volumes[i] }

// Volumes returns the per-cell volumes; the slice must not be modified.
func (m *Mesh) Volumes() []float64 { return m.volumes }

// Coordinates returns the cell-center coordinate along axis; the slice
// must not be modified.
func (m *Mesh) Coordinates(axis int) []float64 { return m.centers[axis] }

func (m *Mesh) Center(i int) []float64 {
	p := make([]float64, m.dim)
	for d := range p {
		p[d] = m.centers[d][i]
	}
	return p
}

// Neighbors returns the cells sharing a face with cell i.
func (m *Mesh) Neighbors(i int) []int {
	out := make([]int, 0, len(m.cellFcs[i]))
	for _, f := range m.cellFcs[i] {
		fc := m.faces[f]
		if fc.I == i {
			out = append(out, fc.J)
		} else {
			out = append(out, fc.I)
		}
	}
	return out
}

func (m *Mesh) SquaredDistanceFrom(point []float64) []float64 {
	d2 := make([]float64, m.NumCells())
	for d := 0; d < m.dim && d < len(point); d++ {
		for i, x := range m.centers[d] {
			dx := x - point[d]
			d2[i] += dx * dx
		}
	}
	return d2
}

// Integrate returns the volume integral of per-cell values.
func (m *Mesh) Integrate(values []float64) float64 {
	return floats.Dot(m.volumes, values)
}
