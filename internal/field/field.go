// Package field holds per-cell concentration fields and the ordered
// species vector the engine evolves.
package field

import (
	"fmt"
	"math"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/mesh"
)

// Species indices within a Vector.
const (
	Species1 = 0 // phase-separating
	Species2 = 1 // reaction product
	Species3 = 2 // delayed / active
)

// Field is a per-cell scalar with a double-buffered previous value. The
// working buffer is mutated by sweeps; Commit promotes it to old.
type Field struct {
	Name  string
	mesh  *mesh.Mesh
	value []float64
	old   []float64
}

func New(name string, m *mesh.Mesh, initial float64) *Field {
	f := &Field{
		Name:  name,
		mesh:  m,
		value: make([]float64, m.NumCells()),
		old:   make([]float64, m.NumCells()),
	}
	for i := range f.value {
		f.value[i] = initial
		f.old[i] = initial
	}
	return f
}

func FromValues(name string, m *mesh.Mesh, values []float64) (*Field, error) {
	if len(values) != m.NumCells() {
		return nil, fmt.Errorf("field %s: %d values for %d cells: %w", name, len(values), m.NumCells(), dynamo.ErrDimensionMismatch)
	}
	f := New(name, m, 0)
	copy(f.value, values)
	copy(f.old, values)
	return f, nil
}

func (f *Field) Mesh() *mesh.Mesh { return f.mesh }
func (f *Field) Len() int         { return len(f.value) }

// Values returns the working buffer.
func (f *Field) Values() []float64 { return f.value }

// Old returns the last committed values.
func (f *Field) Old() []float64 { return f.old }

// Set overwrites the working buffer.
func (f *Field) Set(values []float64) {
	copy(f.value, values)
}

// Commit makes the working values the accepted ones. The buffers are
// swapped and the new working buffer is reseeded from the accepted values.
func (f *Field) Commit() {
	f.old, f.value = f.value, f.old
	copy(f.value, f.old)
}

// Reset discards uncommitted work.
func (f *Field) Reset() {
	copy(f.value, f.old)
}

// Restore sets both buffers to values, rolling the field back to a
// snapshot taken before a step.
func (f *Field) Restore(values []float64) {
	copy(f.value, values)
	copy(f.old, values)
}

// MaxChange returns max |value - old|.
func (f *Field) MaxChange() float64 {
	m := 0.0
	for i, v := range f.value {
		if d := math.Abs(v - f.old[i]); d > m {
			m = d
		}
	}
	return m
}

// Integral returns the volume integral of the working values.
func (f *Field) Integral() float64 {
	return f.mesh.Integrate(f.value)
}

func (f *Field) IsValid() bool {
	return dynamo.State(f.value).IsValid()
}

func (f *Field) Clone() *Field {
	c := New(f.Name, f.mesh, 0)
	copy(c.value, f.value)
	copy(c.old, f.old)
	return c
}

// Snapshot returns a copy of the working values.
func (f *Field) Snapshot() []float64 {
	s := make([]float64, len(f.value))
	copy(s, f.value)
	return s
}

// Vector is the ordered species vector. Index i is species i+1.
type Vector []*Field

// Validate checks the vector has 2 or 3 fields on one shared mesh.
func (v Vector) Validate() error {
	if len(v) != 2 && len(v) != 3 {
		return fmt.Errorf("field vector has %d species, want 2 or 3: %w", len(v), dynamo.ErrPrecondition)
	}
	for i, f := range v {
		if f == nil || f.mesh == nil {
			return fmt.Errorf("species %d has no mesh: %w", i+1, dynamo.ErrPrecondition)
		}
		if f.mesh != v[0].mesh {
			return fmt.Errorf("species %d on a different mesh: %w", i+1, dynamo.ErrPrecondition)
		}
	}
	return nil
}

func (v Vector) Mesh() *mesh.Mesh {
	if len(v) == 0 || v[0] == nil {
		return nil
	}
	return v[0].mesh
}

func (v Vector) Commit() {
	for _, f := range v {
		f.Commit()
	}
}

func (v Vector) Reset() {
	for _, f := range v {
		f.Reset()
	}
}

// Snapshot copies the working values of every species.
func (v Vector) Snapshot() [][]float64 {
	out := make([][]float64, len(v))
	for i, f := range v {
		out[i] = f.Snapshot()
	}
	return out
}

func (v Vector) Restore(values [][]float64) {
	for i, f := range v {
		f.Restore(values[i])
	}
}

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	for i, f := range v {
		c[i] = f.Clone()
	}
	return c
}

func (v Vector) IsValid() bool {
	for _, f := range v {
		if !f.IsValid() {
			return false
		}
	}
	return true
}
