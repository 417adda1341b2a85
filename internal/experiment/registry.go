package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/integrators"
	"github.com/san-kum/condensim/internal/linsolve"
	"github.com/san-kum/condensim/internal/mesh"
)

// Geometry names.
const (
	GeometrySquare = "square"
	GeometryCircle = "circle"
	GeometryCube   = "cube"
)

type Registry struct {
	meshes      map[string]func(c *config.Config) (*mesh.Mesh, error)
	integrators map[string]func() dynamo.Integrator
	solvers     map[string]func(tol float64, maxIter int) linsolve.Solver
}

func NewRegistry() *Registry {
	r := &Registry{
		meshes:      make(map[string]func(*config.Config) (*mesh.Mesh, error)),
		integrators: make(map[string]func() dynamo.Integrator),
		solvers:     make(map[string]func(float64, int) linsolve.Solver),
	}

	r.meshes[GeometrySquare] = func(c *config.Config) (*mesh.Mesh, error) { return mesh.Square2D(c.Length, c.Dx) }
	r.meshes[GeometryCircle] = func(c *config.Config) (*mesh.Mesh, error) { return mesh.Circle2D(c.Radius, c.Dx) }
	r.meshes[GeometryCube] = func(c *config.Config) (*mesh.Mesh, error) { return mesh.Cube3D(c.Length, c.Dx) }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.solvers["cg"] = func(tol float64, maxIter int) linsolve.Solver { return linsolve.NewCG(tol, maxIter) }
	r.solvers["bicgstab"] = func(tol float64, maxIter int) linsolve.Solver { return linsolve.NewBiCGSTAB(tol, maxIter) }
	r.solvers["gmres"] = func(tol float64, maxIter int) linsolve.Solver { return linsolve.NewGMRES(tol, maxIter) }

	return r
}

// Geometry names the mesh a configuration asks for.
func Geometry(c *config.Config) string {
	switch {
	case c.Dimension == 3:
		return GeometryCube
	case c.CircFlag == 1:
		return GeometryCircle
	}
	return GeometrySquare
}

// GetMesh builds the mesh of c. Export uses it to rebuild cell centers.
func (r *Registry) GetMesh(c *config.Config) (*mesh.Mesh, error) {
	name := Geometry(c)
	fn, ok := r.meshes[name]
	if !ok {
		return nil, fmt.Errorf("unknown geometry: %s", name)
	}
	return fn(c)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	if name == "" {
		name = "euler"
	}
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator %q: %w", name, dynamo.ErrInvalidParameter)
	}
	return fn(), nil
}

func (r *Registry) GetSolver(name string, tol float64, maxIter int) (linsolve.Solver, error) {
	if name == "" {
		name = "bicgstab"
	}
	fn, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver %q: %w", name, dynamo.ErrInvalidParameter)
	}
	return fn(tol, maxIter), nil
}

func (r *Registry) ListGeometries() []string  { return keys(r.meshes) }
func (r *Registry) ListIntegrators() []string { return keys(r.integrators) }
func (r *Registry) ListSolvers() []string     { return keys(r.solvers) }

func keys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
