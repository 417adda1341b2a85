// Package dynamo provides the core primitives shared by the field engine.
//
// The package defines the small set of types every other package agrees on:
//
//   - [State]: a small dense vector, used for the locus position
//   - [System]: an ODE right-hand side (dX/dt = f(X, t))
//   - [Integrator]: an explicit ODE stepper
//   - the sentinel errors returned across the engine
//
// # Example
//
//	model, err := dynamics.New(m, fe, production, p)
//	if err != nil {
//		return err
//	}
//	integ := integrators.NewEuler()
//	center = integ.Integrate(model.Locus(c1), center, t, dt, substeps)
//
// # Thread Safety
//
// Nothing in this package is synchronized. Each simulation owns its own
// fields and locus; parallel parameter sweeps run whole simulations in
// separate goroutines without sharing state.
package dynamo
