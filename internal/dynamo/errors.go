package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidParameter indicates a model constructed with out-of-range coefficients.
	ErrInvalidParameter = errors.New("dynamo: invalid parameter")

	// ErrPrecondition indicates a contract violation by the caller, such as a
	// field vector with the wrong species count.
	ErrPrecondition = errors.New("dynamo: precondition violated")

	// ErrDelayUnavailable indicates a delayed lookup before anything was recorded.
	ErrDelayUnavailable = errors.New("dynamo: delayed value unavailable")

	// ErrNonConvergence indicates sweeps exhausted without meeting the residual tolerance.
	ErrNonConvergence = errors.New("dynamo: sweeps did not converge")

	// ErrInvalidState indicates a field with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrDimensionMismatch indicates mismatched mesh/field/locus dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrContextCanceled indicates the simulation was interrupted between steps.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
