package metrics

import (
	"math"

	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/freeenergy"
	"github.com/san-kum/condensim/internal/integrators"
)

// FreeEnergy tracks the total free energy of the last observed state.
type FreeEnergy struct {
	name    string
	model   freeenergy.Model
	total   float64
	samples int
}

func NewFreeEnergy(model freeenergy.Model) *FreeEnergy {
	return &FreeEnergy{
		name:  "free_energy",
		model: model,
	}
}

func (e *FreeEnergy) Name() string { return e.name }

func (e *FreeEnergy) Observe(st *integrators.State, rep integrators.Report, t float64) {
	f, err := e.model.FreeEnergy(st.Fields, st.Locus)
	if err != nil {
		return
	}
	e.total = st.Fields.Mesh().Integrate(f)
	e.samples++
}

func (e *FreeEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total
}

func (e *FreeEnergy) Reset() {
	e.total = 0
	e.samples = 0
}

// MassDrift is the largest relative change of the integral of c1 from the
// first observation.
type MassDrift struct {
	name     string
	species  int
	initial  float64
	maxDrift float64
	samples  int
}

func NewMassDrift() *MassDrift {
	return &MassDrift{
		name:    "mass_drift",
		species: field.Species1,
	}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(st *integrators.State, rep integrators.Report, t float64) {
	mass := st.Fields[m.species].Integral()
	if m.samples == 0 {
		m.initial = mass
	}
	m.samples++

	drift := math.Abs(mass - m.initial)
	if m.initial != 0 {
		drift /= math.Abs(m.initial)
	}
	if drift > m.maxDrift {
		m.maxDrift = drift
	}
}

func (m *MassDrift) Value() float64 { return m.maxDrift }

func (m *MassDrift) Reset() {
	m.initial = 0
	m.maxDrift = 0
	m.samples = 0
}
