// Package delay supplies time-lagged copies of a field for delayed
// coupling. A lookup for time t returns the recorded snapshot whose time is
// nearest to t - tau. Before any history older than tau exists the earliest
// snapshot is returned.
package delay

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/storage"
)

var ErrBufferFull = errors.New("delay: history buffer full")

type Tracker interface {
	Record(t float64, c *field.Field, step int) error
	Delayed(t float64, step int) ([]float64, error)
	Tau() float64
}

// Backing names accepted by New.
const (
	BackingMemory = "memory"
	BackingDisk   = "disk"
)

// New builds a tracker. capacity bounds the memory ring; path is the
// series file for the disk backing.
func New(backing string, tau float64, capacity, cells int, path string) (Tracker, error) {
	if tau <= 0 {
		return nil, fmt.Errorf("tau must be > 0, got %g: %w", tau, dynamo.ErrInvalidParameter)
	}
	switch backing {
	case BackingMemory, "":
		return NewMemory(tau, capacity, cells)
	case BackingDisk:
		return NewDisk(tau, path, cells)
	}
	return nil, fmt.Errorf("unknown delay backing %q: %w", backing, dynamo.ErrInvalidParameter)
}

// nearest returns the index in [lo, hi] whose time is closest to target.
// Ties go to the earlier entry.
func nearest(times func(int) float64, lo, hi int, target float64) int {
	best, bestDist := lo, math.Inf(1)
	for i := lo; i <= hi; i++ {
		if d := math.Abs(times(i) - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// initialRing is the number of slots a Memory starts with. The ring doubles
// up to its capacity as the held window widens.
const initialRing = 64

// Memory keeps snapshots in a ring indexed by step. Entries older than the
// last selected one are released by advancing head.
type Memory struct {
	tau      float64
	capacity int
	cells    int

	snaps [][]float64
	times []float64
	head  int
	last  int
}

func NewMemory(tau float64, capacity, cells int) (*Memory, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("delay capacity must be >= 1, got %d: %w", capacity, dynamo.ErrInvalidParameter)
	}
	m := &Memory{
		tau:      tau,
		capacity: capacity,
		cells:    cells,
		last:     -1,
	}
	m.snaps, m.times = newRing(min(capacity, initialRing))
	return m, nil
}

// newRing allocates n empty slots. Unwritten slots carry time +Inf so a
// nearest-time search never selects them.
func newRing(n int) ([][]float64, []float64) {
	times := make([]float64, n)
	for i := range times {
		times[i] = math.Inf(1)
	}
	return make([][]float64, n), times
}

// grow re-slots the held window [head, last] into a ring of at least n slots.
func (m *Memory) grow(n int) {
	size := len(m.snaps)
	for size < n {
		size *= 2
	}
	size = min(size, m.capacity)
	snaps, times := newRing(size)
	for step := m.head; step <= m.last; step++ {
		old := m.slot(step)
		snaps[step%size] = m.snaps[old]
		times[step%size] = m.times[old]
	}
	m.snaps, m.times = snaps, times
}

func (m *Memory) Tau() float64 { return m.tau }

// Head is the oldest step still held. It starts at the first recorded step.
func (m *Memory) Head() int { return m.head }

func (m *Memory) slot(step int) int { return step % len(m.snaps) }

// Record stores a copy of c for step. Re-recording a step overwrites it and
// drops anything recorded after it.
func (m *Memory) Record(t float64, c *field.Field, step int) error {
	if c.Len() != m.cells {
		return fmt.Errorf("delay record of %d cells, want %d: %w", c.Len(), m.cells, dynamo.ErrDimensionMismatch)
	}
	if m.last < 0 {
		m.head = step
	}
	if step < m.head {
		return fmt.Errorf("step %d already released (head %d): %w", step, m.head, dynamo.ErrPrecondition)
	}
	if step-m.head >= m.capacity {
		return fmt.Errorf("step %d with head %d and capacity %d: %w", step, m.head, m.capacity, ErrBufferFull)
	}
	if step-m.head >= len(m.snaps) {
		m.grow(step - m.head + 1)
	}
	s := m.slot(step)
	if m.snaps[s] == nil {
		m.snaps[s] = make([]float64, m.cells)
	}
	copy(m.snaps[s], c.Values())
	m.times[s] = t
	m.last = step
	return nil
}

func (m *Memory) Delayed(t float64, step int) ([]float64, error) {
	if m.last < 0 {
		return nil, dynamo.ErrDelayUnavailable
	}
	hi := m.last
	if step >= m.head && step < hi {
		hi = step
	}
	idx := m.head
	if target := t - m.tau; target > 0 {
		idx = nearest(func(i int) float64 { return m.times[m.slot(i)] }, m.head, hi, target)
	}
	m.head = idx
	out := make([]float64, m.cells)
	copy(out, m.snaps[m.slot(idx)])
	return out, nil
}

// Disk appends snapshots to a storage series and reads the selected record
// back on every lookup. Reads block.
type Disk struct {
	tau    float64
	series *storage.Series
	head   int
}

func NewDisk(tau float64, path string, cells int) (*Disk, error) {
	s, err := storage.CreateSeries(path, cells)
	if err != nil {
		return nil, err
	}
	return &Disk{tau: tau, series: s}, nil
}

func (d *Disk) Tau() float64 { return d.tau }

// Record appends c for step. Re-recording a step first drops that step and
// everything after it.
func (d *Disk) Record(t float64, c *field.Field, step int) error {
	steps := d.series.Steps()
	n := len(steps)
	for n > 0 && steps[n-1] >= step {
		n--
	}
	if n < len(steps) {
		if err := d.series.Truncate(n); err != nil {
			return err
		}
		if d.head > n {
			d.head = n
		}
	}
	return d.series.Append(step, t, c.Values())
}

func (d *Disk) Delayed(t float64, step int) ([]float64, error) {
	times := d.series.Times()
	if len(times) == 0 {
		return nil, dynamo.ErrDelayUnavailable
	}
	if d.head >= len(times) {
		d.head = len(times) - 1
	}
	idx := d.head
	if target := t - d.tau; target > 0 {
		idx = nearest(func(i int) float64 { return times[i] }, d.head, len(times)-1, target)
	}
	d.head = idx
	_, _, values, err := d.series.Read(idx)
	return values, err
}

func (d *Disk) Close() error { return d.series.Close() }
