package sim

import (
	"sync"

	"github.com/san-kum/condensim/internal/field"
)

// SnapshotPool recycles per-species buffers for pre-step snapshots.
type SnapshotPool struct {
	pool    sync.Pool
	species int
	cells   int
}

func NewSnapshotPool(species, cells int) *SnapshotPool {
	return &SnapshotPool{
		species: species,
		cells:   cells,
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([][]float64, species)
				for k := range buf {
					buf[k] = make([]float64, cells)
				}
				return buf
			},
		},
	}
}

func (p *SnapshotPool) Get() [][]float64 {
	return p.pool.Get().([][]float64)
}

func (p *SnapshotPool) Put(s [][]float64) {
	if len(s) != p.species {
		return
	}
	for _, v := range s {
		if len(v) != p.cells {
			return
		}
	}
	p.pool.Put(s)
}

// Capture copies the current values of v into a pooled buffer.
func (p *SnapshotPool) Capture(v field.Vector) [][]float64 {
	dst := p.Get()
	for k, f := range v {
		copy(dst[k], f.Values())
	}
	return dst
}
