package delay_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/condensim/internal/delay"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/mesh"
)

var _ = Describe("Tracker", func() {
	var (
		m *mesh.Mesh
		c *field.Field
	)

	BeforeEach(func() {
		var err error
		m, err = mesh.Square2D(2, 1)
		Expect(err).NotTo(HaveOccurred())
		c = field.New("c1", m, 0)
	})

	// recordRange stores c = step at t = step*dt for steps in [from, to).
	recordRange := func(tr delay.Tracker, from, to int, dt float64) {
		for step := from; step < to; step++ {
			for i := range c.Values() {
				c.Values()[i] = float64(step)
			}
			Expect(tr.Record(float64(step)*dt, c, step)).To(Succeed())
		}
	}
	record := func(tr delay.Tracker, steps int, dt float64) { recordRange(tr, 0, steps, dt) }

	backings := []struct {
		name  string
		build func() delay.Tracker
	}{
		{delay.BackingMemory, func() delay.Tracker {
			tr, err := delay.New(delay.BackingMemory, 0.25, 64, m.NumCells(), "")
			Expect(err).NotTo(HaveOccurred())
			return tr
		}},
		{delay.BackingDisk, func() delay.Tracker {
			dir, err := os.MkdirTemp("", "delay")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)
			tr, err := delay.New(delay.BackingDisk, 0.25, 0, m.NumCells(), filepath.Join(dir, "delay.bin"))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(tr.(*delay.Disk).Close)
			return tr
		}},
	}

	for _, b := range backings {
		build := b.build
		Context("with "+b.name+" backing", func() {
			It("reports unavailable before anything is recorded", func() {
				_, err := build().Delayed(1, 0)
				Expect(err).To(MatchError(dynamo.ErrDelayUnavailable))
			})

			It("returns the first snapshot during run-up", func() {
				tr := build()
				record(tr, 3, 0.1)
				got, err := tr.Delayed(0.2, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(0.0))
			})

			It("returns the snapshot nearest to t - tau", func() {
				tr := build()
				record(tr, 20, 0.1)
				// 1.27 - 0.25 = 1.02, nearest recorded time is 1.0
				got, err := tr.Delayed(1.27, 19)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(10.0))

				got, err = tr.Delayed(1.66, 19)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(14.0))
			})

			It("starts from the first recorded step when steps are numbered from 1", func() {
				tr := build()
				recordRange(tr, 1, 4, 0.1)

				got, err := tr.Delayed(0.2, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(1.0))

				// 0.28 - 0.25 = 0.03, nearest recorded time is 0.1
				got, err = tr.Delayed(0.28, 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(1.0))
			})

			It("copies on record", func() {
				tr := build()
				record(tr, 1, 0.1)
				c.Values()[0] = 99
				got, err := tr.Delayed(0, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(got[0]).To(Equal(0.0))
			})

			It("drops later history when a step is recorded again", func() {
				tr := build()
				record(tr, 20, 0.1)
				for i := range c.Values() {
					c.Values()[i] = 99
				}
				Expect(tr.Record(1.5, c, 15)).To(Succeed())

				got, err := tr.Delayed(1.75, 15)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(99.0))

				got, err = tr.Delayed(2.15, 15)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveEach(99.0))
			})
		})
	}

	Describe("memory backing", func() {
		It("advances head past released entries", func() {
			tr, err := delay.NewMemory(0.25, 64, m.NumCells())
			Expect(err).NotTo(HaveOccurred())
			record(tr, 20, 0.1)

			_, err = tr.Delayed(1.27, 19)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Head()).To(Equal(10))
			Expect(tr.Record(0.5, c, 5)).To(MatchError(dynamo.ErrPrecondition))
		})

		It("fails when the window outgrows capacity", func() {
			tr, err := delay.NewMemory(0.25, 4, m.NumCells())
			Expect(err).NotTo(HaveOccurred())
			record(tr, 4, 0.1)
			Expect(tr.Record(0.4, c, 4)).To(MatchError(delay.ErrBufferFull))

			_, err = tr.Delayed(0.45, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Head()).To(Equal(2))
			Expect(tr.Record(0.4, c, 4)).To(Succeed())
		})

		It("holds the run-up snapshot when tau spans the whole history", func() {
			tr, err := delay.NewMemory(1.0, 8, m.NumCells())
			Expect(err).NotTo(HaveOccurred())
			recordRange(tr, 1, 4, 0.1)

			got, err := tr.Delayed(0.3, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveEach(1.0))
			Expect(tr.Head()).To(Equal(1))
		})

		It("grows the ring while keeping the window", func() {
			tr, err := delay.NewMemory(0.25, 1000, m.NumCells())
			Expect(err).NotTo(HaveOccurred())
			record(tr, 200, 0.1)

			got, err := tr.Delayed(0.35, 199)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveEach(1.0))

			got, err = tr.Delayed(19.95, 199)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveEach(197.0))
		})

		It("rejects snapshots of the wrong size", func() {
			tr, _ := delay.NewMemory(1, 4, m.NumCells()+1)
			Expect(tr.Record(0, c, 0)).To(MatchError(dynamo.ErrDimensionMismatch))
		})
	})

	It("rejects bad construction", func() {
		_, err := delay.New(delay.BackingMemory, 0, 8, 4, "")
		Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		_, err = delay.New("tape", 1, 8, 4, "")
		Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
	})
})
