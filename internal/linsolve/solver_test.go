package linsolve_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/condensim/internal/linsolve"
)

// tridiag builds the 1D system (2+h) on the diagonal, -1 off diagonal.
func tridiag(n int, h float64) *linsolve.CSR {
	b := linsolve.NewBuilder(n)
	for i := 0; i < n; i++ {
		b.Add(i, i, 2+h)
		if i > 0 {
			b.Add(i, i-1, -1)
		}
		if i < n-1 {
			b.Add(i, i+1, -1)
		}
	}
	return b.Build()
}

var _ = Describe("CSR", func() {
	It("sums repeated entries", func() {
		b := linsolve.NewBuilder(2)
		b.Add(0, 1, 1.5)
		b.Add(0, 1, 0.5)
		b.Add(1, 1, 3)
		m := b.Build()
		Expect(m.At(0, 1)).To(Equal(2.0))
		Expect(m.At(1, 0)).To(Equal(0.0))
		Expect(m.NNZ()).To(Equal(2))
	})

	It("multiplies vectors", func() {
		m := tridiag(3, 0)
		Expect(m.MulVec([]float64{1, 1, 1})).To(Equal([]float64{1, 0, 1}))
	})

	It("forms weighted products", func() {
		m := tridiag(4, 0)
		p, err := linsolve.Product(m, []float64{1, 1, 1, 1}, m)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.At(0, 0)).To(BeNumerically("~", 5, 1e-12))
		Expect(p.At(0, 2)).To(BeNumerically("~", 1, 1e-12))
		Expect(p.IsSymmetric(1e-12)).To(BeTrue())
	})

	It("rejects mismatched products", func() {
		_, err := linsolve.Product(tridiag(3, 0), nil, tridiag(4, 0))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Solvers", func() {
	for _, name := range []string{"cg", "bicgstab", "gmres"} {
		name := name
		It("solves an SPD system with "+name, func() {
			s, err := linsolve.New(name, 1e-12, 500)
			Expect(err).NotTo(HaveOccurred())

			a := tridiag(50, 0.1)
			want := make([]float64, 50)
			for i := range want {
				want[i] = float64(i%7) - 3
			}
			b := a.MulVec(want)
			x := make([]float64, 50)

			st, err := s.Solve(a, b, x)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Iterations).To(BeNumerically(">", 0))
			for i := range x {
				Expect(x[i]).To(BeNumerically("~", want[i], 1e-8))
			}
			Expect(a.Residual(x, b)).To(BeNumerically("<", 1e-8))
		})
	}

	DescribeTable("solves a nonsymmetric system",
		func(s linsolve.Solver) {
			n := 30
			bld := linsolve.NewBuilder(n)
			for i := 0; i < n; i++ {
				bld.Add(i, i, 4)
				if i > 0 {
					bld.Add(i, i-1, -1.5)
				}
				if i < n-1 {
					bld.Add(i, i+1, -0.5)
				}
			}
			a := bld.Build()
			Expect(a.IsSymmetric(1e-12)).To(BeFalse())

			b := make([]float64, n)
			for i := range b {
				b[i] = 1
			}
			x := make([]float64, n)
			st, err := s.Solve(a, b, x)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Residual(x, b)).To(BeNumerically("<", 1e-9))
			Expect(st.Residual).To(BeNumerically("~", a.Residual(x, b), 1e-15))
		},
		Entry("bicgstab", linsolve.NewBiCGSTAB(1e-12, 200)),
		Entry("gmres", linsolve.NewGMRES(1e-12, 200)),
	)

	It("starts from the values already in x", func() {
		a := tridiag(20, 0.5)
		want := make([]float64, 20)
		for i := range want {
			want[i] = 1
		}
		b := a.MulVec(want)
		x := make([]float64, 20)
		copy(x, want)

		st, err := linsolve.NewCG(1e-10, 50).Solve(a, b, x)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Iterations).To(Equal(0))
		Expect(x).To(Equal(want))
	})

	It("rejects a tolerance outside (0, 1)", func() {
		a := tridiag(3, 1)
		_, err := linsolve.NewCG(1, 10).Solve(a, make([]float64, 3), make([]float64, 3))
		Expect(err).To(HaveOccurred())
	})

	It("returns immediately for a zero right-hand side", func() {
		a := tridiag(5, 1)
		x := make([]float64, 5)
		st, err := linsolve.NewCG(1e-10, 10).Solve(a, make([]float64, 5), x)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Iterations).To(Equal(0))
	})

	It("reports the iteration cap", func() {
		a := tridiag(200, 0)
		b := make([]float64, 200)
		b[0] = 1
		x := make([]float64, 200)
		_, err := linsolve.NewCG(1e-14, 2).Solve(a, b, x)
		Expect(err).To(MatchError(linsolve.ErrNotConverged))
	})

	It("rejects unknown solver names", func() {
		_, err := linsolve.New("lu", 1e-8, 10)
		Expect(err).To(HaveOccurred())
	})
})
