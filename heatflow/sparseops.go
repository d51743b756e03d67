package heatflow

import (
	"github.com/coherentstructures/lcs/numerr"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// mulVec computes dst = a*x for a sparse matrix, accumulating over the
// stored non-zeros only.
func mulVec(a *sparse.CSR, dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	a.DoNonZero(func(i, j int, v float64) {
		dst[i] += v * x[j]
	})
}

// combine returns scale*k + m as a new CSR, leaving both inputs intact.
func combine(m, k *sparse.CSR, scale float64) (*sparse.CSR, error) {
	mr, mc := m.Dims()
	kr, kc := k.Dims()
	if mr != kr || mc != kc {
		return nil, numerr.Dimensionf("heatflow: mass %dx%d, stiffness %dx%d", mr, mc, kr, kc)
	}
	type coord struct{ i, j int }
	acc := make(map[coord]float64)
	k.DoNonZero(func(i, j int, v float64) {
		acc[coord{i, j}] += scale * v
	})
	m.DoNonZero(func(i, j int, v float64) {
		acc[coord{i, j}] += v
	})
	dok := sparse.NewDOK(mr, mc)
	for c, v := range acc {
		dok.Set(c.i, c.j, v)
	}
	return dok.ToCSR(), nil
}

// toSym densifies a structurally symmetric sparse matrix for
// factorization. Only the upper triangle is read by the Cholesky, so
// round-off asymmetry in the lower triangle is harmless.
func toSym(a *sparse.CSR) (*mat.SymDense, error) {
	r, c := a.Dims()
	if r != c {
		return nil, numerr.Dimensionf("heatflow: operator is %dx%d, want square", r, c)
	}
	s := mat.NewSymDense(r, nil)
	a.DoNonZero(func(i, j int, v float64) {
		if j >= i {
			s.SetSym(i, j, v)
		}
	})
	return s, nil
}
