package heatflow

import (
	"math"

	"github.com/coherentstructures/lcs/numerr"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
)

// solveCG solves a*x = b by conjugate gradients, writing the solution into
// x (which also supplies the initial guess). Non-convergence within
// maxIter is a numerical failure, never silently accepted.
func solveCG(a *sparse.CSR, x, b []float64, tol float64, maxIter int) error {
	n := len(b)
	r := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	mulVec(a, r, x)
	for i := 0; i < n; i++ {
		r[i] = b[i] - r[i]
	}
	copy(p, r)

	bNorm := floats.Norm(b, 2)
	if bNorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return nil
	}

	rsOld := floats.Dot(r, r)
	for iter := 0; iter < maxIter; iter++ {
		if math.Sqrt(rsOld)/bNorm <= tol {
			return nil
		}
		mulVec(a, ap, p)
		pap := floats.Dot(p, ap)
		if pap <= 0 {
			return numerr.Numericalf("heatflow: CG direction with p^T A p = %g, system not positive definite", pap)
		}
		alpha := rsOld / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		rsNew := floats.Dot(r, r)
		beta := rsNew / rsOld
		for i := 0; i < n; i++ {
			p[i] = r[i] + beta*p[i]
		}
		rsOld = rsNew
	}
	if math.Sqrt(rsOld)/bNorm <= tol {
		return nil
	}
	return numerr.Numericalf("heatflow: CG did not converge in %d iterations, residual %g", maxIter, math.Sqrt(rsOld)/bNorm)
}
