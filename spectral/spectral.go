// Package spectral extracts diffusion coordinates from Markov operators:
// the stationary distribution by power iteration, a spectrum-preserving
// symmetrization, the top-k symmetric eigendecomposition, and pairwise
// diffusion distances.
package spectral

import (
	"math"
	"sort"

	"github.com/coherentstructures/lcs/numerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearOperator is a square operator applied through matrix-vector
// products. heatflow.Composed satisfies it directly; FromMatrix adapts
// explicit matrices.
type LinearOperator interface {
	N() int
	Apply(dst, v []float64) error
}

// nonZeroDoer is the sparse iteration surface of james-bowman/sparse
// matrix types.
type nonZeroDoer interface {
	DoNonZero(fn func(i, j int, v float64))
}

type matrixOp struct {
	m mat.Matrix
	n int
}

// FromMatrix wraps a square matrix as a LinearOperator. Sparse matrices
// are applied over their stored non-zeros only.
func FromMatrix(m mat.Matrix) (LinearOperator, error) {
	r, c := m.Dims()
	if r != c {
		return nil, numerr.Dimensionf("spectral: operator is %dx%d, want square", r, c)
	}
	return matrixOp{m: m, n: r}, nil
}

func (o matrixOp) N() int { return o.n }

func (o matrixOp) Apply(dst, v []float64) error {
	if len(dst) != o.n || len(v) != o.n {
		return numerr.Dimensionf("spectral: apply with len(dst)=%d len(v)=%d, operator size %d", len(dst), len(v), o.n)
	}
	for i := range dst {
		dst[i] = 0
	}
	if s, ok := o.m.(nonZeroDoer); ok {
		s.DoNonZero(func(i, j int, val float64) {
			dst[i] += val * v[j]
		})
		return nil
	}
	for i := 0; i < o.n; i++ {
		var sum float64
		for j := 0; j < o.n; j++ {
			sum += o.m.At(i, j) * v[j]
		}
		dst[i] = sum
	}
	return nil
}

// signTol is the magnitude below which an entry of the stationary vector
// is treated as zero for the sign-consistency check.
const signTol = 1e-12

// StationaryDistribution computes the dominant eigenvector of op by power
// iteration and returns it normalized to sum 1. The caller passes the
// operator oriented so that its dominant eigenvector is the stationary
// distribution (the transpose of a row-stochastic transition matrix). A
// dominant eigenvector with entries of both signs is not a distribution
// and fails; an all-negative one is flipped.
func StationaryDistribution(op LinearOperator, maxIter int, tol float64) ([]float64, error) {
	if maxIter <= 0 {
		maxIter = 1000
	}
	if tol <= 0 {
		tol = 1e-13
	}
	n := op.N()
	v := make([]float64, n)
	for i := range v {
		v[i] = 1 / float64(n)
	}
	w := make([]float64, n)

	converged := false
	for iter := 0; iter < maxIter; iter++ {
		if err := op.Apply(w, v); err != nil {
			return nil, err
		}
		norm := floats.Norm(w, 2)
		if norm == 0 {
			return nil, numerr.Numericalf("spectral: power iteration hit the zero vector")
		}
		floats.Scale(1/norm, w)

		var diff float64
		for i := range w {
			diff = math.Max(diff, math.Abs(w[i]-v[i]))
		}
		copy(v, w)
		if diff <= tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, numerr.Numericalf("spectral: power iteration did not converge in %d iterations", maxIter)
	}

	var pos, neg bool
	for _, x := range v {
		if x > signTol {
			pos = true
		} else if x < -signTol {
			neg = true
		}
	}
	if pos && neg {
		return nil, numerr.Numericalf("spectral: stationary vector has entries of both signs, distribution is ill-defined")
	}
	if neg {
		floats.Scale(-1, v)
	}
	sum := floats.Sum(v)
	if sum <= 0 {
		return nil, numerr.Numericalf("spectral: stationary vector sums to %g", sum)
	}
	floats.Scale(1/sum, v)
	return v, nil
}

// Symmetrize builds the symmetric conjugate of the Markov operator p,
//
//	S = diag(sqrt(pi)) P diag(1/pi) P^T diag(sqrt(pi))
//
// which shares P's dominant spectrum and admits a reliable symmetric
// eigendecomposition. Computed as B B^T with B = diag(sqrt(pi)) P
// diag(1/sqrt(pi)), so S is positive semidefinite by construction.
func Symmetrize(p mat.Matrix, pi []float64) (*mat.SymDense, error) {
	r, c := p.Dims()
	if r != c {
		return nil, numerr.Dimensionf("spectral: operator is %dx%d, want square", r, c)
	}
	if len(pi) != r {
		return nil, numerr.Dimensionf("spectral: stationary vector length %d, operator size %d", len(pi), r)
	}
	sq := make([]float64, r)
	for i, x := range pi {
		if x <= 0 {
			return nil, numerr.Numericalf("spectral: stationary entry %d is %g, want > 0", i, x)
		}
		sq[i] = math.Sqrt(x)
	}

	b := mat.NewDense(r, r, nil)
	if nz, ok := p.(nonZeroDoer); ok {
		nz.DoNonZero(func(i, j int, v float64) {
			b.Set(i, j, sq[i]*v/sq[j])
		})
	} else {
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				b.Set(i, j, sq[i]*p.At(i, j)/sq[j])
			}
		}
	}

	var prod mat.Dense
	prod.Mul(b, b.T())
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, prod.At(i, j))
		}
	}
	return s, nil
}

// Embedding is the diffusion-coordinate result: eigenvalues of the
// symmetrized operator in decreasing magnitude, their square-root weights,
// and the N x k coordinate matrix.
type Embedding struct {
	Eigenvalues []float64
	Weights     []float64
	Coords      *mat.Dense
}

// DiffusionCoordinates computes the k dominant eigenpairs of the
// symmetrized operator and scales them into diffusion coordinates: column
// j is the j-th eigenvector times its weight, with row i divided by
// sqrt(pi_i).
func DiffusionCoordinates(p mat.Matrix, pi []float64, k int) (*Embedding, error) {
	n, _ := p.Dims()
	if k <= 0 || k >= n {
		return nil, numerr.Configurationf("spectral: k=%d, want 0 < k < N=%d", k, n)
	}
	s, err := Symmetrize(p, pi)
	if err != nil {
		return nil, err
	}

	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return nil, numerr.Numericalf("spectral: symmetric eigendecomposition did not converge")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(vals[order[a]]) > math.Abs(vals[order[b]])
	})

	emb := &Embedding{
		Eigenvalues: make([]float64, k),
		Weights:     make([]float64, k),
		Coords:      mat.NewDense(n, k, nil),
	}
	for j := 0; j < k; j++ {
		lam := vals[order[j]]
		emb.Eigenvalues[j] = lam
		// S is PSD; clamp the round-off negatives.
		emb.Weights[j] = math.Sqrt(math.Max(lam, 0))
		for i := 0; i < n; i++ {
			emb.Coords.Set(i, j, vecs.At(i, order[j])*emb.Weights[j]/math.Sqrt(pi[i]))
		}
	}
	return emb, nil
}

// DiffusionDistances returns the symmetric matrix of pairwise Euclidean
// distances between coordinate rows.
func DiffusionDistances(emb *Embedding) *mat.SymDense {
	n, _ := emb.Coords.Dims()
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri := emb.Coords.RawRowView(i)
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, floats.Distance(ri, emb.Coords.RawRowView(j), 2))
		}
	}
	return d
}
