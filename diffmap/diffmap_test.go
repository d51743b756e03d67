package diffmap

import (
	"math"
	"sort"
	"testing"

	"github.com/coherentstructures/lcs/numerr"
	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// unitSquare returns the four corners of the unit square as columns.
func unitSquare() *mat.Dense {
	return mat.NewDense(2, 4, []float64{
		0, 1, 0, 1,
		0, 0, 1, 1,
	})
}

func rowSums(op *sparse.CSR) []float64 {
	r, _ := op.Dims()
	sums := make([]float64, r)
	op.DoNonZero(func(i, _ int, v float64) {
		sums[i] += v
	})
	return sums
}

func TestBuildUnitSquareFullyConnected(t *testing.T) {
	// Max pairwise distance is sqrt(2) < 1.5, so every pair is a
	// neighbor and the operator is dense 4x4 with stochastic rows.
	op, err := Build(unitSquare(), DefaultOptions(1.5))
	require.NoError(t, err)

	r, c := op.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 4, c)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Greater(t, op.At(i, j), 0.0, "entry (%d,%d)", i, j)
		}
	}
	for i, s := range rowSums(op) {
		assert.InDelta(t, 1.0, s, 1e-10, "row %d", i)
	}
}

func TestBuildRowStochasticForAnyAlpha(t *testing.T) {
	data := mat.NewDense(2, 6, []float64{
		0, 0.3, 0.9, 1.4, 2.0, 2.2,
		0, 0.1, -0.2, 0.4, 0.1, -0.3,
	})
	for _, alpha := range []float64{0, 0.5, 1} {
		opts := DefaultOptions(1.0)
		opts.Alpha = alpha
		op, err := Build(data, opts)
		require.NoError(t, err)
		for i, s := range rowSums(op) {
			assert.InDelta(t, 1.0, s, 1e-10, "alpha=%g row %d", alpha, i)
		}
	}
}

func TestBuildAllPointsIsolatedIsRejected(t *testing.T) {
	// Every pairwise distance exceeds epsilon: no point has a neighbor
	// besides itself, which is a degenerate configuration.
	data := mat.NewDense(2, 3, []float64{
		0, 10, 20,
		0, 0, 0,
	})
	_, err := Build(data, DefaultOptions(1.0))
	assert.ErrorIs(t, err, numerr.ErrConfiguration)
}

func TestBuildRejectsSubUnitMinkowski(t *testing.T) {
	opts := DefaultOptions(1.5)
	opts.Metric = Minkowski{P: 0.5}
	_, err := Build(unitSquare(), opts)
	assert.ErrorIs(t, err, numerr.ErrConfiguration)
}

func TestBuildRejectsBadEpsilonAndBlocks(t *testing.T) {
	_, err := Build(unitSquare(), Options{Epsilon: 0})
	assert.ErrorIs(t, err, numerr.ErrConfiguration)

	opts := DefaultOptions(1.5)
	opts.Dim = 3 // 2 rows do not split into blocks of 3
	_, err = Build(unitSquare(), opts)
	assert.ErrorIs(t, err, numerr.ErrDimensionMismatch)
}

func TestManhattanMatchesBruteForce(t *testing.T) {
	// The ball-tree path must find exactly the brute-force neighborhoods.
	pts := [][]float64{
		{0, 0}, {0.4, 0.1}, {1.1, 0.2}, {0.2, 0.9}, {2.5, 2.5}, {2.6, 2.4}, {0.8, 0.7},
	}
	eps := 1.0
	m := Minkowski{P: 1}

	vecs := make([][]float64, len(pts))
	copy(vecs, pts)
	tree := newBallTree(vecs, m)
	for i, p := range pts {
		ids, dists := tree.InRange(p, eps)
		sort.Ints(ids)

		var want []int
		for j, q := range pts {
			if m.Distance(p, q) <= eps {
				want = append(want, j)
			}
		}
		assert.Equal(t, want, ids, "point %d", i)
		for _, d := range dists {
			assert.LessOrEqual(t, d, eps)
		}
	}
}

func TestKDTreeMatchesBruteForce(t *testing.T) {
	pts := [][]float64{
		{0, 0}, {0.5, 0}, {0.9, 0.9}, {-0.3, 0.4}, {3, 3}, {2.9, 3.1},
	}
	eps := 1.0
	e := Euclidean{}

	idx := newEuclideanNeighbors(pts)
	for i, p := range pts {
		ids, _ := idx.InRange(p, eps)
		sort.Ints(ids)

		var want []int
		for j, q := range pts {
			if e.Distance(p, q) <= eps {
				want = append(want, j)
			}
		}
		assert.Equal(t, want, ids, "point %d", i)
	}
}

func TestBlockedBuildMatchesExplicitProduct(t *testing.T) {
	// Two stacked 2D snapshots: the blocked build must equal the product
	// of the per-snapshot operators with the later snapshot rightmost.
	snap0 := []float64{
		0, 1, 0.2, 1.1,
		0, 0, 0.9, 0.8,
	}
	snap1 := []float64{
		0.1, 0.9, 0.3, 1.2,
		0.2, 0.1, 1.0, 0.9,
	}
	data := mat.NewDense(4, 4, append(append([]float64{}, snap0...), snap1...))

	opts := DefaultOptions(2.0)
	opts.Dim = 2
	got, err := Build(data, opts)
	require.NoError(t, err)

	single := DefaultOptions(2.0)
	p0, err := Build(mat.NewDense(2, 4, snap0), single)
	require.NoError(t, err)
	p1, err := Build(mat.NewDense(2, 4, snap1), single)
	require.NoError(t, err)

	var want mat.Dense
	want.Mul(p0, p1)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, want.At(i, j), got.At(i, j), 1e-12, "entry (%d,%d)", i, j)
		}
	}
}

func TestBlockedBuildCustomReduce(t *testing.T) {
	data := mat.NewDense(4, 4, []float64{
		0, 1, 0.2, 1.1,
		0, 0, 0.9, 0.8,
		0, 1, 0.2, 1.1,
		0, 0, 0.9, 0.8,
	})
	opts := DefaultOptions(2.0)
	opts.Dim = 2
	opts.Reduce = func(ops []*sparse.CSR) (*sparse.CSR, error) {
		require.Len(t, ops, 2)
		return ops[0], nil
	}
	got, err := Build(data, opts)
	require.NoError(t, err)

	want, err := Build(mat.NewDense(2, 4, []float64{
		0, 1, 0.2, 1.1,
		0, 0, 0.9, 0.8,
	}), DefaultOptions(2.0))
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestGaussianKernel(t *testing.T) {
	assert.Equal(t, 1.0, Gaussian(0))
	assert.InDelta(t, math.Exp(-4), Gaussian(2), 1e-15)
	assert.Equal(t, 1.0, Cutoff(3.7))
}
