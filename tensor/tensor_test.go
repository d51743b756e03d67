package tensor

import (
	"math"
	"testing"

	"github.com/coherentstructures/lcs/flow"
	"github.com/coherentstructures/lcs/numerr"
	"github.com/coherentstructures/lcs/ode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDott(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	s := Dott(m)
	// m m^T = [[5, 11], [11, 25]]
	assert.Equal(t, 5.0, s.At(0, 0))
	assert.Equal(t, 11.0, s.At(0, 1))
	assert.Equal(t, 11.0, s.At(1, 0))
	assert.Equal(t, 25.0, s.At(1, 1))
}

// applyLinear builds the stencil state a linear map F produces from the
// reference stencil of a single point.
func applyLinear(f *mat.Dense, p []float64, d float64) []float64 {
	ref := [][]float64{
		{p[0] + d, p[1]},
		{p[0] - d, p[1]},
		{p[0], p[1] + d},
		{p[0], p[1] - d},
	}
	var state []float64
	for _, r := range ref {
		state = append(state,
			f.At(0, 0)*r[0]+f.At(0, 1)*r[1],
			f.At(1, 0)*r[0]+f.At(1, 1)*r[1],
		)
	}
	return state
}

func TestFromStencilLinearMap(t *testing.T) {
	// For a linear flow map F the centered difference recovers F exactly,
	// so the tensor is inv(F) inv(F)^T to rounding.
	f := mat.NewDense(2, 2, []float64{2, 1, 0, 3})
	state := applyLinear(f, []float64{0.4, -1.2}, 1e-6)

	ts, err := FromStencil(state, 1e-6)
	require.NoError(t, err)
	require.Len(t, ts, 1)

	var inv mat.Dense
	require.NoError(t, inv.Inverse(f))
	want := Dott(&inv)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, want.At(i, j), ts[0].At(i, j), 1e-9)
		}
	}
}

func TestAtShearFlowConvergence(t *testing.T) {
	// Velocity v = (y, 0) has flow map [[1, t], [0, 1]] with constant
	// Jacobian J; the computed tensor must converge to inv(J) inv(J)^T
	// as delta shrinks.
	shear := func(_ float64, x, v []float64) {
		v[0], v[1] = x[1], 0
	}
	tEnd := 1.0
	j := mat.NewDense(2, 2, []float64{1, tEnd, 0, 1})
	var inv mat.Dense
	require.NoError(t, inv.Inverse(j))
	want := Dott(&inv)

	prevErr := math.Inf(1)
	for _, d := range []float64{1e-2, 1e-4, 1e-6} {
		traj, err := flow.Advect(shear, [][]float64{{0.3, 0.7}}, d, []float64{0, tEnd}, ode.Config{RelTol: 1e-10, AbsTol: 1e-12})
		require.NoError(t, err)

		ts, err := At(traj, tEnd, d)
		require.NoError(t, err)

		var worst float64
		for i := 0; i < 2; i++ {
			for jj := 0; jj < 2; jj++ {
				worst = math.Max(worst, math.Abs(ts[0].At(i, jj)-want.At(i, jj)))
			}
		}
		assert.LessOrEqual(t, worst, math.Max(prevErr, 1e-4), "delta=%g", d)
		prevErr = worst
	}
}

func TestFromStencilDegenerateGradient(t *testing.T) {
	// All four stencil points collapsed to one spot: zero gradient.
	state := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	_, err := FromStencil(state, 1e-6)
	assert.ErrorIs(t, err, numerr.ErrNumericalFailure)
}

func TestFromStencilBadLength(t *testing.T) {
	_, err := FromStencil(make([]float64, 7), 1e-6)
	assert.ErrorIs(t, err, numerr.ErrDimensionMismatch)
}
