package flow

import (
	"testing"

	"github.com/coherentstructures/lcs/numerr"
	"github.com/coherentstructures/lcs/ode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStencilStateLayout(t *testing.T) {
	d := 0.25
	state, err := StencilState([][]float64{{1, 2}, {-3, 4}}, d)
	require.NoError(t, err)
	require.Len(t, state, 16)

	assert.Equal(t, []float64{
		1.25, 2, 0.75, 2, 1, 2.25, 1, 1.75,
	}, state[:8])
	assert.Equal(t, []float64{
		-2.75, 4, -3.25, 4, -3, 4.25, -3, 3.75,
	}, state[8:])
}

func TestStencilStateRejectsNon2D(t *testing.T) {
	_, err := StencilState([][]float64{{1, 2, 3}}, 0.1)
	assert.ErrorIs(t, err, numerr.ErrDimensionMismatch)
}

func TestAdvectZeroField(t *testing.T) {
	// With no motion the trajectory must equal the initial stencil state
	// at every queried time.
	zero := func(_ float64, _, v []float64) {
		v[0], v[1] = 0, 0
	}
	points := [][]float64{{0, 0}, {1, 0}, {0.5, 0.5}}
	d := 1e-3

	traj, err := Advect(zero, points, d, []float64{0, 1}, ode.Config{})
	require.NoError(t, err)

	want, err := StencilState(points, d)
	require.NoError(t, err)
	for _, tt := range []float64{0, 0.25, 0.7, 1} {
		got, err := traj.State(tt)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12, "t=%g", tt)
	}
}

func TestAdvectUniformTranslation(t *testing.T) {
	uniform := func(_ float64, _, v []float64) {
		v[0], v[1] = 2, -1
	}
	traj, err := AdvectPoints(uniform, [][]float64{{0, 0}}, []float64{0, 3}, ode.Config{})
	require.NoError(t, err)

	got, err := traj.State(3)
	require.NoError(t, err)
	assert.InDelta(t, 6, got[0], 1e-9)
	assert.InDelta(t, -3, got[1], 1e-9)
}
