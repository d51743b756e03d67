package ode

import (
	"sort"

	"github.com/coherentstructures/lcs/numerr"
)

// Trajectory is the dense output of a single integration: the state and its
// derivative at every accepted step, interpolated in between by a cubic
// Hermite polynomial. A Trajectory is read-only after Solve returns and is
// safe for concurrent queries.
type Trajectory struct {
	n     int
	times []float64
	ys    [][]float64
	dys   [][]float64
}

func newTrajectory(n int) *Trajectory {
	return &Trajectory{n: n}
}

func (tr *Trajectory) append(t float64, y, dy []float64) {
	yc := make([]float64, tr.n)
	copy(yc, y)
	dyc := make([]float64, tr.n)
	copy(dyc, dy)
	tr.times = append(tr.times, t)
	tr.ys = append(tr.ys, yc)
	tr.dys = append(tr.dys, dyc)
}

// Dim returns the state dimension.
func (tr *Trajectory) Dim() int { return tr.n }

// Span returns the solved time range.
func (tr *Trajectory) Span() (t0, t1 float64) {
	return tr.times[0], tr.times[len(tr.times)-1]
}

// At evaluates the trajectory at time t, writing the state into out, which
// must have length Dim. Times outside the solved span are an error.
func (tr *Trajectory) At(t float64, out []float64) error {
	if len(out) != tr.n {
		return numerr.Dimensionf("ode: output length %d, state dimension %d", len(out), tr.n)
	}
	t0, t1 := tr.Span()
	if t < t0 || t > t1 {
		return numerr.Configurationf("ode: time %g outside solved span [%g, %g]", t, t0, t1)
	}

	// Locate the step interval containing t.
	k := sort.SearchFloat64s(tr.times, t)
	if k < len(tr.times) && tr.times[k] == t {
		copy(out, tr.ys[k])
		return nil
	}
	k-- // tr.times[k] < t < tr.times[k+1]

	h := tr.times[k+1] - tr.times[k]
	s := (t - tr.times[k]) / h
	y0, y1 := tr.ys[k], tr.ys[k+1]
	d0, d1 := tr.dys[k], tr.dys[k+1]

	// Cubic Hermite basis.
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	for i := 0; i < tr.n; i++ {
		out[i] = h00*y0[i] + h10*h*d0[i] + h01*y1[i] + h11*h*d1[i]
	}
	return nil
}

// State is a convenience wrapper around At that allocates the output.
func (tr *Trajectory) State(t float64) ([]float64, error) {
	out := make([]float64, tr.n)
	if err := tr.At(t, out); err != nil {
		return nil, err
	}
	return out, nil
}
