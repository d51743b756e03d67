package diffmap

import (
	"math"

	"github.com/coherentstructures/lcs/numerr"
	"gonum.org/v1/gonum/floats"
)

// Metric measures the distance between two points of equal dimension.
// Implementations used with tree sparsification must satisfy the triangle
// inequality; generalized p-norms with p < 1 do not and are rejected at
// entry.
type Metric interface {
	Distance(a, b []float64) float64
}

// Euclidean is the default metric. It is recognized by the builder and
// dispatched to the kd-tree index.
type Euclidean struct{}

// Distance returns the 2-norm of a-b.
func (Euclidean) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Minkowski is the p-norm family. P must be >= 1 for tree sparsification
// to be valid.
type Minkowski struct {
	P float64
}

// Distance returns the p-norm of a-b.
func (m Minkowski) Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), m.P)
	}
	return math.Pow(sum, 1/m.P)
}

// validateMetric rejects metrics for which spatial-tree range queries are
// unsound.
func validateMetric(m Metric) error {
	if mk, ok := m.(Minkowski); ok && mk.P < 1 {
		return numerr.Configurationf("diffmap: Minkowski exponent %g < 1 breaks the triangle inequality, tree sparsification is invalid", mk.P)
	}
	return nil
}
