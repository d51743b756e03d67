// Package diffmap builds sparse kernel-affinity Markov operators from
// point-cloud data: epsilon-thresholded neighborhoods through a spatial
// index, alpha-normalization, then row-stochastic normalization. A
// time-blocked variant builds one operator per snapshot and reduces them
// in reverse chronological order, matching the heat-flow composer.
package diffmap

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/coherentstructures/lcs/numerr"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DefaultAlpha is the normalization exponent set by DefaultOptions.
const DefaultAlpha = 0.5

// ReduceFunc folds the per-timestep operators (in chronological order)
// into one. The default multiplies them with the latest block's operator
// as the rightmost factor, so it acts first.
type ReduceFunc func(ops []*sparse.CSR) (*sparse.CSR, error)

// Options configures a diffusion-map build. The zero value of Kernel and
// Metric select Gaussian and Euclidean; Alpha is taken literally (0
// disables alpha-normalization), use DefaultOptions for the conventional
// 0.5.
type Options struct {
	// Epsilon is the sparsification radius, > 0. Pairs farther apart
	// contribute implicit zeros.
	Epsilon float64

	// Kernel weights each in-range distance; nil means Gaussian.
	Kernel Kernel

	// Metric measures pairwise distance; nil means Euclidean. Euclidean
	// queries run on a kd-tree, other metrics on a ball tree.
	Metric Metric

	// Alpha is the density-normalization exponent.
	Alpha float64

	// Dim, if > 0, interprets the data rows as stacked Dim-dimensional
	// blocks, one per time snapshot.
	Dim int

	// Reduce folds per-snapshot operators; nil means the reverse
	// chronological product.
	Reduce ReduceFunc

	// Workers caps the parallel per-snapshot builds; 0 means one
	// goroutine per snapshot.
	Workers int
}

// DefaultOptions returns Options with the conventional defaults for the
// given sparsification radius.
func DefaultOptions(eps float64) Options {
	return Options{
		Epsilon: eps,
		Kernel:  Gaussian,
		Metric:  Euclidean{},
		Alpha:   DefaultAlpha,
	}
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Kernel == nil {
		out.Kernel = Gaussian
	}
	if out.Metric == nil {
		out.Metric = Euclidean{}
	}
	if out.Reduce == nil {
		out.Reduce = reverseProduct
	}
	return out
}

// rangeSearcher is the common surface of the two spatial indexes.
type rangeSearcher interface {
	InRange(q []float64, eps float64) (ids []int, dists []float64)
}

// Build constructs the normalized Markov operator from data whose columns
// are points and whose rows are coordinates. With Options.Dim > 0 and
// several stacked blocks, one operator is built per block and the set is
// reduced with Options.Reduce.
func Build(data *mat.Dense, opts Options) (*sparse.CSR, error) {
	o := opts.withDefaults()
	if o.Epsilon <= 0 {
		return nil, numerr.Configurationf("diffmap: epsilon %g, want > 0", o.Epsilon)
	}
	if err := validateMetric(o.Metric); err != nil {
		return nil, err
	}

	rows, cols := data.Dims()
	if cols == 0 {
		return nil, numerr.Dimensionf("diffmap: no data points")
	}
	if o.Dim <= 0 || o.Dim == rows {
		return buildBlock(data, 0, rows, o)
	}
	if rows%o.Dim != 0 {
		return nil, numerr.Dimensionf("diffmap: %d rows do not split into blocks of %d", rows, o.Dim)
	}

	// One operator per time block, built independently, reduced in order.
	q := rows / o.Dim
	ops := make([]*sparse.CSR, q)
	var g errgroup.Group
	if o.Workers > 0 {
		g.SetLimit(o.Workers)
	}
	for b := 0; b < q; b++ {
		b := b
		g.Go(func() error {
			op, err := buildBlock(data, b*o.Dim, o.Dim, o)
			if err != nil {
				return err
			}
			ops[b] = op
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return o.Reduce(ops)
}

// buildBlock builds the operator for one coordinate block.
func buildBlock(data *mat.Dense, rowOff, dim int, o Options) (*sparse.CSR, error) {
	_, n := data.Dims()
	vecs := make([][]float64, n)
	for j := 0; j < n; j++ {
		v := make([]float64, dim)
		for d := 0; d < dim; d++ {
			v[d] = data.At(rowOff+d, j)
		}
		vecs[j] = v
	}

	var index rangeSearcher
	if _, ok := o.Metric.(Euclidean); ok {
		index = newEuclideanNeighbors(vecs)
	} else {
		index = newBallTree(vecs, o.Metric)
	}

	var rows, cols []int
	var vals []float64
	offDiag := false
	for i := 0; i < n; i++ {
		ids, dists := index.InRange(vecs[i], o.Epsilon)
		for k, j := range ids {
			rows = append(rows, i)
			cols = append(cols, j)
			vals = append(vals, o.Kernel(dists[k]))
			if i != j {
				offDiag = true
			}
		}
	}
	if !offDiag {
		return nil, numerr.Configurationf("diffmap: no point has a neighbor within epsilon %g besides itself", o.Epsilon)
	}

	if err := normalize(n, rows, cols, vals, o.Alpha); err != nil {
		return nil, err
	}
	return sparse.NewCOO(n, n, rows, cols, vals).ToCSR(), nil
}

// normalize applies, in place and in this order: alpha-normalization with
// both factors taken from the pre-normalization row sums, then
// row-stochastic normalization with freshly recomputed row sums.
func normalize(n int, rows, cols []int, vals []float64, alpha float64) error {
	if alpha != 0 {
		pre := make([]float64, n)
		for k, i := range rows {
			pre[i] += vals[k]
		}
		for k := range vals {
			qi := math.Pow(pre[rows[k]], alpha)
			qj := math.Pow(pre[cols[k]], alpha)
			if qi == 0 || qj == 0 {
				return numerr.Numericalf("diffmap: zero row sum at point %d during alpha-normalization", rows[k])
			}
			vals[k] /= qi * qj
		}
	}

	post := make([]float64, n)
	for k, i := range rows {
		post[i] += vals[k]
	}
	for k, i := range rows {
		if post[i] == 0 {
			return numerr.Numericalf("diffmap: zero row sum at point %d during Markov normalization", i)
		}
		vals[k] /= post[i]
	}
	return nil
}

// reverseProduct multiplies the chronological operator list with the
// latest operator rightmost, so applying the product runs the newest
// snapshot first and the oldest last.
func reverseProduct(ops []*sparse.CSR) (*sparse.CSR, error) {
	if len(ops) == 0 {
		return nil, numerr.Configurationf("diffmap: reduction over zero operators")
	}
	acc := ops[len(ops)-1]
	for j := len(ops) - 2; j >= 0; j-- {
		prod := &sparse.CSR{}
		prod.Mul(ops[j], acc)
		acc = prod
	}
	return acc, nil
}
