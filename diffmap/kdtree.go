package diffmap

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexedPoint is a kd-tree comparable carrying its column index, so range
// query results can be mapped back to matrix coordinates. Distance is the
// squared Euclidean distance, per the kdtree package convention.
type indexedPoint struct {
	id  int
	vec []float64
}

func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return p.vec[d] - q.vec[d]
}

func (p indexedPoint) Dims() int { return len(p.vec) }

func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	var sum float64
	for i, v := range p.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

// indexedPoints implements kdtree.Interface, mirroring kdtree.Points.
type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable        { return p[i] }
func (p indexedPoints) Len() int                             { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return plane{Dim: d, points: p}.Pivot()
}

type plane struct {
	kdtree.Dim
	points indexedPoints
}

func (p plane) Len() int { return len(p.points) }
func (p plane) Less(i, j int) bool {
	return p.points[i].vec[p.Dim] < p.points[j].vec[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// euclideanNeighbors answers radius queries through a kd-tree.
type euclideanNeighbors struct {
	tree *kdtree.Tree
}

func newEuclideanNeighbors(vecs [][]float64) *euclideanNeighbors {
	pts := make(indexedPoints, len(vecs))
	for i, v := range vecs {
		pts[i] = indexedPoint{id: i, vec: v}
	}
	return &euclideanNeighbors{tree: kdtree.New(pts, false)}
}

// InRange returns the indices and distances of all points within eps of
// the query point, the query point itself included.
func (e *euclideanNeighbors) InRange(q []float64, eps float64) (ids []int, dists []float64) {
	keep := kdtree.NewDistKeeper(eps * eps)
	e.tree.NearestSet(keep, indexedPoint{id: -1, vec: q})
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		p := c.Comparable.(indexedPoint)
		ids = append(ids, p.id)
		if c.Dist > 0 {
			dists = append(dists, math.Sqrt(c.Dist))
		} else {
			dists = append(dists, 0)
		}
	}
	return ids, dists
}
