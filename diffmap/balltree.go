package diffmap

import "sort"

// ballTree is a vantage-point variant of a ball tree: every node holds one
// data point and a split radius equal to the median distance of its
// subtree to that point. Range queries prune subtrees using the triangle
// inequality only, so any metric satisfying it is usable.
type ballTree struct {
	metric Metric
	vecs   [][]float64
	root   *ballNode
}

type ballNode struct {
	id      int
	radius  float64
	inside  *ballNode
	outside *ballNode
}

func newBallTree(vecs [][]float64, m Metric) *ballTree {
	t := &ballTree{metric: m, vecs: vecs}
	ids := make([]int, len(vecs))
	for i := range ids {
		ids[i] = i
	}
	t.root = t.build(ids)
	return t
}

func (t *ballTree) build(ids []int) *ballNode {
	if len(ids) == 0 {
		return nil
	}
	n := &ballNode{id: ids[0]}
	rest := ids[1:]
	if len(rest) == 0 {
		return n
	}

	v := t.vecs[n.id]
	dists := make([]float64, len(rest))
	for i, id := range rest {
		dists[i] = t.metric.Distance(v, t.vecs[id])
	}
	sort.Sort(&byDist{ids: rest, dists: dists})

	mid := len(rest) / 2
	n.radius = dists[mid]
	n.inside = t.build(rest[:mid+1])
	n.outside = t.build(rest[mid+1:])
	return n
}

type byDist struct {
	ids   []int
	dists []float64
}

func (b *byDist) Len() int           { return len(b.ids) }
func (b *byDist) Less(i, j int) bool { return b.dists[i] < b.dists[j] }
func (b *byDist) Swap(i, j int) {
	b.ids[i], b.ids[j] = b.ids[j], b.ids[i]
	b.dists[i], b.dists[j] = b.dists[j], b.dists[i]
}

// InRange returns the indices and distances of all points within eps of q.
func (t *ballTree) InRange(q []float64, eps float64) (ids []int, dists []float64) {
	var walk func(n *ballNode)
	walk = func(n *ballNode) {
		if n == nil {
			return
		}
		d := t.metric.Distance(q, t.vecs[n.id])
		if d <= eps {
			ids = append(ids, n.id)
			dists = append(dists, d)
		}
		if d-eps <= n.radius {
			walk(n.inside)
		}
		if d+eps >= n.radius {
			walk(n.outside)
		}
	}
	walk(t.root)
	return ids, dists
}
