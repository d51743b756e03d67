// Package heatflow builds the implicit-Euler propagator of the advected
// diffusion operator: one step operator per sub-interval of the time span,
// composed so that the latest interval's step acts first. Getting that
// order wrong still yields a well-formed operator, just the wrong one, so
// the composition order is pinned down by tests.
package heatflow

import (
	"golang.org/x/sync/errgroup"

	"github.com/coherentstructures/lcs/grid"
	"github.com/coherentstructures/lcs/numerr"
	"github.com/coherentstructures/lcs/ode"
	"github.com/coherentstructures/lcs/tensor"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Solver selects how each step's linear system is solved.
type Solver uint8

const (
	// Direct factorizes each step matrix once with a cached Cholesky.
	Direct Solver = iota
	// ConjugateGradient solves iteratively, for systems too large or too
	// ill-conditioned to factorize.
	ConjugateGradient
)

// DefaultDelta is the stencil offset used by the composer when the caller
// passes delta <= 0. It is larger than flow.DefaultDelta because the
// composed operator differentiates through a full integration, not a
// single evaluation.
const DefaultDelta = 1e-6

// Config collects the composer parameters.
type Config struct {
	// Kappa is the diffusivity, >= 0.
	Kappa float64
	// Delta is the stencil offset used to recover deformation tensors
	// from the trajectory; <= 0 selects DefaultDelta.
	Delta float64
	// Solver picks the per-step linear solver.
	Solver Solver
	// CGTol and CGMaxIter bound the iterative path. Zero values default
	// to 1e-10 and 10*N.
	CGTol     float64
	CGMaxIter int
	// Workers caps the parallel per-interval assembly; 0 means one
	// goroutine per interval.
	Workers int
}

// StepOperator applies one implicit-Euler sub-interval:
//
//	v -> (M + scale*K_t)^-1 M v,  scale = -dt*kappa
//
// with the system matrix factorized or kept for iterative solves.
type StepOperator struct {
	n    int
	mass *sparse.CSR

	chol *mat.Cholesky // Direct

	sys       *sparse.CSR // ConjugateGradient
	cgTol     float64
	cgMaxIter int
}

// NewImplicitEulerStep builds the step operator for one interval from the
// time-invariant mass matrix and the interval's stiffness matrix. The
// system matrix M + (-dt*kappa)*K is formed as a copy; both inputs stay
// untouched.
func NewImplicitEulerStep(mass, stiffness *sparse.CSR, dt, kappa float64, cfg Config) (*StepOperator, error) {
	if dt <= 0 {
		return nil, numerr.Configurationf("heatflow: step size %g, want > 0", dt)
	}
	if kappa < 0 {
		return nil, numerr.Configurationf("heatflow: diffusivity %g, want >= 0", kappa)
	}
	n, _ := mass.Dims()
	sys, err := combine(mass, stiffness, -dt*kappa)
	if err != nil {
		return nil, err
	}

	s := &StepOperator{n: n, mass: mass}
	switch cfg.Solver {
	case Direct:
		sym, err := toSym(sys)
		if err != nil {
			return nil, err
		}
		s.chol = &mat.Cholesky{}
		if ok := s.chol.Factorize(sym); !ok {
			return nil, numerr.Numericalf("heatflow: step system is not positive definite")
		}
	case ConjugateGradient:
		s.sys = sys
		s.cgTol = cfg.CGTol
		if s.cgTol <= 0 {
			s.cgTol = 1e-10
		}
		s.cgMaxIter = cfg.CGMaxIter
		if s.cgMaxIter <= 0 {
			s.cgMaxIter = 10 * n
		}
	default:
		return nil, numerr.Configurationf("heatflow: unknown solver %d", cfg.Solver)
	}
	return s, nil
}

// N returns the operator size.
func (s *StepOperator) N() int { return s.n }

// Apply computes dst = step(v). dst and v must both have length N and may
// not alias.
func (s *StepOperator) Apply(dst, v []float64) error {
	if len(dst) != s.n || len(v) != s.n {
		return numerr.Dimensionf("heatflow: apply with len(dst)=%d len(v)=%d, operator size %d", len(dst), len(v), s.n)
	}
	b := make([]float64, s.n)
	mulVec(s.mass, b, v)

	if s.chol != nil {
		var x mat.VecDense
		if err := s.chol.SolveVecTo(&x, mat.NewVecDense(s.n, b)); err != nil {
			return numerr.Numericalf("heatflow: cholesky solve failed: %v", err)
		}
		copy(dst, x.RawVector().Data)
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return solveCG(s.sys, dst, b, s.cgTol, s.cgMaxIter)
}

// Composed is the heat-flow operator over the whole time span, kept as a
// lazy chain of step operators. Steps are stored in chronological order;
// Apply runs them latest-first, so the earliest interval acts last.
type Composed struct {
	n     int
	steps []*StepOperator
}

// NewComposed chains step operators given in chronological order.
func NewComposed(steps []*StepOperator) (*Composed, error) {
	if len(steps) == 0 {
		return nil, numerr.Configurationf("heatflow: composition over zero steps")
	}
	n := steps[0].N()
	for j, s := range steps {
		if s.N() != n {
			return nil, numerr.Dimensionf("heatflow: step %d has size %d, step 0 has %d", j, s.N(), n)
		}
	}
	return &Composed{n: n, steps: steps}, nil
}

// N returns the operator size.
func (c *Composed) N() int { return c.n }

// Steps returns the number of composed sub-intervals.
func (c *Composed) Steps() int { return len(c.steps) }

// Apply computes dst = P(v), applying the last interval's step operator
// first and the first interval's last.
func (c *Composed) Apply(dst, v []float64) error {
	if len(dst) != c.n || len(v) != c.n {
		return numerr.Dimensionf("heatflow: apply with len(dst)=%d len(v)=%d, operator size %d", len(dst), len(v), c.n)
	}
	cur := make([]float64, c.n)
	copy(cur, v)
	next := make([]float64, c.n)
	for j := len(c.steps) - 1; j >= 0; j-- {
		if err := c.steps[j].Apply(next, cur); err != nil {
			return err
		}
		cur, next = next, cur
	}
	copy(dst, cur)
	return nil
}

// Dense materializes the composed operator as an explicit N x N matrix by
// applying the chain to every basis vector. Intended for moderate N; large
// systems should stay with Apply.
func (c *Composed) Dense() (*mat.Dense, error) {
	out := mat.NewDense(c.n, c.n, nil)
	e := make([]float64, c.n)
	col := make([]float64, c.n)
	for j := 0; j < c.n; j++ {
		for i := range e {
			e[i] = 0
		}
		e[j] = 1
		if err := c.Apply(col, e); err != nil {
			return nil, err
		}
		for i := 0; i < c.n; i++ {
			out.Set(i, j, col[i])
		}
	}
	return out, nil
}

// Compose assembles the full heat-flow operator for tspan. The mass matrix
// is assembled once; each sub-interval's stiffness is assembled from the
// deformation tensors at the interval's start time, in parallel across
// intervals, then reduced in the documented order. An interval start < 0
// is the static-configuration sentinel and assembles the isotropic
// stiffness instead of querying the trajectory.
func Compose(ctx grid.Context, asm grid.Assembler, traj *ode.Trajectory, tspan []float64, b grid.Boundary, cfg Config) (*Composed, error) {
	if len(tspan) < 2 {
		return nil, numerr.Configurationf("heatflow: time span needs at least 2 points, got %d", len(tspan))
	}
	for i := 1; i < len(tspan); i++ {
		if tspan[i] <= tspan[i-1] {
			return nil, numerr.Configurationf("heatflow: time span must be strictly increasing at index %d", i)
		}
	}
	if cfg.Kappa < 0 {
		return nil, numerr.Configurationf("heatflow: diffusivity %g, want >= 0", cfg.Kappa)
	}
	delta := cfg.Delta
	if delta <= 0 {
		delta = DefaultDelta
	}

	mass, err := asm.AssembleMass(ctx, b)
	if err != nil {
		return nil, err
	}
	n, _ := mass.Dims()
	if n != ctx.DOF() {
		return nil, numerr.Dimensionf("heatflow: mass matrix size %d, grid DOF %d", n, ctx.DOF())
	}

	// Per-interval stiffness assembly is independent; results are
	// collected by index and only the reduction below is ordered.
	nSteps := len(tspan) - 1
	stiffs := make([]*sparse.CSR, nSteps)
	var g errgroup.Group
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for j := 0; j < nSteps; j++ {
		j := j
		g.Go(func() error {
			t := tspan[j]
			var tensors grid.TensorAt
			if t >= 0 {
				ts, err := tensor.At(traj, t, delta)
				if err != nil {
					return err
				}
				if len(ts) != len(ctx.QuadraturePoints()) {
					return numerr.Dimensionf("heatflow: %d tensors for %d quadrature points", len(ts), len(ctx.QuadraturePoints()))
				}
				tensors = func(q int) *mat.SymDense { return ts[q] }
			}
			k, err := asm.AssembleStiffness(ctx, tensors, b)
			if err != nil {
				return err
			}
			stiffs[j] = k
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	steps := make([]*StepOperator, nSteps)
	for j := 0; j < nSteps; j++ {
		dt := tspan[j+1] - tspan[j]
		steps[j], err = NewImplicitEulerStep(mass, stiffs[j], dt, cfg.Kappa, cfg)
		if err != nil {
			return nil, err
		}
	}
	return &Composed{n: n, steps: steps}, nil
}
