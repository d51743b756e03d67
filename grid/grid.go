// Package grid declares the discretization collaborators the numerical
// pipeline calls into. Mesh construction and basis-function assembly live
// behind these interfaces; the pipeline only consumes quadrature points and
// assembled operators.
package grid

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Context describes one spatial discretization. It is immutable during a
// pipeline run and owned by the caller.
type Context interface {
	// QuadraturePoints returns the ordered quadrature point coordinates,
	// one []float64 of length Dim per point.
	QuadraturePoints() [][]float64

	// Dim returns the spatial dimension. Only 2 is supported by the
	// Lagrangian branch.
	Dim() int

	// DOF returns the number of degrees of freedom after boundary
	// reduction. Assembled operators are DOF x DOF.
	DOF() int
}

// Boundary specifies the boundary condition applied during assembly. A nil
// Boundary means homogeneous Neumann: no constraint rows are removed.
type Boundary interface {
	// ConstrainedNodes returns the node indices removed by the reduction.
	ConstrainedNodes() []int
}

// TensorAt returns the anisotropic diffusion tensor at quadrature point q.
// A nil TensorAt requests the plain isotropic stiffness form.
type TensorAt func(q int) *mat.SymDense

// Assembler builds the discrete bilinear forms over a Context.
type Assembler interface {
	// AssembleMass builds the boundary-adjusted mass matrix.
	AssembleMass(ctx Context, b Boundary) (*sparse.CSR, error)

	// AssembleStiffness builds the stiffness matrix for the bilinear form
	// with per-quadrature-point diffusivity tensors. tensors == nil
	// yields the isotropic form.
	AssembleStiffness(ctx Context, tensors TensorAt, b Boundary) (*sparse.CSR, error)
}
