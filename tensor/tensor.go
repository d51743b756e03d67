// Package tensor converts advected stencil states into per-quadrature-point
// diffusion tensors. The deformation gradient is a centered finite
// difference of the four stencil positions; its inverse, multiplied by its
// own transpose, is the anisotropic diffusivity entering the stiffness
// bilinear form.
package tensor

import (
	"math"

	"github.com/coherentstructures/lcs/flow"
	"github.com/coherentstructures/lcs/numerr"
	"github.com/coherentstructures/lcs/ode"
	"gonum.org/v1/gonum/mat"
)

// detTol is the determinant magnitude below which a deformation gradient
// is treated as degenerate.
const detTol = 1e-300

// Dott returns m * m^T as a symmetric matrix.
func Dott(m *mat.Dense) *mat.SymDense {
	r, _ := m.Dims()
	var prod mat.Dense
	prod.Mul(m, m.T())
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, prod.At(i, j))
		}
	}
	return s
}

// FromStencil computes one diffusion tensor per quadrature point from a
// flat stencil state (layout per flow.StencilState). delta must match the
// offset the state was built with.
func FromStencil(state []float64, delta float64) ([]*mat.SymDense, error) {
	const block = flow.StencilSize * 2
	if len(state)%block != 0 {
		return nil, numerr.Dimensionf("tensor: state length %d is not a multiple of %d", len(state), block)
	}
	if delta <= 0 {
		delta = flow.DefaultDelta
	}
	n := len(state) / block
	out := make([]*mat.SymDense, n)
	inv2d := 1 / (2 * delta)
	for i := 0; i < n; i++ {
		s := state[i*block : (i+1)*block]
		// Columns of the deformation gradient: centered differences of
		// the +/-x and +/-y stencil pairs.
		df := mat.NewDense(2, 2, []float64{
			(s[0] - s[2]) * inv2d, (s[4] - s[6]) * inv2d,
			(s[1] - s[3]) * inv2d, (s[5] - s[7]) * inv2d,
		})
		det := df.At(0, 0)*df.At(1, 1) - df.At(0, 1)*df.At(1, 0)
		if math.Abs(det) < detTol || math.IsNaN(det) {
			return nil, numerr.Numericalf("tensor: degenerate deformation gradient at point %d, det=%g", i, det)
		}
		invDet := 1 / det
		inv := mat.NewDense(2, 2, []float64{
			df.At(1, 1) * invDet, -df.At(0, 1) * invDet,
			-df.At(1, 0) * invDet, df.At(0, 0) * invDet,
		})
		out[i] = Dott(inv)
	}
	return out, nil
}

// At evaluates the advected stencil trajectory at time t and returns the
// diffusion tensors. Callers treating t < 0 as the static-configuration
// sentinel must skip this call and assemble the isotropic stiffness
// instead; a negative t here is outside the trajectory span and errors.
func At(traj *ode.Trajectory, t, delta float64) ([]*mat.SymDense, error) {
	state, err := traj.State(t)
	if err != nil {
		return nil, err
	}
	return FromStencil(state, delta)
}
