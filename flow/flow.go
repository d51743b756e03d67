// Package flow advects quadrature points and their finite-difference
// stencils along a velocity field, producing the dense trajectory the
// deformation-tensor computation differentiates.
package flow

import (
	"github.com/coherentstructures/lcs/numerr"
	"github.com/coherentstructures/lcs/ode"
)

// DefaultDelta is the finite-difference stencil offset used when the
// caller passes delta <= 0. It trades truncation error (large delta)
// against floating-point cancellation (small delta).
const DefaultDelta = 1e-9

// StencilSize is the number of stencil points carried per quadrature
// point: one perturbed copy along +x, -x, +y, -y.
const StencilSize = 4

// VelocityField evaluates the flow velocity at one 2D point, writing the
// two velocity components into v. Parameters of the field are expected to
// be captured in the closure.
type VelocityField func(t float64, x, v []float64)

// StencilState builds the flat initial state for N quadrature points: for
// each point, four copies shifted by +delta and -delta along each axis,
// laid out contiguously as
//
//	[x+d, y, x-d, y, x, y+d, x, y-d]
//
// per point, giving a state of length 8N.
func StencilState(points [][]float64, delta float64) ([]float64, error) {
	if delta <= 0 {
		delta = DefaultDelta
	}
	state := make([]float64, 0, len(points)*StencilSize*2)
	for i, p := range points {
		if len(p) != 2 {
			return nil, numerr.Dimensionf("flow: quadrature point %d has %d coordinates, want 2", i, len(p))
		}
		x, y := p[0], p[1]
		state = append(state,
			x+delta, y,
			x-delta, y,
			x, y+delta,
			x, y-delta,
		)
	}
	return state, nil
}

// Advect integrates the stencil state of every quadrature point through
// the velocity field over tspan and returns the queryable trajectory. The
// field acts blockwise: each of the 4N stencil points is an independent 2D
// particle.
func Advect(field VelocityField, points [][]float64, delta float64, tspan []float64, cfg ode.Config) (*ode.Trajectory, error) {
	state, err := StencilState(points, delta)
	if err != nil {
		return nil, err
	}
	return ode.Solve(blockwise(field), state, tspan, cfg)
}

// AdvectPoints integrates raw 2D points (no stencil copies) through the
// field, for callers tracking trajectories rather than deformation.
func AdvectPoints(field VelocityField, points [][]float64, tspan []float64, cfg ode.Config) (*ode.Trajectory, error) {
	state := make([]float64, 0, len(points)*2)
	for i, p := range points {
		if len(p) != 2 {
			return nil, numerr.Dimensionf("flow: point %d has %d coordinates, want 2", i, len(p))
		}
		state = append(state, p[0], p[1])
	}
	return ode.Solve(blockwise(field), state, tspan, cfg)
}

// blockwise lifts a 2D velocity field to a flat state of stacked 2D
// points. The points do not interact.
func blockwise(field VelocityField) ode.Func {
	return func(t float64, y, dydt []float64) {
		for off := 0; off+2 <= len(y); off += 2 {
			field(t, y[off:off+2], dydt[off:off+2])
		}
	}
}
