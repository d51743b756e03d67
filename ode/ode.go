// Package ode integrates systems of ordinary differential equations and
// records a dense-output trajectory that can be queried at any time inside
// the solved span. Two methods are provided: an adaptive Dormand-Prince 5(4)
// pair (the default) and a fixed-step classic Runge-Kutta 4.
package ode

import (
	"math"

	"github.com/coherentstructures/lcs/numerr"
)

// Func evaluates the right hand side of y' = f(t, y), writing the
// derivative into dydt. The slices have equal length and dydt must be
// fully overwritten.
type Func func(t float64, y, dydt []float64)

// Method selects the integration scheme.
type Method uint8

const (
	// DormandPrince is the adaptive 5(4) embedded pair.
	DormandPrince Method = iota
	// ClassicRK4 is fixed-step fourth order Runge-Kutta.
	ClassicRK4
)

// Config holds integration parameters. The zero value selects
// Dormand-Prince with default tolerances.
type Config struct {
	Method Method

	// RelTol and AbsTol control the adaptive error estimate. Zero values
	// default to 1e-6 and 1e-9 respectively.
	RelTol float64
	AbsTol float64

	// InitialStep, if > 0, is the first step size attempted. Otherwise a
	// small fraction of the span is used.
	InitialStep float64

	// MinStep, if > 0, aborts integration when the controller would
	// shrink the step below it (excessive stiffness).
	MinStep float64

	// MaxSteps caps the number of accepted steps; 0 means 1 << 20.
	MaxSteps int
}

func (c *Config) withDefaults(span float64) Config {
	out := *c
	if out.RelTol <= 0 {
		out.RelTol = 1e-6
	}
	if out.AbsTol <= 0 {
		out.AbsTol = 1e-9
	}
	if out.InitialStep <= 0 {
		out.InitialStep = span / 100
	}
	if out.MinStep <= 0 {
		out.MinStep = span * 1e-14
	}
	if out.MaxSteps <= 0 {
		out.MaxSteps = 1 << 20
	}
	return out
}

// Solve integrates f from tspan[0] to tspan[len-1] starting at y0 and
// returns the trajectory. tspan must contain at least two strictly
// increasing times; only its endpoints drive the integration, interior
// times are available to callers through Trajectory.At.
func Solve(f Func, y0 []float64, tspan []float64, cfg Config) (*Trajectory, error) {
	if len(tspan) < 2 {
		return nil, numerr.Configurationf("ode: time span needs at least 2 points, got %d", len(tspan))
	}
	for i := 1; i < len(tspan); i++ {
		if tspan[i] <= tspan[i-1] {
			return nil, numerr.Configurationf("ode: time span must be strictly increasing at index %d", i)
		}
	}
	t0, t1 := tspan[0], tspan[len(tspan)-1]
	c := cfg.withDefaults(t1 - t0)

	switch c.Method {
	case DormandPrince:
		return solveDP(f, y0, t0, t1, c)
	case ClassicRK4:
		return solveRK4(f, y0, t0, t1, c)
	default:
		return nil, numerr.Configurationf("ode: unknown method %d", c.Method)
	}
}

// Dormand-Prince 5(4) coefficients.
var (
	dpA2, dpA3, dpA4, dpA5 = 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0

	dpB21 = 1.0 / 5.0
	dpB31, dpB32 = 3.0 / 40.0, 9.0 / 40.0
	dpB41, dpB42, dpB43 = 44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0
	dpB51, dpB52, dpB53, dpB54 = 19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0
	dpB61, dpB62, dpB63, dpB64, dpB65 = 9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0

	dpC1, dpC3, dpC4, dpC5, dpC6 = 35.0 / 384.0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0

	dpD1 = dpC1 - 5179.0/57600.0
	dpD3 = dpC3 - 7571.0/16695.0
	dpD4 = dpC4 - 393.0/640.0
	dpD5 = dpC5 + 92097.0/339200.0
	dpD6 = dpC6 - 187.0/2100.0
	dpD7 = -1.0 / 40.0
)

const (
	dpSafety   = 0.9
	dpMinScale = 0.2
	dpMaxScale = 10.0
)

func solveDP(f Func, y0 []float64, t0, t1 float64, c Config) (*Trajectory, error) {
	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)

	dy := make([]float64, n)
	f(t0, y, dy) // FSAL: k1 of the next step is k7 of the previous

	traj := newTrajectory(n)
	traj.append(t0, y, dy)

	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	k5 := make([]float64, n)
	k6 := make([]float64, n)
	k7 := make([]float64, n)
	stage := make([]float64, n)
	yNew := make([]float64, n)

	t := t0
	dt := math.Min(c.InitialStep, t1-t0)
	for steps := 0; t < t1; steps++ {
		if steps >= c.MaxSteps {
			return nil, numerr.Numericalf("ode: step limit %d reached at t=%g", c.MaxSteps, t)
		}
		if t+dt > t1 {
			dt = t1 - t
		}

		k1 := dy
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*dpB21*k1[i]
		}
		f(t+dpA2*dt, stage, k2)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*(dpB31*k1[i]+dpB32*k2[i])
		}
		f(t+dpA3*dt, stage, k3)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*(dpB41*k1[i]+dpB42*k2[i]+dpB43*k3[i])
		}
		f(t+dpA4*dt, stage, k4)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*(dpB51*k1[i]+dpB52*k2[i]+dpB53*k3[i]+dpB54*k4[i])
		}
		f(t+dpA5*dt, stage, k5)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*(dpB61*k1[i]+dpB62*k2[i]+dpB63*k3[i]+dpB64*k4[i]+dpB65*k5[i])
		}
		f(t+dt, stage, k6)
		for i := 0; i < n; i++ {
			yNew[i] = y[i] + dt*(dpC1*k1[i]+dpC3*k3[i]+dpC4*k4[i]+dpC5*k5[i]+dpC6*k6[i])
		}
		f(t+dt, yNew, k7)

		errMax := 0.0
		for i := 0; i < n; i++ {
			est := dt * (dpD1*k1[i] + dpD3*k3[i] + dpD4*k4[i] + dpD5*k5[i] + dpD6*k6[i] + dpD7*k7[i])
			scale := c.AbsTol + c.RelTol*math.Max(math.Abs(y[i]), math.Abs(yNew[i]))
			errMax = math.Max(errMax, math.Abs(est)/scale)
		}

		if errMax <= 1 {
			t += dt
			copy(y, yNew)
			copy(dy, k7)
			traj.append(t, y, dy)
			if errMax > 0 {
				dt *= math.Min(dpMaxScale, dpSafety*math.Pow(errMax, -0.2))
			} else {
				dt *= dpMaxScale
			}
		} else {
			dt *= math.Max(dpMinScale, dpSafety*math.Pow(errMax, -0.25))
			// Only controller-driven shrinkage signals stiffness; the
			// final landing step may be arbitrarily small.
			if dt < c.MinStep {
				return nil, numerr.Numericalf("ode: step size %g underflowed minimum %g at t=%g", dt, c.MinStep, t)
			}
		}
	}
	return traj, nil
}

func solveRK4(f Func, y0 []float64, t0, t1 float64, c Config) (*Trajectory, error) {
	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)

	dt := c.InitialStep
	nSteps := int(math.Ceil((t1 - t0) / dt))
	if nSteps > c.MaxSteps {
		return nil, numerr.Configurationf("ode: fixed step %g needs %d steps, limit is %d", dt, nSteps, c.MaxSteps)
	}
	dt = (t1 - t0) / float64(nSteps)

	k1 := make([]float64, n)
	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	stage := make([]float64, n)

	traj := newTrajectory(n)
	f(t0, y, k1)
	traj.append(t0, y, k1)

	t := t0
	for s := 0; s < nSteps; s++ {
		f(t, y, k1)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + 0.5*dt*k1[i]
		}
		f(t+0.5*dt, stage, k2)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + 0.5*dt*k2[i]
		}
		f(t+0.5*dt, stage, k3)
		for i := 0; i < n; i++ {
			stage[i] = y[i] + dt*k3[i]
		}
		f(t+dt, stage, k4)
		for i := 0; i < n; i++ {
			y[i] += dt / 6.0 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
		}
		t = t0 + float64(s+1)*dt
		f(t, y, k1)
		traj.append(t, y, k1)
	}
	return traj, nil
}
