// Package numerr defines the error taxonomy shared by the numerical
// pipeline packages. All failures are unrecoverable at the point of
// detection: callers may retry with adjusted parameters, but no package
// performs automatic retry or returns partial results.
package numerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid parameter combinations detected at
	// entry, such as a sub-unit Minkowski exponent with tree-based
	// sparsification or requesting k >= N eigenpairs.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNumericalFailure marks failures of the numerics themselves:
	// non-invertible deformation gradients, indefinite factorizations,
	// iterative solver or eigen-solver non-convergence, and
	// sign-inconsistent stationary distributions.
	ErrNumericalFailure = errors.New("numerical failure")

	// ErrDimensionMismatch marks inputs whose lengths or shapes are
	// inconsistent with declared sizes, block structure, or boundary
	// reduction.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Configurationf wraps ErrConfiguration with a formatted detail message.
func Configurationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

// Numericalf wraps ErrNumericalFailure with a formatted detail message.
func Numericalf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNumericalFailure)...)
}

// Dimensionf wraps ErrDimensionMismatch with a formatted detail message.
func Dimensionf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrDimensionMismatch)...)
}
