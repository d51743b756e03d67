package diffmap

import "math"

// Kernel converts a metric distance into an affinity weight.
type Kernel func(d float64) float64

// Gaussian is the default kernel, exp(-d^2).
func Gaussian(d float64) float64 {
	return math.Exp(-d * d)
}

// Cutoff weights every in-range neighbor equally; the epsilon threshold
// alone shapes the affinity graph.
func Cutoff(d float64) float64 {
	return 1
}
