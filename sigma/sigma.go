// Package sigma implements sigma point sets on manifolds used by the unscented transform.
package sigma

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/gonum/mat"
)

const (
	// meanTol is the tangent step norm below which the manifold mean has converged
	meanTol = 1e-12
	// meanMaxIter bounds the manifold mean iterations
	meanMaxIter = 20
)

// Config contains [unitless] sigma point configuration parameters
type Config struct {
	// Alpha is alpha parameter (0,1]
	Alpha float64 `yaml:"alpha"`
	// Beta is beta parameter (2 is optimal choice for Gaussian)
	Beta float64 `yaml:"beta"`
	// Kappa is kappa parameter
	Kappa float64 `yaml:"kappa"`
}

// DefaultConfig returns the default sigma point configuration.
func DefaultConfig() Config {
	return Config{Alpha: 1e-1, Beta: 2, Kappa: 0}
}

// Weights are sigma point weights for an L dimensional joint distribution.
type Weights struct {
	// L is the dimension of the joint distribution
	L int
	// Gamma is the square root covariance scaling factor
	Gamma float64
	// Wm0 is mean sigma point weight
	Wm0 float64
	// Wc0 is mean sigma point covariance weight
	Wc0 float64
	// W is weight for regular sigma points and covariances
	W float64
}

// NewWeights computes sigma point weights of an l dimensional distribution.
// It returns error if the configuration yields a non-positive scaling.
func NewWeights(c Config, l int) (*Weights, error) {
	if l <= 0 {
		return nil, fmt.Errorf("invalid sigma point dimension: %d", l)
	}

	if c.Alpha <= 0 {
		return nil, fmt.Errorf("invalid config supplied: %+v", c)
	}

	n := float64(l)
	// lambda is another unitless parameter calculated using the config ones
	lambda := c.Alpha*c.Alpha*(n+c.Kappa) - n
	if n+lambda <= 0 {
		return nil, fmt.Errorf("invalid config supplied: %+v: L+lambda = %g", c, n+lambda)
	}

	wm0 := lambda / (n + lambda)

	return &Weights{
		L:     l,
		Gamma: math.Sqrt(n + lambda),
		Wm0:   wm0,
		Wc0:   wm0 + (1 - c.Alpha*c.Alpha + c.Beta),
		W:     1 / (2 * (n + lambda)),
	}, nil
}

// Count returns the number of sigma points: 2L+1.
func (w *Weights) Count() int {
	return 2*w.L + 1
}

// Mean returns the mean weight of the i-th sigma point.
func (w *Weights) Mean(i int) float64 {
	if i == 0 {
		return w.Wm0
	}
	return w.W
}

// Cov returns the covariance weight of the i-th sigma point.
func (w *Weights) Cov(i int) float64 {
	if i == 0 {
		return w.Wc0
	}
	return w.W
}

// Factor returns gamma*L where L is the lower Cholesky factor of cov.
// It returns error wrapping filter.ErrNotPositiveDefinite if cov can't be factorized.
func Factor(cov mat.Symmetric, gamma float64) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("sigma point covariance: %w", filter.ErrNotPositiveDefinite)
	}

	var l mat.TriDense
	chol.LTo(&l)

	s := mat.DenseCopyOf(&l)
	s.Scale(gamma, s)

	return s, nil
}
