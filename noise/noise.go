// Package noise implements zero-mean Gaussian noise on manifolds.
package noise

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/sigma"
	"github.com/milosgajdos/matrix"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// DefaultVariance is the variance of each noise dimension unless configured otherwise.
const DefaultVariance = 1e-4

// Noise is zero-mean Gaussian noise of type N: a random tangent vector
// retracted around the identity element of N.
type Noise[N filter.Manifold[N]] struct {
	// zero is the noise identity element
	zero N
	// cov is noise covariance
	cov *mat.SymDense
}

// New creates new noise around the identity of zero with covariance cov.
// If cov is nil the covariance defaults to DefaultVariance*I.
// It returns error if cov has invalid dimensions or negative variances.
func New[N filter.Manifold[N]](zero N, cov mat.Symmetric) (*Noise[N], error) {
	c, err := defaultCov(zero.Dim())
	if err != nil {
		return nil, err
	}

	n := &Noise[N]{
		zero: zero.Identity(),
		cov:  c,
	}

	if cov != nil {
		if err := n.SetCov(cov); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// NewDefault creates new noise around the identity of zero with covariance DefaultVariance*I.
// It panics if zero has no tangent dimensions.
func NewDefault[N filter.Manifold[N]](zero N) *Noise[N] {
	cov, err := defaultCov(zero.Dim())
	if err != nil {
		panic(err)
	}

	return &Noise[N]{
		zero: zero.Identity(),
		cov:  cov,
	}
}

func defaultCov(dim int) (*mat.SymDense, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d: %w", dim, filter.ErrDimension)
	}

	eye, err := matrix.NewDenseValIdentity(dim, DefaultVariance)
	if err != nil {
		return nil, fmt.Errorf("failed to create default noise covariance: %w", err)
	}

	return mat.NewSymDense(dim, eye.RawMatrix().Data), nil
}

// Dim returns the tangent dimension of the noise.
func (n *Noise[N]) Dim() int {
	return n.zero.Dim()
}

// Identity returns the noise identity element: the noise mean.
func (n *Noise[N]) Identity() N {
	return n.zero
}

// Cov returns noise covariance.
func (n *Noise[N]) Cov() mat.Symmetric {
	cov := mat.NewSymDense(n.cov.SymmetricDim(), nil)
	cov.CopySym(n.cov)

	return cov
}

// SetCov sets noise covariance.
// It returns error if cov has invalid dimensions or negative variances.
func (n *Noise[N]) SetCov(cov mat.Symmetric) error {
	if cov.SymmetricDim() != n.Dim() {
		return fmt.Errorf("invalid noise covariance dims: %d, noise: %d: %w",
			cov.SymmetricDim(), n.Dim(), filter.ErrDimension)
	}

	for i := 0; i < n.Dim(); i++ {
		if cov.At(i, i) < 0 {
			return fmt.Errorf("negative noise variance at %d: %g", i, cov.At(i, i))
		}
	}

	n.cov.CopySym(cov)

	return nil
}

// Sample draws a noise sample using the random source src.
// It returns error if the covariance is not positive definite.
func (n *Noise[N]) Sample(src rand.Source) (N, error) {
	dist, ok := distmv.NewNormal(make([]float64, n.Dim()), n.cov, src)
	if !ok {
		return n.zero, fmt.Errorf("noise covariance: %w", filter.ErrNotPositiveDefinite)
	}

	r := dist.Rand(nil)

	return n.zero.BoxPlus(mat.NewVecDense(len(r), r)), nil
}

// SigmaPoints returns the sigma point representation of the noise.
func (n *Noise[N]) SigmaPoints(c sigma.Config) (*sigma.Set[N], error) {
	return sigma.FromGaussian(c, n.zero, n.cov)
}

// String implements the Stringer interface.
func (n *Noise[N]) String() string {
	return fmt.Sprintf("Noise{\nDim=%d\nCov=%v\n}", n.Dim(), mat.Formatted(n.cov, mat.Prefix("    "), mat.Squeeze()))
}
