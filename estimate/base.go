// Package estimate provides snapshots of filter estimates.
package estimate

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/gonum/mat"
)

// Base is base estimate
type Base[S filter.Manifold[S]] struct {
	// val is estimated value
	val S
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate given val with zero covariance
func NewBase[S filter.Manifold[S]](val S) *Base[S] {
	return &Base[S]{
		val: val,
		cov: mat.NewSymDense(val.Dim(), nil),
	}
}

// NewBaseWithCov returns base estimate given val and its tangent covariance
func NewBaseWithCov[S filter.Manifold[S]](val S, cov mat.Symmetric) (*Base[S], error) {
	if cov == nil {
		return nil, fmt.Errorf("covariance is nil: %w", filter.ErrDimension)
	}

	if rc := cov.SymmetricDim(); rc != val.Dim() {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d: %w", val.Dim(), rc, rc, filter.ErrDimension)
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base[S]{
		val: val,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base[S]) Val() S {
	return b.val
}

// Cov returns covariance estimate
func (b *Base[S]) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// String implements the Stringer interface.
func (b *Base[S]) String() string {
	return fmt.Sprintf("Val: %v\nCov:\n%v", b.val, mat.Formatted(b.cov, mat.Prefix(""), mat.Squeeze()))
}
