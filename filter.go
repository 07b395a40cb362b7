package filter

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when a matrix or vector does not match declared dimensions.
	ErrDimension = errors.New("dimension mismatch")
	// ErrNotPositiveDefinite is returned when a covariance fails Cholesky factorization.
	ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
)

// Manifold is an element of a differentiable manifold with local charts
// around each of its points.
type Manifold[T any] interface {
	// Dim returns the dimension of the tangent space
	Dim() int
	// BoxPlus retracts the tangent vector dv onto the manifold around the element
	BoxPlus(dv mat.Vector) T
	// BoxMinus returns the tangent vector dv such that ref.BoxPlus(dv) is the element
	BoxMinus(ref T) *mat.VecDense
	// Identity returns the identity element of the manifold
	Identity() T
}

// Propagator is a process model which propagates state x of type S
// given the prediction measurement m and process noise n over the time step dt.
type Propagator[S, M, N any] interface {
	// Propagate evaluates the process function
	Propagate(x S, m M, n N, dt float64) S
	// JacInput returns the Jacobian w.r.t. the state at identity noise
	JacInput(x S, m M, dt float64) *mat.Dense
	// JacNoise returns the Jacobian w.r.t. the noise at identity noise
	JacNoise(x S, m M, dt float64) *mat.Dense
}

// Observer is a measurement model which computes the innovation of type I
// of state x given the measurement m and measurement noise n.
type Observer[S, M, I, N any] interface {
	// Observe evaluates the innovation function
	Observe(x S, m M, n N) I
	// JacInput returns the Jacobian w.r.t. the state at identity noise
	JacInput(x S, m M) *mat.Dense
	// JacNoise returns the Jacobian w.r.t. the noise at identity noise
	JacNoise(x S, m M) *mat.Dense
}

// Estimate is a manifold state estimate
type Estimate[S any] interface {
	// Val returns estimate value
	Val() S
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// LinPoint selects the state an update is linearized at.
// The zero value linearizes at the current state.
type LinPoint struct {
	dv *mat.VecDense
}

// Current linearizes at the current state.
var Current = LinPoint{}

// At linearizes at the current state shifted by the tangent vector dv,
// i.e. at x.BoxPlus(dv). dv is usually computed as linState.BoxMinus(x).
func At(dv mat.Vector) LinPoint {
	return LinPoint{dv: mat.VecDenseCopyOf(dv)}
}

// IsCurrent reports whether l linearizes at the current state.
func (l LinPoint) IsCurrent() bool {
	return l.dv == nil
}

// Offset returns the tangent offset of the linearization point.
// It returns a zero vector of length dim for the current state.
func (l LinPoint) Offset(dim int) *mat.VecDense {
	if l.dv == nil {
		return mat.NewVecDense(dim, nil)
	}
	return mat.VecDenseCopyOf(l.dv)
}
