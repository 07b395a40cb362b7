package sigma

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/gonum/mat"
)

// Set is a weighted set of 2L+1 sigma points on a manifold.
type Set[T filter.Manifold[T]] struct {
	w      *Weights
	points []T
}

// New wraps points into a sigma point set.
// It returns error if the number of points does not match the weights.
func New[T filter.Manifold[T]](w *Weights, points []T) (*Set[T], error) {
	if len(points) != w.Count() {
		return nil, fmt.Errorf("invalid number of sigma points: %d, expected %d: %w",
			len(points), w.Count(), filter.ErrDimension)
	}

	return &Set[T]{w: w, points: points}, nil
}

// Sample draws sigma points around mean from the factor s of a joint covariance.
// The tangent of mean spans the rows [off, off+mean.Dim()) of s.
// Points 1..L shift along the columns of s, points L+1..2L along their negation.
func Sample[T filter.Manifold[T]](w *Weights, mean T, s mat.Matrix, off int) (*Set[T], error) {
	r, c := s.Dims()
	d := mean.Dim()
	if c != w.L || off < 0 || off+d > r {
		return nil, fmt.Errorf("invalid sigma factor dims [%d x %d] for component [%d, %d) of L=%d: %w",
			r, c, off, off+d, w.L, filter.ErrDimension)
	}

	points := make([]T, w.Count())
	points[0] = mean

	dv := mat.NewVecDense(d, nil)
	for j := 0; j < w.L; j++ {
		for i := 0; i < d; i++ {
			dv.SetVec(i, s.At(off+i, j))
		}
		points[1+j] = mean.BoxPlus(dv)
		dv.ScaleVec(-1, dv)
		points[1+w.L+j] = mean.BoxPlus(dv)
	}

	return &Set[T]{w: w, points: points}, nil
}

// FromGaussian returns sigma points of the distribution with the given mean and covariance.
func FromGaussian[T filter.Manifold[T]](c Config, mean T, cov mat.Symmetric) (*Set[T], error) {
	if cov.SymmetricDim() != mean.Dim() {
		return nil, fmt.Errorf("invalid covariance dims: %d, state: %d: %w",
			cov.SymmetricDim(), mean.Dim(), filter.ErrDimension)
	}

	w, err := NewWeights(c, mean.Dim())
	if err != nil {
		return nil, err
	}

	s, err := Factor(cov, w.Gamma)
	if err != nil {
		return nil, err
	}

	return Sample(w, mean, s, 0)
}

// Len returns the number of sigma points.
func (s *Set[T]) Len() int {
	return len(s.points)
}

// At returns the i-th sigma point.
func (s *Set[T]) At(i int) T {
	return s.points[i]
}

// Weights returns the sigma point weights.
func (s *Set[T]) Weights() *Weights {
	return s.w
}

// Mean returns the weighted manifold mean of the sigma points.
// Starting at the first point it repeatedly moves the reference by the
// weighted mean of the tangent differences to it.
func (s *Set[T]) Mean() T {
	ref := s.points[0]
	d := mat.NewVecDense(ref.Dim(), nil)

	for iter := 0; iter < meanMaxIter; iter++ {
		d.Zero()
		for i, p := range s.points {
			d.AddScaledVec(d, s.w.Mean(i), p.BoxMinus(ref))
		}
		ref = ref.BoxPlus(d)
		if mat.Norm(d, 2) < meanTol {
			break
		}
	}

	return ref
}

// Cov returns the weighted covariance of the sigma points around mean.
func (s *Set[T]) Cov(mean T) *mat.SymDense {
	n := mean.Dim()
	cov := mat.NewSymDense(n, nil)

	for i, p := range s.points {
		// x_i - mean
		d := p.BoxMinus(mean)
		cov.SymRankOne(cov, s.w.Cov(i), d)
	}

	return cov
}

// CrossCov returns the weighted cross covariance of two sigma point sets
// drawn from the same joint distribution.
func CrossCov[T filter.Manifold[T], U filter.Manifold[U]](a *Set[T], ma T, b *Set[U], mb U) (*mat.Dense, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("sigma point sets differ in size: %d, %d: %w", a.Len(), b.Len(), filter.ErrDimension)
	}

	cov := mat.NewDense(ma.Dim(), mb.Dim(), nil)
	var outer mat.Dense
	for i := range a.points {
		da := a.points[i].BoxMinus(ma)
		db := b.points[i].BoxMinus(mb)
		// (a_i - ma)*(b_i - mb)'
		outer.Outer(a.w.Cov(i), da, db)
		cov.Add(cov, &outer)
	}

	return cov, nil
}
