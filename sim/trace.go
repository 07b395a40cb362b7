package sim

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Trace records estimation errors of a filter against the true state.
type Trace[S filter.Manifold[S]] struct {
	dim   int
	times []float64
	// errs holds the tangent errors truth ⊟ estimate
	errs [][]float64
	// sigmas holds the standard deviations of the estimate
	sigmas [][]float64
	nees   []float64
}

// NewTrace creates new Trace for estimates of dimension dim and returns it.
func NewTrace[S filter.Manifold[S]](dim int) (*Trace[S], error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid trace dimension: %d", dim)
	}

	return &Trace[S]{dim: dim}, nil
}

// Record records the error of estimate est at time t given the true state truth.
// It returns error if the estimate dimensions do not match the trace or
// if the estimate covariance is not positive definite.
func (t *Trace[S]) Record(at float64, truth S, est filter.Estimate[S]) error {
	if d := truth.Dim(); d != t.dim {
		return fmt.Errorf("invalid truth dimension: %d, trace: %d: %w", d, t.dim, filter.ErrDimension)
	}

	cov := est.Cov()
	if d := cov.SymmetricDim(); d != t.dim {
		return fmt.Errorf("invalid covariance dimension: %d, trace: %d: %w", d, t.dim, filter.ErrDimension)
	}

	e := truth.BoxMinus(est.Val())

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return fmt.Errorf("estimate covariance: %w", filter.ErrNotPositiveDefinite)
	}

	// P^-1*e
	var pe mat.VecDense
	if err := chol.SolveVecTo(&pe, e); err != nil {
		return fmt.Errorf("estimate covariance: %w", err)
	}

	sigma := make([]float64, t.dim)
	for i := range sigma {
		sigma[i] = math.Sqrt(cov.At(i, i))
	}

	t.times = append(t.times, at)
	t.errs = append(t.errs, mat.Col(nil, 0, e))
	t.sigmas = append(t.sigmas, sigma)
	t.nees = append(t.nees, mat.Dot(e, &pe))

	return nil
}

// Dim returns the dimension of the recorded errors.
func (t *Trace[S]) Dim() int {
	return t.dim
}

// Len returns the number of recorded estimates.
func (t *Trace[S]) Len() int {
	return len(t.errs)
}

// Times returns the times of the recorded estimates.
func (t *Trace[S]) Times() []float64 {
	times := make([]float64, len(t.times))
	copy(times, t.times)
	return times
}

// Errors returns the recorded errors stored in matrix columns.
// It returns nil if nothing has been recorded.
func (t *Trace[S]) Errors() *mat.Dense {
	return t.columns(t.errs)
}

// Sigmas returns the recorded standard deviations stored in matrix columns.
// It returns nil if nothing has been recorded.
func (t *Trace[S]) Sigmas() *mat.Dense {
	return t.columns(t.sigmas)
}

func (t *Trace[S]) columns(data [][]float64) *mat.Dense {
	if len(data) == 0 {
		return nil
	}

	m := mat.NewDense(t.dim, len(data), nil)
	for j, col := range data {
		m.SetCol(j, col)
	}

	return m
}

// NEES returns the normalized estimation error squared of every record.
func (t *Trace[S]) NEES() []float64 {
	nees := make([]float64, len(t.nees))
	copy(nees, t.nees)
	return nees
}

// MeanNEES returns the average NEES.
// It returns NaN if nothing has been recorded.
func (t *Trace[S]) MeanNEES() float64 {
	if len(t.nees) == 0 {
		return math.NaN()
	}

	return floats.Sum(t.nees) / float64(len(t.nees))
}

// NEESBounds returns the two-sided confidence interval of MeanNEES with
// probability p of a consistent filter.
// It returns error if nothing has been recorded or p is not in (0, 1).
func (t *Trace[S]) NEESBounds(p float64) (lo, hi float64, err error) {
	n := len(t.nees)
	if n == 0 {
		return 0, 0, fmt.Errorf("empty trace")
	}

	lo, hi, err = neesBounds(n*t.dim, p)
	if err != nil {
		return 0, 0, err
	}

	return lo / float64(n), hi / float64(n), nil
}

// neesBounds returns the two-sided interval of a chi-square variable with k degrees of freedom.
func neesBounds(k int, p float64) (float64, float64, error) {
	if p <= 0 || p >= 1 {
		return 0, 0, fmt.Errorf("invalid probability: %f", p)
	}

	chi := distuv.ChiSquared{K: float64(k)}

	return chi.Quantile((1 - p) / 2), chi.Quantile((1 + p) / 2), nil
}

// ErrorCov returns the empirical covariance of the recorded errors.
// It returns error if fewer than two errors have been recorded.
func (t *Trace[S]) ErrorCov() (mat.Symmetric, error) {
	if len(t.errs) < 2 {
		return nil, fmt.Errorf("not enough errors recorded: %d", len(t.errs))
	}

	cov, err := matrix.Cov(t.Errors(), "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to calculate error covariance: %v", err)
	}

	return cov, nil
}
