// Package update implements the measurement update step of manifold Kalman filters.
package update

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/noise"
	"github.com/milosgajdos/go-mkf/outlier"
	"github.com/milosgajdos/go-mkf/sigma"
	"gonum.org/v1/gonum/mat"
)

// Config contains update configuration
type Config struct {
	// Mode is the filtering mode used by Correct
	Mode kalman.Mode `yaml:"mode"`
	// MaxIterations bounds the number of IEKF iterations
	MaxIterations int `yaml:"maxIterations"`
	// UpdateNormTermination stops IEKF once the correction norm drops below it
	UpdateNormTermination float64 `yaml:"updateNormTermination"`
	// Sigma configures UKF sigma points
	Sigma sigma.Config `yaml:"sigma"`
}

// DefaultConfig returns the default update configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                  kalman.EKF,
		MaxIterations:         10,
		UpdateNormTermination: 1e-6,
		Sigma:                 sigma.DefaultConfig(),
	}
}

// Validate returns error if the configuration is invalid.
func (c Config) Validate() error {
	if _, err := c.Mode.MarshalText(); err != nil {
		return err
	}

	if c.MaxIterations <= 0 || c.UpdateNormTermination < 0 {
		return fmt.Errorf("invalid iteration config supplied: %d, %g", c.MaxIterations, c.UpdateNormTermination)
	}

	if c.Sigma.Alpha <= 0 {
		return fmt.Errorf("invalid sigma point config supplied: %+v", c.Sigma)
	}

	return nil
}

// Update corrects a state estimate of type S and its covariance with
// a measurement M through a measurement model producing innovation I
// disturbed by noise N.
type Update[S filter.Manifold[S], M any, I filter.Manifold[I], N filter.Manifold[N]] struct {
	// Diagnostics records the outcome of the last correction
	kalman.Diagnostics
	// model is the measurement model
	model filter.Observer[S, M, I, N]
	// noise is the measurement noise
	noise *noise.Noise[N]
	// c is update configuration
	c Config
}

// New creates new Update and returns it.
// It accepts the following arguments:
// - model:  measurement model
// - n:      measurement noise
// - c:      update configuration; DefaultConfig if nil
// It returns error if the configuration is invalid.
func New[S filter.Manifold[S], M any, I filter.Manifold[I], N filter.Manifold[N]](model filter.Observer[S, M, I, N], n *noise.Noise[N], c *Config) (*Update[S, M, I, N], error) {
	if model == nil || n == nil {
		return nil, fmt.Errorf("update model and noise must be defined")
	}

	cfg := DefaultConfig()
	if c != nil {
		cfg = *c
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Update[S, M, I, N]{
		model: model,
		noise: n,
		c:     cfg,
	}, nil
}

// Config returns update configuration.
func (u *Update[S, M, I, N]) Config() Config {
	return u.c
}

// Noise returns measurement noise.
func (u *Update[S, M, I, N]) Noise() *noise.Noise[N] {
	return u.noise
}

// Model returns the measurement model.
func (u *Update[S, M, I, N]) Model() filter.Observer[S, M, I, N] {
	return u.model
}

// CoupledToPrediction reports whether the update noise is correlated with the prediction noise.
func (u *Update[S, M, I, N]) CoupledToPrediction() bool {
	return false
}

// Eval returns the innovation of x at identity noise.
func (u *Update[S, M, I, N]) Eval(x S, m M) I {
	return u.model.Observe(x, m, u.noise.Identity())
}

// JacInput returns the analytic Jacobian w.r.t. the state.
func (u *Update[S, M, I, N]) JacInput(x S, m M) *mat.Dense {
	return u.model.JacInput(x, m)
}

// JacNoise returns the analytic Jacobian w.r.t. the noise.
func (u *Update[S, M, I, N]) JacNoise(x S, m M) *mat.Dense {
	return u.model.JacNoise(x, m)
}

// JacInputFD returns the finite difference Jacobian w.r.t. the state.
func (u *Update[S, M, I, N]) JacInputFD(x S, m M, delta float64) *mat.Dense {
	return kalman.JacobianFD(x, func(xi S) I {
		return u.model.Observe(xi, m, u.noise.Identity())
	}, delta)
}

// JacNoiseFD returns the finite difference Jacobian w.r.t. the noise.
func (u *Update[S, M, I, N]) JacNoiseFD(x S, m M, delta float64) *mat.Dense {
	return kalman.JacobianFD(u.noise.Identity(), func(ni N) I {
		return u.model.Observe(x, m, ni)
	}, delta)
}

// Linearize evaluates the innovation y of x and the Jacobians of the model at x.
// It returns error if the Jacobians have invalid dimensions.
func (u *Update[S, M, I, N]) Linearize(x S, m M) (h, hn *mat.Dense, y I, err error) {
	y = u.Eval(x, m)
	d, dn, dy := x.Dim(), u.noise.Dim(), y.Dim()

	h = u.model.JacInput(x, m)
	if err := kalman.CheckDims("H", h, dy, d); err != nil {
		return nil, nil, y, err
	}

	hn = u.model.JacNoise(x, m)
	if err := kalman.CheckDims("Hn", hn, dy, dn); err != nil {
		return nil, nil, y, err
	}

	return h, hn, y, nil
}

// linearized is an update linearized at a single point
type linearized struct {
	// h is the innovation Jacobian; gated rows are zeroed
	h *mat.Dense
	// py is the innovation covariance
	py *mat.Dense
	// inn is the tangent innovation
	inn *mat.VecDense
}

func (u *Update[S, M, I, N]) linearize(xl S, p *mat.SymDense, m M, od *outlier.Detector) (*linearized, error) {
	h, hn, y, err := u.Linearize(xl, m)
	if err != nil {
		return nil, err
	}

	// H*P*H' + Hn*R*Hn'
	pyy := kalman.Sandwich(h, p)
	pyy.AddSym(pyy, kalman.Sandwich(hn, u.noise.Cov()))

	l := &linearized{
		h:   h,
		py:  mat.DenseCopyOf(pyy),
		inn: y.BoxMinus(y.Identity()),
	}

	if od != nil {
		if err := od.Apply(l.inn, l.py, l.h); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// linPoint returns the linearization state and its tangent offset from x.
func linPoint[S filter.Manifold[S]](x S, lin filter.LinPoint) (S, *mat.VecDense, error) {
	dv := lin.Offset(x.Dim())
	if dv.Len() != x.Dim() {
		return x, nil, fmt.Errorf("invalid linearization point dims: %d, state: %d: %w", dv.Len(), x.Dim(), filter.ErrDimension)
	}

	if lin.IsCurrent() {
		return x, dv, nil
	}

	return x.BoxPlus(dv), dv, nil
}

// Correct corrects x and its covariance p in place with measurement m using the configured mode.
// lin must be filter.Current in UKF mode.
func (u *Update[S, M, I, N]) Correct(x *S, p *mat.SymDense, m M, lin filter.LinPoint, od *outlier.Detector) error {
	switch u.c.Mode {
	case kalman.EKF:
		return u.EKF(x, p, m, lin, od)
	case kalman.IEKF:
		return u.IEKF(x, p, m, lin, od)
	case kalman.UKF:
		if !lin.IsCurrent() {
			return fmt.Errorf("linearization point in %v mode: %w", u.c.Mode, kalman.ErrUnsupportedMode)
		}
		return u.UKF(x, p, m, od)
	}

	return fmt.Errorf("update mode %v: %w", u.c.Mode, kalman.ErrUnsupportedMode)
}

// EKF corrects x and its covariance p in place with measurement m.
// The model is linearized at x.BoxPlus(dv) where dv is the offset of lin:
//
//	Py = H*P*H' + Hn*R*Hn'
//	K  = P*H'*Py^-1
//	x  = x ⊞ -K*(inn - H*dv)
//	P  = P - K*Py*K'
//
// Innovation dimensions flagged by od are gated out; od may be nil.
// It returns error if dimensions mismatch or Py is not positive definite.
func (u *Update[S, M, I, N]) EKF(x *S, p *mat.SymDense, m M, lin filter.LinPoint, od *outlier.Detector) error {
	if err := kalman.CheckDims("P", p, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	xl, dv, err := linPoint(*x, lin)
	if err != nil {
		return err
	}

	l, err := u.linearize(xl, p, m, od)
	if err != nil {
		return err
	}

	// H*P
	var pyx mat.Dense
	pyx.Mul(l.h, p)

	k, err := kalman.Gain(&pyx, l.py)
	if err != nil {
		return err
	}

	corr := kalman.Correction(k, l.inn, l.h, dv)

	*x = (*x).BoxPlus(corr)
	p.CopySym(kalman.PostCov(p, k, l.py))
	u.Record(l.inn, k, 1, mat.Norm(corr, 2))

	return nil
}

// IEKF corrects x and its covariance p in place with measurement m by
// iterating EKF corrections, re-linearizing at the corrected state each time.
// Iterations stop once the correction norm drops below UpdateNormTermination
// or after MaxIterations linearizations; not converging is not an error.
// The covariance is corrected with the gain of the last iteration.
func (u *Update[S, M, I, N]) IEKF(x *S, p *mat.SymDense, m M, lin filter.LinPoint, od *outlier.Detector) error {
	if err := kalman.CheckDims("P", p, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	xl, _, err := linPoint(*x, lin)
	if err != nil {
		return err
	}

	var (
		l    *linearized
		k    *mat.Dense
		iter int
	)

	for norm := math.Inf(1); iter < u.c.MaxIterations && norm >= u.c.UpdateNormTermination; iter++ {
		l, err = u.linearize(xl, p, m, od)
		if err != nil {
			return err
		}

		// H*P
		var pyx mat.Dense
		pyx.Mul(l.h, p)

		k, err = kalman.Gain(&pyx, l.py)
		if err != nil {
			return err
		}

		corr := kalman.Correction(k, l.inn, l.h, xl.BoxMinus(*x))
		xl = (*x).BoxPlus(corr)
		norm = mat.Norm(corr, 2)

		u.Record(l.inn, k, iter+1, norm)
	}

	*x = xl
	p.CopySym(kalman.PostCov(p, k, l.py))

	return nil
}

// UKF corrects x and its covariance p in place with measurement m using
// sigma points of the joint state and measurement noise distribution.
// Innovation dimensions flagged by od are gated out; od may be nil.
// It returns error if the joint covariance or Py is not positive definite.
func (u *Update[S, M, I, N]) UKF(x *S, p *mat.SymDense, m M, od *outlier.Detector) error {
	if err := kalman.CheckDims("P", p, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	d := (*x).Dim()
	w, err := sigma.NewWeights(u.c.Sigma, d+u.noise.Dim())
	if err != nil {
		return err
	}

	s, err := sigma.Factor(kalman.BlockDiag(p, u.noise.Cov()), w.Gamma)
	if err != nil {
		return err
	}

	xs, err := sigma.Sample(w, *x, s, 0)
	if err != nil {
		return err
	}

	ns, err := sigma.Sample(w, u.noise.Identity(), s, d)
	if err != nil {
		return err
	}

	points := make([]I, w.Count())
	for i := range points {
		points[i] = u.model.Observe(xs.At(i), m, ns.At(i))
	}

	ys, err := sigma.New(w, points)
	if err != nil {
		return err
	}

	return u.correctSigma(x, p, xs, ys, od)
}

// correctSigma corrects x and p with the innovation sigma points ys drawn
// jointly with the state sigma points xs.
func (u *Update[S, M, I, N]) correctSigma(x *S, p *mat.SymDense, xs *sigma.Set[S], ys *sigma.Set[I], od *outlier.Detector) error {
	y := ys.Mean()
	py := mat.DenseCopyOf(ys.Cov(y))

	pxy, err := sigma.CrossCov(xs, *x, ys, y)
	if err != nil {
		return err
	}
	pyx := mat.DenseCopyOf(pxy.T())

	inn := y.BoxMinus(y.Identity())
	if od != nil {
		if err := od.Apply(inn, py, pyx); err != nil {
			return err
		}
	}

	k, err := kalman.Gain(pyx, py)
	if err != nil {
		return err
	}

	corr := kalman.Correction(k, inn, nil, nil)

	*x = (*x).BoxPlus(corr)
	p.CopySym(kalman.PostCov(p, k, py))
	u.Record(inn, k, 1, mat.Norm(corr, 2))

	return nil
}

// CorrectSigma corrects x and its covariance p given innovation sigma
// points ys drawn jointly with the state sigma points xs around x.
// It is the correction stage of UKF for callers that propagate sigma points themselves.
func (u *Update[S, M, I, N]) CorrectSigma(x *S, p *mat.SymDense, xs *sigma.Set[S], ys *sigma.Set[I], od *outlier.Detector) error {
	if err := kalman.CheckDims("P", p, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	return u.correctSigma(x, p, xs, ys, od)
}
