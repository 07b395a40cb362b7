// Package predict implements the prediction step of manifold Kalman filters.
package predict

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/noise"
	"github.com/milosgajdos/go-mkf/sigma"
	"gonum.org/v1/gonum/mat"
)

// Config contains prediction configuration
type Config struct {
	// Mode is the filtering mode used by Predict
	Mode kalman.Mode `yaml:"mode"`
	// Sigma configures UKF sigma points
	Sigma sigma.Config `yaml:"sigma"`
}

// DefaultConfig returns the default prediction configuration.
func DefaultConfig() Config {
	return Config{
		Mode:  kalman.EKF,
		Sigma: sigma.DefaultConfig(),
	}
}

// Prediction propagates a state estimate of type S and its covariance
// through a process model driven by a prediction measurement M and noise N.
type Prediction[S filter.Manifold[S], M any, N filter.Manifold[N]] struct {
	// model is the process model
	model filter.Propagator[S, M, N]
	// noise is the process noise
	noise *noise.Noise[N]
	// c is prediction configuration
	c Config
}

// New creates new Prediction and returns it.
// It accepts the following arguments:
// - model:  process model
// - n:      process noise
// - c:      prediction configuration; DefaultConfig if nil
// It returns error if the configuration is invalid.
func New[S filter.Manifold[S], M any, N filter.Manifold[N]](model filter.Propagator[S, M, N], n *noise.Noise[N], c *Config) (*Prediction[S, M, N], error) {
	if model == nil || n == nil {
		return nil, fmt.Errorf("prediction model and noise must be defined")
	}

	cfg := DefaultConfig()
	if c != nil {
		cfg = *c
	}

	if cfg.Mode != kalman.EKF && cfg.Mode != kalman.UKF {
		return nil, fmt.Errorf("prediction mode %v: %w", cfg.Mode, kalman.ErrUnsupportedMode)
	}

	if cfg.Sigma.Alpha <= 0 {
		return nil, fmt.Errorf("invalid sigma point config supplied: %+v", cfg.Sigma)
	}

	return &Prediction[S, M, N]{
		model: model,
		noise: n,
		c:     cfg,
	}, nil
}

// Config returns prediction configuration.
func (p *Prediction[S, M, N]) Config() Config {
	return p.c
}

// Noise returns process noise.
func (p *Prediction[S, M, N]) Noise() *noise.Noise[N] {
	return p.noise
}

// Model returns the process model.
func (p *Prediction[S, M, N]) Model() filter.Propagator[S, M, N] {
	return p.model
}

// Eval propagates x at identity noise.
func (p *Prediction[S, M, N]) Eval(x S, m M, dt float64) S {
	return p.model.Propagate(x, m, p.noise.Identity(), dt)
}

// JacInput returns the analytic Jacobian w.r.t. the state.
func (p *Prediction[S, M, N]) JacInput(x S, m M, dt float64) *mat.Dense {
	return p.model.JacInput(x, m, dt)
}

// JacNoise returns the analytic Jacobian w.r.t. the noise.
func (p *Prediction[S, M, N]) JacNoise(x S, m M, dt float64) *mat.Dense {
	return p.model.JacNoise(x, m, dt)
}

// JacInputFD returns the finite difference Jacobian w.r.t. the state.
func (p *Prediction[S, M, N]) JacInputFD(x S, m M, dt, delta float64) *mat.Dense {
	return kalman.JacobianFD(x, func(xi S) S {
		return p.model.Propagate(xi, m, p.noise.Identity(), dt)
	}, delta)
}

// JacNoiseFD returns the finite difference Jacobian w.r.t. the noise.
func (p *Prediction[S, M, N]) JacNoiseFD(x S, m M, dt, delta float64) *mat.Dense {
	return kalman.JacobianFD(p.noise.Identity(), func(ni N) S {
		return p.model.Propagate(x, m, ni, dt)
	}, delta)
}

// Linearize returns the Jacobians of the model at x and checks their dimensions.
func (p *Prediction[S, M, N]) Linearize(x S, m M, dt float64) (f, fn *mat.Dense, err error) {
	d, dn := x.Dim(), p.noise.Dim()

	f = p.model.JacInput(x, m, dt)
	if err := kalman.CheckDims("F", f, d, d); err != nil {
		return nil, nil, err
	}

	fn = p.model.JacNoise(x, m, dt)
	if err := kalman.CheckDims("Fn", fn, d, dn); err != nil {
		return nil, nil, err
	}

	return f, fn, nil
}

// Predict propagates x and its covariance cov in place using the configured mode.
func (p *Prediction[S, M, N]) Predict(x *S, cov *mat.SymDense, m M, dt float64) error {
	switch p.c.Mode {
	case kalman.EKF:
		return p.EKF(x, cov, m, dt)
	case kalman.UKF:
		return p.UKF(x, cov, m, dt)
	}

	return fmt.Errorf("prediction mode %v: %w", p.c.Mode, kalman.ErrUnsupportedMode)
}

// EKF propagates x and its covariance cov in place by linearizing the model:
//
//	x = f(x, m, 0, dt)
//	P = F*P*F' + Fn*Q*Fn'
//
// It returns error if the Jacobians or cov have invalid dimensions.
func (p *Prediction[S, M, N]) EKF(x *S, cov *mat.SymDense, m M, dt float64) error {
	if err := kalman.CheckDims("P", cov, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	f, fn, err := p.Linearize(*x, m, dt)
	if err != nil {
		return err
	}

	// F*P*F' + Fn*Q*Fn'
	pp := kalman.Sandwich(f, cov)
	pp.AddSym(pp, kalman.Sandwich(fn, p.noise.Cov()))

	*x = p.Eval(*x, m, dt)
	cov.CopySym(pp)

	return nil
}

// UKF propagates x and its covariance cov in place through the model
// using sigma points of the joint state and noise distribution.
// It returns error if the joint covariance is not positive definite.
func (p *Prediction[S, M, N]) UKF(x *S, cov *mat.SymDense, m M, dt float64) error {
	if err := kalman.CheckDims("P", cov, (*x).Dim(), (*x).Dim()); err != nil {
		return err
	}

	d := (*x).Dim()
	w, err := sigma.NewWeights(p.c.Sigma, d+p.noise.Dim())
	if err != nil {
		return err
	}

	s, err := sigma.Factor(kalman.BlockDiag(cov, p.noise.Cov()), w.Gamma)
	if err != nil {
		return err
	}

	xs, err := sigma.Sample(w, *x, s, 0)
	if err != nil {
		return err
	}

	ns, err := sigma.Sample(w, p.noise.Identity(), s, d)
	if err != nil {
		return err
	}

	points := make([]S, w.Count())
	for i := range points {
		points[i] = p.model.Propagate(xs.At(i), m, ns.At(i), dt)
	}

	next, err := sigma.New(w, points)
	if err != nil {
		return err
	}

	mean := next.Mean()
	*x = mean
	cov.CopySym(next.Cov(mean))

	return nil
}
