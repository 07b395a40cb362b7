// Package sim simulates noisy systems and measures how consistent a
// filter is with the simulated truth.
package sim

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/noise"
	"golang.org/x/exp/rand"
)

// System simulates the true state of a dynamical system.
//
//	x[n+1] = f(x[n], u[n], w[n], dt)
//	z[n]   = h(x[n], I, v[n])
//
// where w and v are drawn from the process and measurement noise and I
// is the identity measurement.
type System[S filter.Manifold[S], U any, W filter.Manifold[W], Z filter.Manifold[Z], V filter.Manifold[V]] struct {
	x       S
	process filter.Propagator[S, U, W]
	w       *noise.Noise[W]
	output  filter.Observer[S, Z, Z, V]
	v       *noise.Noise[V]
	src     rand.Source
}

// NewSystem creates new System and returns it.
// It accepts the following arguments:
// - x0:      initial state
// - process: process model
// - w:       process noise
// - output:  measurement model
// - v:       measurement noise
// - seed:    noise source seed
// It returns error if any of the models or noises is nil.
func NewSystem[S filter.Manifold[S], U any, W filter.Manifold[W], Z filter.Manifold[Z], V filter.Manifold[V]](
	x0 S, process filter.Propagator[S, U, W], w *noise.Noise[W],
	output filter.Observer[S, Z, Z, V], v *noise.Noise[V], seed uint64) (*System[S, U, W, Z, V], error) {
	if process == nil || output == nil {
		return nil, fmt.Errorf("process and measurement models must be defined")
	}

	if w == nil || v == nil {
		return nil, fmt.Errorf("process and measurement noise must be defined")
	}

	return &System[S, U, W, Z, V]{
		x:       x0,
		process: process,
		w:       w,
		output:  output,
		v:       v,
		src:     rand.NewSource(seed),
	}, nil
}

// State returns the true state.
func (s *System[S, U, W, Z, V]) State() S {
	return s.x
}

// Step propagates the true state by dt with input u and returns it.
func (s *System[S, U, W, Z, V]) Step(u U, dt float64) (S, error) {
	w, err := s.w.Sample(s.src)
	if err != nil {
		return s.x, fmt.Errorf("process noise: %w", err)
	}

	s.x = s.process.Propagate(s.x, u, w, dt)

	return s.x, nil
}

// Measure returns a noisy measurement of the true state.
// ref is only used for its identity.
func (s *System[S, U, W, Z, V]) Measure(ref Z) (Z, error) {
	v, err := s.v.Sample(s.src)
	if err != nil {
		return ref, fmt.Errorf("measurement noise: %w", err)
	}

	return s.output.Observe(s.x, ref.Identity(), v), nil
}
