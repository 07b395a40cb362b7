// Package model provides linear process and measurement models over
// Euclidean manifold states.
package model

import (
	"fmt"

	"github.com/milosgajdos/go-mkf/manifold"
	"gonum.org/v1/gonum/mat"
)

// coords returns the coordinates of a state whose elements are all vectors.
func coords(s manifold.State) *mat.VecDense {
	return s.BoxMinus(s.Identity())
}

// fromCoords retracts coordinates onto a state shaped like ref.
func fromCoords(ref manifold.State, v mat.Vector) manifold.State {
	return ref.Identity().BoxPlus(v)
}

func checkVectors(name string, s manifold.State) {
	for i := 0; i < s.Len(); i++ {
		if _, ok := s.Element(i).(manifold.Vector); !ok {
			panic(fmt.Sprintf("%s: element %d is not a vector: %v", name, i, s.Element(i)))
		}
	}
}

// Discrete is a linear discrete-time process model
//
//	x[n+1] = A*x[n] + B*u[n] + E*w[n]
//
// The matrices are already discretized so Propagate ignores its time step.
type Discrete struct {
	// A is internal state matrix
	A *mat.Dense
	// B is control matrix
	B *mat.Dense
	// E is state noise matrix
	E *mat.Dense
}

// NewDiscrete creates new linear process model and returns it.
// It returns error if the matrices have inconsistent dimensions.
func NewDiscrete(A, B, E *mat.Dense) (*Discrete, error) {
	if A == nil || B == nil || E == nil {
		return nil, fmt.Errorf("system matrices must be defined for a model")
	}

	ra, ca := A.Dims()
	rb, _ := B.Dims()
	re, _ := E.Dims()
	if ra != ca || rb != ra || re != ra {
		return nil, fmt.Errorf("invalid model dimensions: A [%d x %d], B rows %d, E rows %d", ra, ca, rb, re)
	}

	return &Discrete{A: A, B: B, E: E}, nil
}

// Dims returns state, input and noise dimensions.
func (d *Discrete) Dims() (nx, nu, nw int) {
	nx, _ = d.A.Dims()
	_, nu = d.B.Dims()
	_, nw = d.E.Dims()

	return nx, nu, nw
}

// Propagate propagates internal state x to the next step given input u and noise w.
func (d *Discrete) Propagate(x, u, w manifold.State, _ float64) manifold.State {
	checkVectors("state", x)

	out := new(mat.VecDense)
	out.MulVec(d.A, coords(x))

	outU := new(mat.VecDense)
	outU.MulVec(d.B, coords(u))
	out.AddVec(out, outU)

	outW := new(mat.VecDense)
	outW.MulVec(d.E, coords(w))
	out.AddVec(out, outW)

	return fromCoords(x, out)
}

// JacInput returns the state matrix A.
func (d *Discrete) JacInput(_, _ manifold.State, _ float64) *mat.Dense {
	return mat.DenseCopyOf(d.A)
}

// JacNoise returns the noise matrix E.
func (d *Discrete) JacNoise(_, _ manifold.State, _ float64) *mat.Dense {
	return mat.DenseCopyOf(d.E)
}

// Output is a linear measurement model whose innovation is the
// difference between the modelled output and the measurement z:
//
//	y[n] = C*x[n] + D*v[n] - z[n]
type Output struct {
	// C is output state matrix
	C *mat.Dense
	// D is output noise matrix
	D *mat.Dense
}

// NewOutput creates new linear measurement model and returns it.
// It returns error if the matrices have inconsistent dimensions.
func NewOutput(C, D *mat.Dense) (*Output, error) {
	if C == nil || D == nil {
		return nil, fmt.Errorf("output matrices must be defined for a model")
	}

	rc, _ := C.Dims()
	rd, _ := D.Dims()
	if rc != rd {
		return nil, fmt.Errorf("invalid model dimensions: C rows %d, D rows %d", rc, rd)
	}

	return &Output{C: C, D: D}, nil
}

// Dims returns state, output and noise dimensions.
func (o *Output) Dims() (nx, ny, nv int) {
	ny, nx = o.C.Dims()
	_, nv = o.D.Dims()

	return nx, ny, nv
}

// Observe returns the innovation of state x given measurement z and noise v.
func (o *Output) Observe(x, z, v manifold.State) manifold.State {
	checkVectors("state", x)

	out := new(mat.VecDense)
	out.MulVec(o.C, coords(x))

	outV := new(mat.VecDense)
	outV.MulVec(o.D, coords(v))
	out.AddVec(out, outV)

	out.SubVec(out, coords(z))

	return fromCoords(z, out)
}

// JacInput returns the output matrix C.
func (o *Output) JacInput(_, _ manifold.State) *mat.Dense {
	return mat.DenseCopyOf(o.C)
}

// JacNoise returns the output noise matrix D.
func (o *Output) JacNoise(_, _ manifold.State) *mat.Dense {
	return mat.DenseCopyOf(o.D)
}
