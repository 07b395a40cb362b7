// Package testmodel provides process and measurement models with known
// Jacobians used to exercise the filters.
package testmodel

import (
	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/manifold"
	"github.com/milosgajdos/go-mkf/model"
	"gonum.org/v1/gonum/mat"
)

// Process is a process model over product states.
type Process = filter.Propagator[manifold.State, manifold.State, manifold.State]

// Measurement is a measurement model over product states.
type Measurement = filter.Observer[manifold.State, manifold.State, manifold.State, manifold.State]

// Fixture bundles a process and a measurement model with an operating point.
type Fixture struct {
	// Name is the fixture name
	Name string
	// Linear is true if both models are linear
	Linear bool
	// State is the prior state
	State manifold.State
	// Process is the process model
	Process Process
	// ProcessNoise is the process noise identity
	ProcessNoise manifold.State
	// Input is the prediction measurement
	Input manifold.State
	// Dt is the prediction time step
	Dt float64
	// Measurement is the measurement model
	Measurement Measurement
	// MeasNoise is the measurement noise identity
	MeasNoise manifold.State
	// Meas is the update measurement
	Meas manifold.State
}

// Tol returns lin for linear fixtures and nonlin otherwise.
func (f *Fixture) Tol(lin, nonlin float64) float64 {
	if f.Linear {
		return lin
	}
	return nonlin
}

// Cov returns val*I sized for the fixture state.
func (f *Fixture) Cov(val float64) *mat.SymDense {
	n := f.State.Dim()
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		c.SetSym(i, i, val)
	}
	return c
}

// All returns all fixtures.
func All() []*Fixture {
	return []*Fixture{Linear(), Nonlinear()}
}

func vec3(x, y, z float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{x, y, z})
}

func eye3(val float64) []float64 {
	return []float64{val, 0, 0, 0, val, 0, 0, 0, val}
}

func block(n int, blocks [][]float64) *mat.Dense {
	cols := n
	rows := len(blocks) / (cols / 3) * 3
	d := mat.NewDense(rows, cols, nil)
	for b, vals := range blocks {
		br, bc := b/(cols/3)*3, b%(cols/3)*3
		d.Slice(br, br+3, bc, bc+3).(*mat.Dense).Copy(mat.NewDense(3, 3, vals))
	}
	return d
}

// Linear returns a constant velocity fixture with linear models.
// The state is position and velocity, the input acceleration and
// the measurements position and a mix of position and velocity.
func Linear() *Fixture {
	dt := 0.1
	zero := func() manifold.State {
		return manifold.NewState(manifold.ZeroVector(3), manifold.ZeroVector(3))
	}

	// A = [I dt*I; 0 I]
	A := mat.NewDense(6, 6, nil)
	A.Slice(0, 3, 0, 3).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(1)))
	A.Slice(0, 3, 3, 6).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(dt)))
	A.Slice(3, 6, 3, 6).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(1)))

	// B = [dt^2/2*I; dt*I]
	B := mat.NewDense(6, 3, nil)
	B.Slice(0, 3, 0, 3).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(dt*dt/2)))
	B.Slice(3, 6, 0, 3).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(dt)))

	// C = [I 0; I/2 I]
	C := mat.NewDense(6, 6, nil)
	C.Slice(0, 3, 0, 3).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(1)))
	C.Slice(3, 6, 0, 3).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(0.5)))
	C.Slice(3, 6, 3, 6).(*mat.Dense).Copy(mat.NewDense(3, 3, eye3(1)))

	I := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		I.Set(i, i, 1)
	}

	proc, err := model.NewDiscrete(A, B, I)
	if err != nil {
		panic(err)
	}

	meas, err := model.NewOutput(C, mat.DenseCopyOf(I))
	if err != nil {
		panic(err)
	}

	return &Fixture{
		Name:         "linear",
		Linear:       true,
		State:        manifold.NewState(manifold.NewVector(1, 2, 3), manifold.NewVector(0.5, -0.5, 1)),
		Process:      proc,
		ProcessNoise: zero(),
		Input:        manifold.NewState(manifold.NewVector(0.1, 0.2, -0.3)),
		Dt:           dt,
		Measurement:  meas,
		MeasNoise:    zero(),
		// innovation at the prior state is (10, -10, 10, 2, -2, 2)
		Meas: manifold.NewState(manifold.NewVector(-9, 12, -7), manifold.NewVector(-1, 2.5, 0.5)),
	}
}

// Nonlinear returns a fixture whose state is a position and an attitude.
func Nonlinear() *Fixture {
	zero := func() manifold.State {
		return manifold.NewState(manifold.ZeroVector(3), manifold.ZeroVector(3))
	}

	p := manifold.NewVector(0.5, -0.3, 0.4)
	q := manifold.RotationFromVector(vec3(0.3, -0.2, 0.5))
	x := manifold.NewState(p, q)

	// measurement yields innovation (10, -10, 10) in position
	// and a rotation by (0.3, 0.2, -0.25) at the prior state
	var zp mat.VecDense
	zp.MulVec(q.Matrix().T(), p.Vec())
	zp.SubVec(&zp, vec3(10, -10, 10))
	zq := manifold.RotationFromVector(vec3(-0.3, -0.2, 0.25)).Mul(q)

	return &Fixture{
		Name:         "nonlinear",
		State:        x,
		Process:      Kinematic{},
		ProcessNoise: zero(),
		Input:        manifold.NewState(manifold.NewVector(0.1, -0.2, 0.3), manifold.NewVector(1, 0.5, -0.2)),
		Dt:           0.1,
		Measurement:  Pose{},
		MeasNoise:    zero(),
		Meas:         manifold.NewState(manifold.VectorFrom(&zp), zq),
	}
}

// Kinematic propagates position p and attitude q of a body moving with
// body frame angular rate w and velocity v given as the input (w, v):
//
//	p' = p + dt*R(q)*v + n_p
//	q' = Exp(n_q)*Exp(dt*w)*q
type Kinematic struct{}

// Propagate implements filter.Propagator.
func (Kinematic) Propagate(x, u, n manifold.State, dt float64) manifold.State {
	q := x.Rotation(1)
	w, v := u.Vector(0).Vec(), u.Vector(1).Vec()

	// p + dt*R(q)*v + n_p
	p := x.Vector(0).Vec()
	p.AddScaledVec(p, dt, q.Rotate(v))
	p.AddVec(p, n.Vector(0).Vec())

	w.ScaleVec(dt, w)
	qn := manifold.RotationFromVector(n.Vector(1).Vec()).Mul(manifold.RotationFromVector(w)).Mul(q)

	return manifold.NewState(manifold.VectorFrom(p), qn)
}

// JacInput implements filter.Propagator.
//
//	F = [I -dt*[R(q)*v]x; 0 R(Exp(dt*w))]
func (Kinematic) JacInput(x, u manifold.State, dt float64) *mat.Dense {
	q := x.Rotation(1)
	w, v := u.Vector(0).Vec(), u.Vector(1).Vec()

	rv := mat.NewDense(3, 3, nil)
	rv.Scale(-dt, manifold.Skew(q.Rotate(v)))

	w.ScaleVec(dt, w)
	rw := manifold.RotationFromVector(w).Matrix()

	return block(6, [][]float64{eye3(1), rv.RawMatrix().Data, eye3(0), rw.RawMatrix().Data})
}

// JacNoise implements filter.Propagator.
func (Kinematic) JacNoise(_, _ manifold.State, _ float64) *mat.Dense {
	return block(6, [][]float64{eye3(1), eye3(0), eye3(0), eye3(1)})
}

// Pose observes position p and attitude q against the measured
// position z_p expressed in the body frame and the measured attitude z_q:
//
//	y_p = R(q)'*(p + n_p) - z_p
//	y_q = Exp(n_q)*q*z_q^-1
type Pose struct{}

// Observe implements filter.Observer.
func (Pose) Observe(x, z, n manifold.State) manifold.State {
	q := x.Rotation(1)

	p := x.Vector(0).Vec()
	p.AddVec(p, n.Vector(0).Vec())

	var yp mat.VecDense
	yp.MulVec(q.Matrix().T(), p)
	yp.SubVec(&yp, z.Vector(0).Vec())

	yq := manifold.RotationFromVector(n.Vector(1).Vec()).Mul(q).Mul(z.Rotation(1).Inverse())

	return manifold.NewState(manifold.VectorFrom(&yp), yq)
}

// JacInput implements filter.Observer.
//
//	H = [R' R'*[p]x; 0 I]
func (Pose) JacInput(x, _ manifold.State) *mat.Dense {
	rt := x.Rotation(1).Matrix().T()

	var rp mat.Dense
	rp.Mul(rt, manifold.Skew(x.Vector(0).Vec()))

	return block(6, [][]float64{mat.DenseCopyOf(rt).RawMatrix().Data, rp.RawMatrix().Data, eye3(0), eye3(1)})
}

// JacNoise implements filter.Observer.
//
//	Hn = [R' 0; 0 I]
func (Pose) JacNoise(x, _ manifold.State) *mat.Dense {
	rt := mat.DenseCopyOf(x.Rotation(1).Matrix().T())

	return block(6, [][]float64{rt.RawMatrix().Data, eye3(0), eye3(0), eye3(1)})
}

// Diff returns the norm of the tangent difference a ⊟ b.
func Diff(a, b manifold.State) float64 {
	return mat.Norm(a.BoxMinus(b), 2)
}

// CovDiff returns the Frobenius norm of a - b.
func CovDiff(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	return mat.Norm(&d, 2)
}
