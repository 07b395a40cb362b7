package model

import (
	"os"
	"testing"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/manifold"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	_ filter.Propagator[manifold.State, manifold.State, manifold.State]               = (*Discrete)(nil)
	_ filter.Observer[manifold.State, manifold.State, manifold.State, manifold.State] = (*Output)(nil)
)

var (
	x, u, z, q, r manifold.State
	A, B, C, D, E *mat.Dense
)

func setup() {
	x = manifold.NewState(manifold.NewVector(0.5, 0.6))
	u = manifold.NewState(manifold.NewVector(-1.0))
	z = manifold.NewState(manifold.NewVector(-1.5))

	// state and output noise
	q = manifold.NewState(manifold.NewVector(0.1, -0.1))
	r = manifold.NewState(manifold.NewVector(0.2))

	A = mat.NewDense(2, 2, []float64{1.0, 1.0, 0.0, 1.0})
	B = mat.NewDense(2, 1, []float64{0.5, 1.0})
	C = mat.NewDense(1, 2, []float64{1.0, 0.0})
	D = mat.NewDense(1, 1, []float64{2.0})
	E = mat.NewDense(2, 2, []float64{1.0, 0.0, 0.0, 1.0})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestDiscrete(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDiscrete(A, B, E)
	assert.NoError(err)

	nx, nu, nw := d.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)
	assert.Equal(2, nw)

	next := d.Propagate(x, u, q, 0.1)
	// A*x + B*u + E*q
	assert.InDeltaSlice([]float64{1.1 - 0.5 + 0.1, 0.6 - 1.0 - 0.1}, next.Vector(0).Vec().RawVector().Data, 1e-12)

	assert.True(mat.Equal(A, d.JacInput(x, u, 0.1)))
	assert.True(mat.Equal(E, d.JacNoise(x, u, 0.1)))

	_, err = NewDiscrete(A, mat.NewDense(3, 1, nil), E)
	assert.Error(err)
	_, err = NewDiscrete(nil, B, E)
	assert.Error(err)

	rot := manifold.NewState(manifold.IdentityRotation())
	assert.Panics(func() { d.Propagate(rot, u, q, 0.1) })
}

func TestOutput(t *testing.T) {
	assert := assert.New(t)

	o, err := NewOutput(C, D)
	assert.NoError(err)

	nx, ny, nv := o.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, ny)
	assert.Equal(1, nv)

	y := o.Observe(x, z, r)
	// C*x + D*r - z
	assert.InDeltaSlice([]float64{0.5 + 0.4 + 1.5}, y.Vector(0).Vec().RawVector().Data, 1e-12)

	assert.True(mat.Equal(C, o.JacInput(x, z)))
	assert.True(mat.Equal(D, o.JacNoise(x, z)))

	_, err = NewOutput(C, mat.NewDense(2, 1, nil))
	assert.Error(err)
}
