package noise

import (
	"errors"
	"testing"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/manifold"
	"github.com/milosgajdos/go-mkf/sigma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func newZero() manifold.State {
	return manifold.NewState(
		manifold.NewVector(5, 5),
		manifold.RotationFromVector(mat.NewVecDense(3, []float64{1, 0, 0})),
	)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	n, err := New(newZero(), nil)
	assert.NoError(err)
	assert.Equal(5, n.Dim())

	// noise is centered at identity
	id := n.Identity()
	assert.InDeltaSlice(make([]float64, 5), id.BoxMinus(id.Identity()).RawVector().Data, 1e-15)

	cov := n.Cov()
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			want := 0.0
			if i == j {
				want = DefaultVariance
			}
			assert.Equal(want, cov.At(i, j))
		}
	}

	_, err = New(newZero(), mat.NewSymDense(2, nil))
	assert.True(errors.Is(err, filter.ErrDimension))

	neg := mat.NewSymDense(5, nil)
	neg.SetSym(3, 3, -1)
	_, err = New(newZero(), neg)
	assert.Error(err)

	_, err = New(manifold.Vector{}, nil)
	assert.True(errors.Is(err, filter.ErrDimension))
	assert.Panics(func() { NewDefault(manifold.Vector{}) })
}

func TestSetCov(t *testing.T) {
	assert := assert.New(t)

	n := NewDefault(manifold.NewVector(0, 0))
	c := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	assert.NoError(n.SetCov(c))
	assert.True(mat.Equal(c, n.Cov()))

	// returned covariance is a copy
	n.Cov().(*mat.SymDense).SetSym(0, 0, 100)
	assert.Equal(2.0, n.Cov().At(0, 0))

	assert.Error(n.SetCov(mat.NewSymDense(3, nil)))
}

func TestSigmaPoints(t *testing.T) {
	assert := assert.New(t)

	n := NewDefault(newZero())
	s, err := n.SigmaPoints(sigma.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(11, s.Len())

	m := s.Mean()
	assert.InDeltaSlice(make([]float64, 5), m.BoxMinus(n.Identity()).RawVector().Data, 1e-10)
	assert.True(mat.EqualApprox(n.Cov(), s.Cov(m), 1e-12))
}

func TestSample(t *testing.T) {
	assert := assert.New(t)

	n := NewDefault(manifold.NewVector(0, 0, 0))

	a, err := n.Sample(rand.NewSource(7))
	assert.NoError(err)
	b, err := n.Sample(rand.NewSource(7))
	assert.NoError(err)
	assert.Equal(a.Vec().RawVector().Data, b.Vec().RawVector().Data)

	// empirical covariance approaches the noise covariance
	src := rand.NewSource(11)
	const count = 20000
	sum := 0.0
	for i := 0; i < count; i++ {
		s, err := n.Sample(src)
		require.NoError(t, err)
		sum += s.At(0) * s.At(0)
	}
	assert.InDelta(DefaultVariance, sum/count, 0.1*DefaultVariance)

	z := NewDefault(manifold.NewVector(0))
	require.NoError(t, z.SetCov(mat.NewSymDense(1, nil)))
	_, err = z.Sample(src)
	assert.True(errors.Is(err, filter.ErrNotPositiveDefinite))
}

func TestString(t *testing.T) {
	n := NewDefault(manifold.NewVector(0))
	assert.Contains(t, n.String(), "Dim=1")
}
