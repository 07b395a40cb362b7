package manifold

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Vector is an element of the Euclidean space R^n.
type Vector struct {
	v []float64
}

// NewVector returns a Vector with the given coordinates.
// It panics if no coordinates are given.
func NewVector(vals ...float64) Vector {
	if len(vals) == 0 {
		panic("manifold: zero length vector")
	}
	v := make([]float64, len(vals))
	copy(v, vals)
	return Vector{v: v}
}

// ZeroVector returns the origin of R^n.
func ZeroVector(n int) Vector {
	if n <= 0 {
		panic("manifold: zero length vector")
	}
	return Vector{v: make([]float64, n)}
}

// VectorFrom returns a Vector with the coordinates of v.
func VectorFrom(v mat.Vector) Vector {
	return Vector{v: rawVec(v)}
}

// Dim returns the dimension of the vector.
func (v Vector) Dim() int {
	return len(v.v)
}

// At returns the i-th coordinate.
func (v Vector) At(i int) float64 {
	return v.v[i]
}

// Vec returns the coordinates as a new vector.
func (v Vector) Vec() *mat.VecDense {
	return mat.NewVecDense(len(v.v), append([]float64(nil), v.v...))
}

// BoxPlus returns v + dv.
func (v Vector) BoxPlus(dv mat.Vector) Vector {
	return v.add(rawVec(dv))
}

// BoxMinus returns v - ref.
func (v Vector) BoxMinus(ref Vector) *mat.VecDense {
	return mat.NewVecDense(len(v.v), v.sub(ref))
}

// Identity returns the origin.
func (v Vector) Identity() Vector {
	return ZeroVector(len(v.v))
}

// Random returns a vector with standard normal coordinates drawn from the seeded source.
func (v Vector) Random(seed uint64) Vector {
	return v.randomVector(rand.New(rand.NewSource(seed)))
}

func (v Vector) add(dv []float64) Vector {
	checkLen("vector", len(v.v), len(dv))
	out := make([]float64, len(v.v))
	for i := range out {
		out[i] = v.v[i] + dv[i]
	}
	return Vector{v: out}
}

func (v Vector) sub(ref Vector) []float64 {
	checkLen("vector", len(v.v), len(ref.v))
	out := make([]float64, len(v.v))
	for i := range out {
		out[i] = v.v[i] - ref.v[i]
	}
	return out
}

func (v Vector) randomVector(r *rand.Rand) Vector {
	out := make([]float64, len(v.v))
	for i := range out {
		out[i] = r.NormFloat64()
	}
	return Vector{v: out}
}

func (v Vector) plus(dv []float64) Element { return v.add(dv) }

func (v Vector) minus(ref Element) []float64 { return v.sub(ref.(Vector)) }

func (v Vector) identity() Element { return v.Identity() }

func (v Vector) random(r *rand.Rand) Element { return v.randomVector(r) }

// String implements the Stringer interface.
func (v Vector) String() string {
	return fmt.Sprintf("Vector%v", v.v)
}
