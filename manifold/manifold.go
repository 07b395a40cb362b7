// Package manifold provides concrete manifolds usable as filter states,
// noises and innovations: Euclidean vectors, 3D rotations and their products.
package manifold

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Element is a factor of the product manifold State.
type Element interface {
	// Dim returns the dimension of the tangent space
	Dim() int
	// String implements the Stringer interface
	String() string

	plus(dv []float64) Element
	minus(ref Element) []float64
	identity() Element
	random(r *rand.Rand) Element
}

func checkLen(what string, want, got int) {
	if want != got {
		panic(fmt.Sprintf("%s: invalid tangent dimension: want %d, got %d", what, want, got))
	}
}

func rawVec(dv mat.Vector) []float64 {
	out := make([]float64, dv.Len())
	for i := range out {
		out[i] = dv.AtVec(i)
	}
	return out
}

// Skew returns the skew symmetric cross product matrix [v]x of the 3-vector v.
func Skew(v mat.Vector) *mat.Dense {
	checkLen("skew", 3, v.Len())
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)
	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}
