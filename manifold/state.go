package manifold

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// State is an ordered product of manifold elements.
// Its tangent vector is the concatenation of the tangent vectors of its elements.
type State struct {
	elems []Element
	dim   int
}

// NewState returns the product of the given elements.
// It panics if no elements are given.
func NewState(elems ...Element) State {
	if len(elems) == 0 {
		panic("manifold: empty state")
	}
	s := State{elems: make([]Element, len(elems))}
	copy(s.elems, elems)
	for _, e := range elems {
		s.dim += e.Dim()
	}
	return s
}

// Dim returns the dimension of the tangent space.
func (s State) Dim() int {
	return s.dim
}

// Len returns the number of elements.
func (s State) Len() int {
	return len(s.elems)
}

// Element returns the i-th element.
func (s State) Element(i int) Element {
	return s.elems[i]
}

// Vector returns the i-th element as a Vector. It panics if it is not one.
func (s State) Vector(i int) Vector {
	return s.elems[i].(Vector)
}

// Rotation returns the i-th element as a Rotation. It panics if it is not one.
func (s State) Rotation(i int) Rotation {
	return s.elems[i].(Rotation)
}

// With returns a copy of s with the i-th element replaced by e.
// It panics if e has a different tangent dimension.
func (s State) With(i int, e Element) State {
	checkLen("state", s.elems[i].Dim(), e.Dim())
	out := State{elems: make([]Element, len(s.elems)), dim: s.dim}
	copy(out.elems, s.elems)
	out.elems[i] = e
	return out
}

// BoxPlus applies the element wise retraction of the matching slices of dv.
func (s State) BoxPlus(dv mat.Vector) State {
	checkLen("state", s.dim, dv.Len())
	raw := rawVec(dv)
	out := State{elems: make([]Element, len(s.elems)), dim: s.dim}
	off := 0
	for i, e := range s.elems {
		out.elems[i] = e.plus(raw[off : off+e.Dim()])
		off += e.Dim()
	}
	return out
}

// BoxMinus concatenates the element wise differences to ref.
// It panics if ref is not a product of the same manifolds.
func (s State) BoxMinus(ref State) *mat.VecDense {
	if len(s.elems) != len(ref.elems) || s.dim != ref.dim {
		panic(fmt.Sprintf("state: incompatible states: %d/%d elements, %d/%d dims",
			len(s.elems), len(ref.elems), s.dim, ref.dim))
	}
	out := make([]float64, 0, s.dim)
	for i, e := range s.elems {
		out = append(out, e.minus(ref.elems[i])...)
	}
	return mat.NewVecDense(s.dim, out)
}

// Identity returns the product of the identity elements.
func (s State) Identity() State {
	out := State{elems: make([]Element, len(s.elems)), dim: s.dim}
	for i, e := range s.elems {
		out.elems[i] = e.identity()
	}
	return out
}

// Random returns a random state of the same shape. The same seed yields the same state.
func (s State) Random(seed uint64) State {
	r := rand.New(rand.NewSource(seed))
	out := State{elems: make([]Element, len(s.elems)), dim: s.dim}
	for i, e := range s.elems {
		out.elems[i] = e.random(r)
	}
	return out
}

// String implements the Stringer interface.
func (s State) String() string {
	parts := make([]string, len(s.elems))
	for i, e := range s.elems {
		parts[i] = e.String()
	}
	return "State{" + strings.Join(parts, ", ") + "}"
}
