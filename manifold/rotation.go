package manifold

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Rotation is an element of SO(3) stored as a unit quaternion.
//
// Its chart perturbs on the left:
//
//	q ⊞ v = Exp(v)*q
//	a ⊟ b = Log(a*b^-1)
type Rotation struct {
	q quat.Number
}

// IdentityRotation returns the identity rotation.
func IdentityRotation() Rotation {
	return Rotation{q: quat.Number{Real: 1}}
}

// NewRotation returns the rotation represented by the quaternion q.
// q is normalized. It panics if q is zero.
func NewRotation(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		panic("manifold: zero quaternion")
	}
	return Rotation{q: quat.Scale(1/n, q)}
}

// RotationFromVector returns the rotation with the rotation vector v,
// i.e. the rotation by |v| radians about v.
func RotationFromVector(v mat.Vector) Rotation {
	checkLen("rotation", 3, v.Len())
	return Rotation{q: expMap(v.AtVec(0), v.AtVec(1), v.AtVec(2))}
}

func expMap(x, y, z float64) quat.Number {
	return quat.Exp(quat.Number{Imag: x / 2, Jmag: y / 2, Kmag: z / 2})
}

// Quat returns the unit quaternion of the rotation.
func (r Rotation) Quat() quat.Number {
	return r.q
}

// Dim returns 3.
func (r Rotation) Dim() int {
	return 3
}

// Log returns the rotation vector of r with angle in [0, pi].
func (r Rotation) Log() *mat.VecDense {
	q := r.q
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	l := quat.Log(q)
	return mat.NewVecDense(3, []float64{2 * l.Imag, 2 * l.Jmag, 2 * l.Kmag})
}

// Mul returns the composition r*o.
func (r Rotation) Mul(o Rotation) Rotation {
	return NewRotation(quat.Mul(r.q, o.q))
}

// Inverse returns the inverse rotation.
func (r Rotation) Inverse() Rotation {
	return Rotation{q: quat.Conj(r.q)}
}

// Rotate rotates the 3-vector v.
func (r Rotation) Rotate(v mat.Vector) *mat.VecDense {
	checkLen("rotation", 3, v.Len())
	p := quat.Number{Imag: v.AtVec(0), Jmag: v.AtVec(1), Kmag: v.AtVec(2)}
	p = quat.Mul(quat.Mul(r.q, p), quat.Conj(r.q))
	return mat.NewVecDense(3, []float64{p.Imag, p.Jmag, p.Kmag})
}

// Matrix returns the 3x3 rotation matrix of r.
func (r Rotation) Matrix() *mat.Dense {
	w, x, y, z := r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// BoxPlus returns Exp(dv)*r.
func (r Rotation) BoxPlus(dv mat.Vector) Rotation {
	return RotationFromVector(dv).Mul(r)
}

// BoxMinus returns Log(r*ref^-1).
func (r Rotation) BoxMinus(ref Rotation) *mat.VecDense {
	return r.Mul(ref.Inverse()).Log()
}

// Identity returns the identity rotation.
func (r Rotation) Identity() Rotation {
	return IdentityRotation()
}

// Random returns a rotation whose rotation vector is drawn from a standard normal distribution.
func (r Rotation) Random(seed uint64) Rotation {
	return randomRotation(rand.New(rand.NewSource(seed)))
}

func randomRotation(rnd *rand.Rand) Rotation {
	return Rotation{q: expMap(rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64())}
}

func (r Rotation) plus(dv []float64) Element {
	return r.BoxPlus(mat.NewVecDense(len(dv), dv))
}

func (r Rotation) minus(ref Element) []float64 {
	return rawVec(r.BoxMinus(ref.(Rotation)))
}

func (r Rotation) identity() Element { return IdentityRotation() }

func (r Rotation) random(rnd *rand.Rand) Element { return randomRotation(rnd) }

// String implements the Stringer interface.
func (r Rotation) String() string {
	return fmt.Sprintf("Rotation{w=%g x=%g y=%g z=%g}", r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag)
}
