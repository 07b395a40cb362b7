// Package kalman contains the Kalman algebra shared by the prediction,
// update and coupled predict-update models.
package kalman

import (
	"errors"
	"fmt"
	"strings"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ErrUnsupportedMode is returned when a model can't run in the requested mode.
var ErrUnsupportedMode = errors.New("unsupported filtering mode")

// Mode selects the filtering algorithm.
type Mode int

const (
	// EKF linearizes the models with Jacobians
	EKF Mode = iota
	// UKF propagates sigma points through the models
	UKF
	// IEKF iterates EKF update re-linearizing at the corrected state
	IEKF
)

var modeNames = map[Mode]string{
	EKF:  "ekf",
	UKF:  "ukf",
	IEKF: "iekf",
}

// String implements the Stringer interface.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for mode, name := range modeNames {
		if name == s {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// JacobianFD computes the Jacobian of f at x with central differences of step delta.
// Column j holds (f(x ⊞ delta*e_j) ⊟ f(x ⊞ -delta*e_j)) / (2*delta).
func JacobianFD[X filter.Manifold[X], Y filter.Manifold[Y]](x X, f func(X) Y, delta float64) *mat.Dense {
	y0 := f(x)
	jac := mat.NewDense(y0.Dim(), x.Dim(), nil)

	fd.Jacobian(jac, func(y, dv []float64) {
		d := f(x.BoxPlus(mat.NewVecDense(len(dv), dv))).BoxMinus(y0)
		for i := range y {
			y[i] = d.AtVec(i)
		}
	}, make([]float64, x.Dim()), &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    delta,
	})

	return jac
}

// CheckDims returns error if m is not a [r x c] matrix.
func CheckDims(name string, m mat.Matrix, r, c int) error {
	if m == nil {
		return fmt.Errorf("%s is nil: %w", name, filter.ErrDimension)
	}
	if mr, mc := m.Dims(); mr != r || mc != c {
		return fmt.Errorf("invalid %s dims: [%d x %d], expected: [%d x %d]: %w", name, mr, mc, r, c, filter.ErrDimension)
	}
	return nil
}

// Symmetrize returns (m + m')/2 for a square matrix m.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}

// BlockDiag returns the block diagonal matrix of the given covariances.
func BlockDiag(blocks ...mat.Symmetric) *mat.SymDense {
	n := 0
	for _, b := range blocks {
		n += b.SymmetricDim()
	}

	s := mat.NewSymDense(n, nil)
	off := 0
	for _, b := range blocks {
		d := b.SymmetricDim()
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				s.SetSym(off+i, off+j, b.At(i, j))
			}
		}
		off += d
	}

	return s
}

// Gain computes the Kalman gain K = Pxy*Py^-1 from the cross covariance
// Pyx = Pxy' and the innovation covariance Py.
// It returns error wrapping filter.ErrNotPositiveDefinite if Py is not positive definite.
func Gain(pyx mat.Matrix, py mat.Matrix) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(Symmetrize(py)); !ok {
		return nil, fmt.Errorf("innovation covariance: %w", filter.ErrNotPositiveDefinite)
	}

	// K' = Py^-1*Pyx
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pyx); err != nil {
		return nil, fmt.Errorf("failed to calculate Kalman gain: %w", err)
	}

	return mat.DenseCopyOf(kt.T()), nil
}

// Correction is the tangent correction -K*(inn - H*dv) of a linearized update
// with gain k, innovation inn and innovation Jacobian h at tangent offset dv.
// h and dv are ignored if h is nil.
func Correction(k mat.Matrix, inn mat.Vector, h mat.Matrix, dv mat.Vector) *mat.VecDense {
	r := mat.VecDenseCopyOf(inn)
	if h != nil {
		var hdv mat.VecDense
		hdv.MulVec(h, dv)
		r.SubVec(r, &hdv)
	}

	rows, _ := k.Dims()
	corr := mat.NewVecDense(rows, nil)
	corr.MulVec(k, r)
	corr.ScaleVec(-1, corr)

	return corr
}

// PostCov returns the corrected covariance P - K*Py*K'.
func PostCov(p mat.Symmetric, k, py mat.Matrix) *mat.SymDense {
	// K*Py*K'
	var kpyk mat.Dense
	kpyk.Product(k, py, k.T())

	var post mat.Dense
	post.Sub(p, &kpyk)

	return Symmetrize(&post)
}

// Sandwich returns the symmetric product A*P*A'.
func Sandwich(a mat.Matrix, p mat.Matrix) *mat.SymDense {
	var apa mat.Dense
	apa.Product(a, p, a.T())

	return Symmetrize(&apa)
}

// Diagnostics records the outcome of the last correction.
type Diagnostics struct {
	inn  *mat.VecDense
	k    *mat.Dense
	iter int
	norm float64
}

// Record stores the innovation, gain, number of iterations and the
// norm of the last tangent correction.
func (d *Diagnostics) Record(inn *mat.VecDense, k *mat.Dense, iter int, norm float64) {
	d.inn, d.k, d.iter, d.norm = inn, k, iter, norm
}

// Innovation returns the tangent innovation of the last correction.
// It returns nil before the first correction.
func (d *Diagnostics) Innovation() mat.Vector {
	if d.inn == nil {
		return nil
	}
	return mat.VecDenseCopyOf(d.inn)
}

// Gain returns the Kalman gain of the last correction.
// It returns nil before the first correction.
func (d *Diagnostics) Gain() mat.Matrix {
	if d.k == nil {
		return nil
	}
	return mat.DenseCopyOf(d.k)
}

// Iterations returns the number of linearizations of the last correction.
func (d *Diagnostics) Iterations() int {
	return d.iter
}

// UpdateNorm returns the norm of the last tangent correction.
func (d *Diagnostics) UpdateNorm() float64 {
	return d.norm
}
