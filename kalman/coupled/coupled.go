// Package coupled implements a joint prediction and update step for
// process and measurement noises that are correlated with each other.
package coupled

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/kalman/predict"
	"github.com/milosgajdos/go-mkf/kalman/update"
	"github.com/milosgajdos/go-mkf/noise"
	"github.com/milosgajdos/go-mkf/outlier"
	"github.com/milosgajdos/go-mkf/sigma"
	"gonum.org/v1/gonum/mat"
)

// PredictUpdate is an update model whose measurement noise N is correlated
// with the process noise PN of the prediction preceding it.
// It runs prediction and update as a single step.
type PredictUpdate[S filter.Manifold[S], M any, I filter.Manifold[I], N filter.Manifold[N], PN filter.Manifold[PN]] struct {
	*update.Update[S, M, I, N]
	// corr is the cross covariance of process and measurement noise
	corr *mat.Dense
}

// New creates new PredictUpdate and returns it.
// It accepts the following arguments:
// - model:  measurement model
// - n:      measurement noise
// - pn:     process noise of the coupled prediction; only its shape is used
// - c:      update configuration; DefaultConfig if nil
// The noise correlation is initialized to zero.
// It returns error if the configuration is invalid.
func New[S filter.Manifold[S], M any, I filter.Manifold[I], N filter.Manifold[N], PN filter.Manifold[PN]](model filter.Observer[S, M, I, N], n *noise.Noise[N], pn *noise.Noise[PN], c *update.Config) (*PredictUpdate[S, M, I, N, PN], error) {
	if pn == nil {
		return nil, fmt.Errorf("prediction noise must be defined")
	}

	u, err := update.New(model, n, c)
	if err != nil {
		return nil, err
	}

	return &PredictUpdate[S, M, I, N, PN]{
		Update: u,
		corr:   mat.NewDense(pn.Dim(), n.Dim(), nil),
	}, nil
}

// CoupledToPrediction reports whether the update noise is correlated with the prediction noise.
func (c *PredictUpdate[S, M, I, N, PN]) CoupledToPrediction() bool {
	return true
}

// Correlation returns the cross covariance of process and measurement noise.
func (c *PredictUpdate[S, M, I, N, PN]) Correlation() mat.Matrix {
	return mat.DenseCopyOf(c.corr)
}

// SetCorrelation sets the cross covariance of process and measurement noise.
// It returns error if corr has invalid dimensions.
func (c *PredictUpdate[S, M, I, N, PN]) SetCorrelation(corr mat.Matrix) error {
	r, cols := c.corr.Dims()
	if err := kalman.CheckDims("noise correlation", corr, r, cols); err != nil {
		return err
	}

	c.corr.Copy(corr)

	return nil
}

func (c *PredictUpdate[S, M, I, N, PN]) checkPrediction(d int, p *mat.SymDense, pn int) error {
	if err := kalman.CheckDims("P", p, d, d); err != nil {
		return err
	}

	if r, _ := c.corr.Dims(); r != pn {
		return fmt.Errorf("invalid prediction noise dims: %d, correlation rows: %d: %w", pn, r, filter.ErrDimension)
	}

	return nil
}

// Run predicts and corrects x and its covariance p in place using the configured mode.
func Run[S filter.Manifold[S], PM any, M any, I filter.Manifold[I], N filter.Manifold[N], PN filter.Manifold[PN]](
	c *PredictUpdate[S, M, I, N, PN], x *S, p *mat.SymDense, m M,
	pred *predict.Prediction[S, PM, PN], pm PM, dt float64, od *outlier.Detector) error {
	switch c.Config().Mode {
	case kalman.EKF:
		return EKF(c, x, p, m, pred, pm, dt, od)
	case kalman.UKF:
		return UKF(c, x, p, m, pred, pm, dt, od)
	}

	return fmt.Errorf("coupled mode %v: %w", c.Config().Mode, kalman.ErrUnsupportedMode)
}

// EKF predicts x with pred and corrects it with measurement m in a single
// linearized step accounting for the noise correlation Qc:
//
//	xp  = f(x, pm, 0, dt)
//	Pp  = F*P*F' + Fn*Q*Fn'
//	C   = Fn*Qc*Hn'
//	Py  = H*Pp*H' + Hn*R*Hn' + H*C + C'*H'
//	Pxy = Pp*H' + C
//	x   = xp ⊞ -Pxy*Py^-1*inn
//	P   = Pp - K*Py*K'
//
// With zero correlation it equals pred.EKF followed by an EKF update.
func EKF[S filter.Manifold[S], PM any, M any, I filter.Manifold[I], N filter.Manifold[N], PN filter.Manifold[PN]](
	c *PredictUpdate[S, M, I, N, PN], x *S, p *mat.SymDense, m M,
	pred *predict.Prediction[S, PM, PN], pm PM, dt float64, od *outlier.Detector) error {
	if err := c.checkPrediction((*x).Dim(), p, pred.Noise().Dim()); err != nil {
		return err
	}

	f, fn, err := pred.Linearize(*x, pm, dt)
	if err != nil {
		return err
	}

	// F*P*F' + Fn*Q*Fn'
	pp := kalman.Sandwich(f, p)
	pp.AddSym(pp, kalman.Sandwich(fn, pred.Noise().Cov()))

	xp := pred.Eval(*x, pm, dt)

	h, hn, y, err := c.Linearize(xp, m)
	if err != nil {
		return err
	}

	// Fn*Qc*Hn'
	var cc mat.Dense
	cc.Product(fn, c.corr, hn.T())

	// H*Pp*H' + Hn*R*Hn' + H*C + C'*H'
	var hc mat.Dense
	hc.Mul(h, &cc)
	py := mat.DenseCopyOf(kalman.Sandwich(h, pp))
	py.Add(py, kalman.Sandwich(hn, c.Noise().Cov()))
	py.Add(py, &hc)
	py.Add(py, hc.T())

	// H*Pp + C'
	var pyx mat.Dense
	pyx.Mul(h, pp)
	pyx.Add(&pyx, cc.T())

	inn := y.BoxMinus(y.Identity())
	if od != nil {
		if err := od.Apply(inn, py, &pyx); err != nil {
			return err
		}
	}

	k, err := kalman.Gain(&pyx, py)
	if err != nil {
		return err
	}

	corr := kalman.Correction(k, inn, nil, nil)

	*x = xp.BoxPlus(corr)
	p.CopySym(kalman.PostCov(pp, k, py))
	c.Record(inn, k, 1, mat.Norm(corr, 2))

	return nil
}

// UKF predicts x with pred and corrects it with measurement m using sigma
// points of the joint state, process noise and measurement noise distribution
//
//	[P 0  0 ]
//	[0 Q  Qc]
//	[0 Qc' R]
//
// State sigma points are propagated through the process model and observed
// together with the measurement noise sigma points.
func UKF[S filter.Manifold[S], PM any, M any, I filter.Manifold[I], N filter.Manifold[N], PN filter.Manifold[PN]](
	c *PredictUpdate[S, M, I, N, PN], x *S, p *mat.SymDense, m M,
	pred *predict.Prediction[S, PM, PN], pm PM, dt float64, od *outlier.Detector) error {
	d, dpn := (*x).Dim(), pred.Noise().Dim()
	if err := c.checkPrediction(d, p, dpn); err != nil {
		return err
	}

	w, err := sigma.NewWeights(c.Config().Sigma, d+dpn+c.Noise().Dim())
	if err != nil {
		return err
	}

	joint := kalman.BlockDiag(p, pred.Noise().Cov(), c.Noise().Cov())
	r, cols := c.corr.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			joint.SetSym(d+i, d+dpn+j, c.corr.At(i, j))
		}
	}

	s, err := sigma.Factor(joint, w.Gamma)
	if err != nil {
		return err
	}

	xs, err := sigma.Sample(w, *x, s, 0)
	if err != nil {
		return err
	}

	pns, err := sigma.Sample(w, pred.Noise().Identity(), s, d)
	if err != nil {
		return err
	}

	ns, err := sigma.Sample(w, c.Noise().Identity(), s, d+dpn)
	if err != nil {
		return err
	}

	xPoints := make([]S, w.Count())
	yPoints := make([]I, w.Count())
	for i := range xPoints {
		xPoints[i] = pred.Model().Propagate(xs.At(i), pm, pns.At(i), dt)
		yPoints[i] = c.Model().Observe(xPoints[i], m, ns.At(i))
	}

	xps, err := sigma.New(w, xPoints)
	if err != nil {
		return err
	}

	ys, err := sigma.New(w, yPoints)
	if err != nil {
		return err
	}

	xp := xps.Mean()
	pp := xps.Cov(xp)

	if err := c.CorrectSigma(&xp, pp, xps, ys, od); err != nil {
		return err
	}

	*x = xp
	p.CopySym(pp)

	return nil
}
