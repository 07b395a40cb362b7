package coupled

import (
	"errors"
	"testing"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/internal/testmodel"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/kalman/predict"
	"github.com/milosgajdos/go-mkf/kalman/update"
	"github.com/milosgajdos/go-mkf/manifold"
	"github.com/milosgajdos/go-mkf/noise"
	"github.com/milosgajdos/go-mkf/outlier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type (
	stateCoupled    = PredictUpdate[manifold.State, manifold.State, manifold.State, manifold.State, manifold.State]
	statePrediction = predict.Prediction[manifold.State, manifold.State, manifold.State]
)

func newModels(t *testing.T, fx *testmodel.Fixture) (*stateCoupled, *statePrediction) {
	pred, err := predict.New(fx.Process, noise.NewDefault(fx.ProcessNoise), nil)
	require.NoError(t, err)

	c, err := New(fx.Measurement, noise.NewDefault(fx.MeasNoise), pred.Noise(), nil)
	require.NoError(t, err)

	return c, pred
}

// correlation couples the first three process and measurement noise dimensions.
func correlation() *mat.Dense {
	c := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		c.Set(i, i, 0.00009)
	}
	return c
}

func newDetector(t *testing.T) *outlier.Detector {
	od, err := outlier.New(outlier.Group{Name: "position", Start: 0, Dim: 3, Enabled: true})
	require.NoError(t, err)
	return od
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	fx := testmodel.Nonlinear()
	c, pred := newModels(t, fx)

	assert.True(c.CoupledToPrediction())
	assert.False(c.Update.CoupledToPrediction())
	assert.Equal(kalman.EKF, c.Config().Mode)
	assert.True(mat.Equal(mat.NewDense(6, 6, nil), c.Correlation()))

	assert.NoError(c.SetCorrelation(correlation()))
	assert.True(mat.Equal(correlation(), c.Correlation()))

	err := c.SetCorrelation(mat.NewDense(3, 6, nil))
	assert.True(errors.Is(err, filter.ErrDimension))

	_, err = New[manifold.State, manifold.State, manifold.State, manifold.State, manifold.State](fx.Measurement, noise.NewDefault(fx.MeasNoise), nil, nil)
	assert.Error(err)

	// prediction noise must match the correlation shape
	small, err := New(fx.Measurement, noise.NewDefault(fx.MeasNoise), noise.NewDefault(manifold.NewState(manifold.NewVector(0, 0, 0))), nil)
	require.NoError(t, err)
	x := fx.State
	err = EKF(small, &x, fx.Cov(1e-4), fx.Meas, pred, fx.Input, fx.Dt, nil)
	assert.True(errors.Is(err, filter.ErrDimension))
	err = UKF(small, &x, fx.Cov(1e-4), fx.Meas, pred, fx.Input, fx.Dt, nil)
	assert.True(errors.Is(err, filter.ErrDimension))
}

func TestEKFSequential(t *testing.T) {
	for _, fx := range testmodel.All() {
		for _, gated := range []bool{false, true} {
			t.Run(fx.Name, func(t *testing.T) {
				assert := assert.New(t)

				c, pred := newModels(t, fx)

				var od, ods *outlier.Detector
				if gated {
					od, ods = newDetector(t), newDetector(t)
				}

				x, p := fx.State, fx.Cov(1e-4)
				require.NoError(t, EKF(c, &x, p, fx.Meas, pred, fx.Input, fx.Dt, od))

				xs, ps := fx.State, fx.Cov(1e-4)
				require.NoError(t, pred.EKF(&xs, ps, fx.Input, fx.Dt))
				require.NoError(t, c.Update.EKF(&xs, ps, fx.Meas, filter.Current, ods))

				assert.Less(testmodel.Diff(xs, x), fx.Tol(1e-10, 1e-8))
				assert.Less(testmodel.CovDiff(ps, p), 1e-12)
			})
		}
	}
}

func TestUKFSequential(t *testing.T) {
	for _, fx := range testmodel.All() {
		for _, gated := range []bool{false, true} {
			t.Run(fx.Name, func(t *testing.T) {
				assert := assert.New(t)

				c, pred := newModels(t, fx)

				var od, ods *outlier.Detector
				if gated {
					od, ods = newDetector(t), newDetector(t)
				}

				x, p := fx.State, fx.Cov(1e-6)
				require.NoError(t, UKF(c, &x, p, fx.Meas, pred, fx.Input, fx.Dt, od))

				xs, ps := fx.State, fx.Cov(1e-6)
				require.NoError(t, pred.UKF(&xs, ps, fx.Input, fx.Dt))
				require.NoError(t, c.Update.UKF(&xs, ps, fx.Meas, ods))

				assert.Less(testmodel.Diff(xs, x), fx.Tol(1e-9, 1e-4))
				assert.Less(testmodel.CovDiff(ps, p), fx.Tol(1e-12, 1e-6))
			})
		}
	}
}

func TestCompareEKFUKF(t *testing.T) {
	for _, fx := range testmodel.All() {
		for _, correlated := range []bool{false, true} {
			t.Run(fx.Name, func(t *testing.T) {
				assert := assert.New(t)

				c, pred := newModels(t, fx)
				if correlated {
					require.NoError(t, c.SetCorrelation(correlation()))
				}

				xEKF, pEKF := fx.State, fx.Cov(1e-4)
				require.NoError(t, EKF(c, &xEKF, pEKF, fx.Meas, pred, fx.Input, fx.Dt, nil))

				xUKF, pUKF := fx.State, fx.Cov(1e-4)
				require.NoError(t, UKF(c, &xUKF, pUKF, fx.Meas, pred, fx.Input, fx.Dt, nil))

				assert.Less(testmodel.Diff(xEKF, xUKF), fx.Tol(1e-9, 2e-2))
				assert.Less(testmodel.CovDiff(pEKF, pUKF), fx.Tol(1e-12, 8e-5))
			})
		}
	}
}

func TestCorrelationMatters(t *testing.T) {
	for _, fx := range testmodel.All() {
		t.Run(fx.Name, func(t *testing.T) {
			assert := assert.New(t)

			c, pred := newModels(t, fx)

			xEKF, pEKF := fx.State, fx.Cov(1e-4)
			require.NoError(t, EKF(c, &xEKF, pEKF, fx.Meas, pred, fx.Input, fx.Dt, nil))

			require.NoError(t, c.SetCorrelation(correlation()))
			xUKF, pUKF := fx.State, fx.Cov(1e-4)
			require.NoError(t, UKF(c, &xUKF, pUKF, fx.Meas, pred, fx.Input, fx.Dt, nil))

			assert.Greater(testmodel.Diff(xEKF, xUKF), 1e-1)
			assert.Greater(testmodel.CovDiff(pEKF, pUKF), 1e-5)
		})
	}
}

func TestOutlier(t *testing.T) {
	for _, fx := range testmodel.All() {
		t.Run(fx.Name, func(t *testing.T) {
			assert := assert.New(t)

			c, pred := newModels(t, fx)
			require.NoError(t, c.SetCorrelation(correlation()))

			od := newDetector(t)
			xEKF, pEKF := fx.State, fx.Cov(1e-4)
			require.NoError(t, EKF(c, &xEKF, pEKF, fx.Meas, pred, fx.Input, fx.Dt, od))
			out, err := od.Outlier("position")
			assert.NoError(err)
			assert.True(out)

			K := c.Gain()
			for i := 0; i < 6; i++ {
				for j := 0; j < 3; j++ {
					assert.Equal(0.0, K.At(i, j))
				}
			}

			xUKF, pUKF := fx.State, fx.Cov(1e-4)
			require.NoError(t, UKF(c, &xUKF, pUKF, fx.Meas, pred, fx.Input, fx.Dt, od))
			out, _ = od.Outlier("position")
			assert.True(out)

			assert.Less(testmodel.Diff(xEKF, xUKF), fx.Tol(1e-9, 2e-2))
			assert.Less(testmodel.CovDiff(pEKF, pUKF), fx.Tol(1e-12, 8e-5))
		})
	}
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	fx := testmodel.Nonlinear()
	pred, err := predict.New(fx.Process, noise.NewDefault(fx.ProcessNoise), nil)
	require.NoError(t, err)

	cfg := update.DefaultConfig()
	cfg.Mode = kalman.UKF
	c, err := New(fx.Measurement, noise.NewDefault(fx.MeasNoise), pred.Noise(), &cfg)
	require.NoError(t, err)

	x, p := fx.State, fx.Cov(1e-4)
	require.NoError(t, Run(c, &x, p, fx.Meas, pred, fx.Input, fx.Dt, nil))

	xUKF, pUKF := fx.State, fx.Cov(1e-4)
	require.NoError(t, UKF(c, &xUKF, pUKF, fx.Meas, pred, fx.Input, fx.Dt, nil))
	assert.Less(testmodel.Diff(xUKF, x), 1e-15)
	assert.Less(testmodel.CovDiff(pUKF, p), 1e-15)

	cfg.Mode = kalman.IEKF
	c, err = New(fx.Measurement, noise.NewDefault(fx.MeasNoise), pred.Noise(), &cfg)
	require.NoError(t, err)
	err = Run(c, &x, p, fx.Meas, pred, fx.Input, fx.Dt, nil)
	assert.True(errors.Is(err, kalman.ErrUnsupportedMode))
}
