package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/outlier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const full = `
prediction:
  mode: ukf
  sigma: {alpha: 0.5}
  noise: [1e-4, 1e-4, 2e-4]
update:
  mode: IEKF
  maxIterations: 5
  updateNormTermination: 1e-8
  noise: [1e-2, 1e-2]
outlier:
  - {name: position, start: 0, dim: 3, threshold: 11.3, enabled: true}
  - {name: attitude, start: 3, dim: 3}
`

var approx = cmp.Options{cmpopts.EquateApprox(0, 1e-12), cmpopts.EquateEmpty()}

func TestLoadDefault(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(strings.NewReader(""))
	assert.NoError(err)
	assert.Empty(cmp.Diff(Default(), c, approx))

	c, err = Load(strings.NewReader("update:\n  maxIterations: 3\n"))
	assert.NoError(err)
	assert.Equal(3, c.Update.MaxIterations)
	assert.Equal(Default().Update.UpdateNormTermination, c.Update.UpdateNormTermination)
	assert.Equal(Default().Prediction, c.Prediction)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(strings.NewReader(full))
	require.NoError(t, err)

	want := Default()
	want.Prediction.Mode = kalman.UKF
	want.Prediction.Sigma.Alpha = 0.5
	want.Prediction.Noise = []float64{1e-4, 1e-4, 2e-4}
	want.Update.Mode = kalman.IEKF
	want.Update.MaxIterations = 5
	want.Update.UpdateNormTermination = 1e-8
	want.Update.Noise = []float64{1e-2, 1e-2}
	want.Outlier = []outlier.Group{
		{Name: "position", Start: 0, Dim: 3, Threshold: 11.3, Enabled: true},
		{Name: "attitude", Start: 3, Dim: 3},
	}

	if diff := cmp.Diff(want, c, approx); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	// unspecified sigma parameters keep their defaults
	assert.Equal(2.0, c.Prediction.Sigma.Beta)

	od, err := c.Detector()
	assert.NoError(err)
	groups := od.Groups()
	assert.Len(groups, 2)
	assert.Equal(11.3, groups[0].Threshold)
	assert.InDelta(outlier.Threshold(3, outlier.DefaultProbability), groups[1].Threshold, 1e-12)
	assert.False(groups[1].Enabled)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		err  error
	}{
		{"syntax", "prediction: [", nil},
		{"unknown field", "prediction:\n  foo: 1\n", nil},
		{"mode", "update:\n  mode: pf\n", kalman.ErrUnsupportedMode},
		{"prediction iekf", "prediction:\n  mode: iekf\n", kalman.ErrUnsupportedMode},
		{"alpha", "prediction:\n  sigma: {alpha: 0}\n", nil},
		{"iterations", "update:\n  maxIterations: 0\n", nil},
		{"overlap", "outlier:\n  - {name: a, start: 0, dim: 3}\n  - {name: b, start: 2, dim: 3}\n", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(strings.NewReader(tc.yaml))
			assert.Nil(t, c)
			assert.Error(t, err)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err))
			}
		})
	}
}

func TestNoiseCov(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(strings.NewReader(full))
	require.NoError(t, err)

	q, err := c.Prediction.NoiseCov(3)
	assert.NoError(err)
	assert.Equal(3, q.SymmetricDim())
	assert.Equal(2e-4, q.At(2, 2))
	assert.Equal(0.0, q.At(0, 1))

	r, err := c.Update.NoiseCov(2)
	assert.NoError(err)
	assert.Equal(1e-2, r.At(1, 1))

	_, err = c.Update.NoiseCov(3)
	assert.True(errors.Is(err, filter.ErrDimension))

	r, err = Default().Update.NoiseCov(6)
	assert.NoError(err)
	assert.Nil(r)

	c.Update.Noise = []float64{1e-2, -1}
	_, err = c.Update.NoiseCov(2)
	assert.True(errors.Is(err, filter.ErrNotPositiveDefinite))
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(strings.NewReader(full))
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(c.Write(&buf))
	assert.Contains(buf.String(), "mode: iekf")

	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	loaded, err := LoadFile(path)
	assert.NoError(err)
	assert.Empty(cmp.Diff(c, loaded, approx))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}
