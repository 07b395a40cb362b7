// Package config loads filter configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	filter "github.com/milosgajdos/go-mkf"
	"github.com/milosgajdos/go-mkf/kalman"
	"github.com/milosgajdos/go-mkf/kalman/predict"
	"github.com/milosgajdos/go-mkf/kalman/update"
	"github.com/milosgajdos/go-mkf/outlier"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Prediction configures the prediction model.
type Prediction struct {
	predict.Config `yaml:",inline"`
	// Noise is the diagonal of the process noise covariance
	Noise []float64 `yaml:"noise,omitempty"`
}

// NoiseCov returns the process noise covariance for noise of dimension dim.
func (p Prediction) NoiseCov(dim int) (mat.Symmetric, error) {
	return noiseCov(p.Noise, dim)
}

// Update configures the update model.
type Update struct {
	update.Config `yaml:",inline"`
	// Noise is the diagonal of the measurement noise covariance
	Noise []float64 `yaml:"noise,omitempty"`
}

// NoiseCov returns the measurement noise covariance for noise of dimension dim.
func (u Update) NoiseCov(dim int) (mat.Symmetric, error) {
	return noiseCov(u.Noise, dim)
}

// noiseCov returns nil if no variances are configured.
func noiseCov(vars []float64, dim int) (mat.Symmetric, error) {
	if len(vars) == 0 {
		return nil, nil
	}

	if len(vars) != dim {
		return nil, fmt.Errorf("invalid noise variances: %d, dimension: %d: %w", len(vars), dim, filter.ErrDimension)
	}

	cov := mat.NewSymDense(dim, nil)
	for i, v := range vars {
		if v <= 0 {
			return nil, fmt.Errorf("invalid noise variance %d: %g: %w", i, v, filter.ErrNotPositiveDefinite)
		}
		cov.SetSym(i, i, v)
	}

	return cov, nil
}

// Config is the filter configuration.
type Config struct {
	// Prediction configures the prediction model
	Prediction Prediction `yaml:"prediction"`
	// Update configures the update model
	Update Update `yaml:"update"`
	// Outlier lists outlier detection groups
	Outlier []outlier.Group `yaml:"outlier,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Prediction: Prediction{Config: predict.DefaultConfig()},
		Update:     Update{Config: update.DefaultConfig()},
	}
}

// Load decodes the configuration from r.
// Settings missing from r keep their default values.
// It returns error if r is not valid YAML or the configuration is invalid.
func Load(r io.Reader) (*Config, error) {
	c := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadFile reads the configuration from the file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

// Write encodes the configuration to w.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return enc.Close()
}

// Validate returns error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Prediction.Mode == kalman.IEKF {
		return fmt.Errorf("prediction mode %v: %w", c.Prediction.Mode, kalman.ErrUnsupportedMode)
	}

	if _, err := c.Prediction.Mode.MarshalText(); err != nil {
		return err
	}

	if c.Prediction.Sigma.Alpha <= 0 {
		return fmt.Errorf("invalid prediction sigma point config supplied: %+v", c.Prediction.Sigma)
	}

	if err := c.Update.Validate(); err != nil {
		return err
	}

	if _, err := c.Detector(); err != nil {
		return err
	}

	return nil
}

// Detector returns outlier detector with the configured groups.
func (c *Config) Detector() (*outlier.Detector, error) {
	return outlier.New(c.Outlier...)
}
