// Package outlier implements Mahalanobis distance gating of innovation dimensions.
package outlier

import (
	"fmt"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultProbability is the chi-square probability used for the default group threshold.
const DefaultProbability = 0.99

// Group is a contiguous range of innovation dimensions checked together.
type Group struct {
	// Name identifies the group
	Name string `yaml:"name"`
	// Start is the index of the first innovation dimension
	Start int `yaml:"start"`
	// Dim is the number of innovation dimensions
	Dim int `yaml:"dim"`
	// Threshold is the maximum Mahalanobis distance of an inlier
	Threshold float64 `yaml:"threshold"`
	// Enabled enables the group
	Enabled bool `yaml:"enabled"`
}

// Threshold returns the chi-square quantile of probability p with dim degrees of freedom.
func Threshold(dim int, p float64) float64 {
	return distuv.ChiSquared{K: float64(dim)}.Quantile(p)
}

type group struct {
	Group
	outlier  bool
	distance float64
}

// Detector gates groups of innovation dimensions whose Mahalanobis distance
// exceeds the group threshold. It records the outcome of the last check.
type Detector struct {
	groups []*group
}

// New creates new Detector with the given groups.
// It returns error if any of the groups is invalid.
func New(groups ...Group) (*Detector, error) {
	d := &Detector{}
	for _, g := range groups {
		if err := d.Add(g); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Add adds a new group to the detector.
// A zero Threshold defaults to the DefaultProbability chi-square quantile.
// It returns error if the group is empty, overlaps an existing group or has a duplicate name.
func (d *Detector) Add(g Group) error {
	if g.Dim <= 0 || g.Start < 0 {
		return fmt.Errorf("invalid outlier group %q: [%d, %d)", g.Name, g.Start, g.Start+g.Dim)
	}

	if g.Threshold < 0 {
		return fmt.Errorf("invalid outlier group %q threshold: %g", g.Name, g.Threshold)
	}

	for _, o := range d.groups {
		if o.Name == g.Name {
			return fmt.Errorf("duplicate outlier group: %q", g.Name)
		}
		if g.Start < o.Start+o.Dim && o.Start < g.Start+g.Dim {
			return fmt.Errorf("outlier group %q overlaps %q", g.Name, o.Name)
		}
	}

	if g.Threshold == 0 {
		g.Threshold = Threshold(g.Dim, DefaultProbability)
	}

	d.groups = append(d.groups, &group{Group: g})

	return nil
}

// Groups returns the detector groups.
func (d *Detector) Groups() []Group {
	out := make([]Group, len(d.groups))
	for i, g := range d.groups {
		out[i] = g.Group
	}
	return out
}

func (d *Detector) group(name string) (*group, error) {
	for _, g := range d.groups {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("unknown outlier group: %q", name)
}

// SetEnabledAll enables or disables all groups.
func (d *Detector) SetEnabledAll(enabled bool) {
	for _, g := range d.groups {
		g.Enabled = enabled
	}
}

// SetEnabled enables or disables the named group.
func (d *Detector) SetEnabled(name string, enabled bool) error {
	g, err := d.group(name)
	if err != nil {
		return err
	}
	g.Enabled = enabled

	return nil
}

// SetThreshold sets the threshold of the named group.
func (d *Detector) SetThreshold(name string, th float64) error {
	if th <= 0 {
		return fmt.Errorf("invalid outlier group %q threshold: %g", name, th)
	}

	g, err := d.group(name)
	if err != nil {
		return err
	}
	g.Threshold = th

	return nil
}

// Outlier reports whether the named group was gated by the last check.
func (d *Detector) Outlier(name string) (bool, error) {
	g, err := d.group(name)
	if err != nil {
		return false, err
	}

	return g.outlier, nil
}

// Distance returns the Mahalanobis distance of the named group computed by the last check.
// It is zero for groups disabled during the last check.
func (d *Detector) Distance(name string) (float64, error) {
	g, err := d.group(name)
	if err != nil {
		return 0, err
	}

	return g.distance, nil
}

// Apply checks every enabled group of the innovation inn with covariance py.
// For each group whose distance inn'*Py^-1*inn exceeds its threshold it zeroes
// the group rows and columns of py, sets the group diagonal block to identity
// and zeroes the group rows of m. py and m are modified in place; m may be nil.
// It returns error if a group lies outside the innovation or its covariance block
// is not positive definite; py, m and the recorded outcomes are left untouched in that case.
func (d *Detector) Apply(inn mat.Vector, py *mat.Dense, m *mat.Dense) error {
	n := inn.Len()
	if r, c := py.Dims(); r != n || c != n {
		return fmt.Errorf("invalid innovation covariance dims: [%d x %d], innovation: %d: %w", r, c, n, filter.ErrDimension)
	}
	if m != nil {
		if r, _ := m.Dims(); r != n {
			return fmt.Errorf("invalid gated matrix rows: %d, innovation: %d: %w", r, n, filter.ErrDimension)
		}
	}

	dists := make([]float64, len(d.groups))
	for i, g := range d.groups {
		if !g.Enabled {
			continue
		}

		if g.Start+g.Dim > n {
			return fmt.Errorf("outlier group %q [%d, %d) exceeds innovation: %d: %w",
				g.Name, g.Start, g.Start+g.Dim, n, filter.ErrDimension)
		}

		dist, err := mahalanobis(inn, py, g.Start, g.Dim)
		if err != nil {
			return fmt.Errorf("outlier group %q: %w", g.Name, err)
		}
		dists[i] = dist
	}

	var gated []*group
	for i, g := range d.groups {
		g.outlier, g.distance = false, dists[i]
		if g.Enabled && dists[i] > g.Threshold {
			g.outlier = true
			gated = append(gated, g)
		}
	}

	for _, g := range gated {
		gate(py, m, g.Start, g.Dim)
	}

	return nil
}

func mahalanobis(inn mat.Vector, py *mat.Dense, start, dim int) (float64, error) {
	blk := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			blk.SetSym(i, j, (py.At(start+i, start+j)+py.At(start+j, start+i))/2)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(blk); !ok {
		return 0, fmt.Errorf("innovation covariance block: %w", filter.ErrNotPositiveDefinite)
	}

	v := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		v.SetVec(i, inn.AtVec(start+i))
	}

	// Py^-1*inn
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, v); err != nil {
		return 0, fmt.Errorf("innovation covariance block: %w", err)
	}

	return mat.Dot(v, &x), nil
}

func gate(py, m *mat.Dense, start, dim int) {
	n, _ := py.Dims()
	for i := start; i < start+dim; i++ {
		for j := 0; j < n; j++ {
			py.Set(i, j, 0)
			py.Set(j, i, 0)
		}
		py.Set(i, i, 1)

		if m != nil {
			_, c := m.Dims()
			for j := 0; j < c; j++ {
				m.Set(i, j, 0)
			}
		}
	}
}
