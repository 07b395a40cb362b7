package sim

import (
	"fmt"
	"image/color"

	filter "github.com/milosgajdos/go-mkf"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var dashes = []vg.Length{vg.Points(4), vg.Points(2)}

// NewErrorPlot creates new plot of the estimation error of the i-th tangent
// dimension of the trace together with its 2-sigma envelope.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * the trace is nil or has fewer than 2 records
// * i is not a valid trace dimension
// * gonum plot fails to be created
func NewErrorPlot[S filter.Manifold[S]](tr *Trace[S], i int) (*plot.Plot, error) {
	if tr == nil || tr.Len() < 2 {
		return nil, fmt.Errorf("invalid trace supplied")
	}

	if i < 0 || i >= tr.Dim() {
		return nil, fmt.Errorf("invalid trace dimension: %d", i)
	}

	p := plot.New()

	p.Title.Text = fmt.Sprintf("Estimation error %d", i)
	p.X.Label.Text = "t"
	p.Y.Label.Text = "error"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	errs, sigmas := tr.Errors(), tr.Sigmas()
	errPts := make(plotter.XYs, tr.Len())
	upPts := make(plotter.XYs, tr.Len())
	downPts := make(plotter.XYs, tr.Len())
	for j, t := range tr.times {
		errPts[j].X, errPts[j].Y = t, errs.At(i, j)
		upPts[j].X, upPts[j].Y = t, 2*sigmas.At(i, j)
		downPts[j].X, downPts[j].Y = t, -2*sigmas.At(i, j)
	}

	errLine, err := plotter.NewLine(errPts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	errLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	errLine.LineStyle.Width = vg.Points(1)

	p.Add(errLine)
	p.Legend.Add("error", errLine)

	upLine, err := plotter.NewLine(upPts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	upLine.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	upLine.LineStyle.Dashes = dashes

	downLine, err := plotter.NewLine(downPts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	downLine.LineStyle = upLine.LineStyle

	p.Add(upLine, downLine)
	p.Legend.Add("2 sigma", upLine)

	return p, nil
}

// NewNEESPlot creates new plot of the trace NEES with the bounds of the
// NEES of a consistent filter at probability prob.
// It returns error if the trace is nil, has fewer than 2 records or the bounds can't be computed.
func NewNEESPlot[S filter.Manifold[S]](tr *Trace[S], prob float64) (*plot.Plot, error) {
	if tr == nil || tr.Len() < 2 {
		return nil, fmt.Errorf("invalid trace supplied")
	}

	lo, hi, err := neesBounds(tr.Dim(), prob)
	if err != nil {
		return nil, err
	}

	p := plot.New()

	p.Title.Text = "NEES"
	p.X.Label.Text = "t"
	p.Y.Label.Text = "NEES"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	neesPts := make(plotter.XYs, tr.Len())
	for j, t := range tr.times {
		neesPts[j].X, neesPts[j].Y = t, tr.nees[j]
	}

	neesScatter, err := plotter.NewScatter(neesPts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	neesScatter.GlyphStyle.Color = color.RGBA{G: 128, A: 255}
	neesScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(neesScatter)
	p.Legend.Add("nees", neesScatter)

	t0, t1 := tr.times[0], tr.times[len(tr.times)-1]
	for _, b := range []float64{lo, hi} {
		l, err := plotter.NewLine(plotter.XYs{{X: t0, Y: b}, {X: t1, Y: b}})
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		l.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		l.LineStyle.Dashes = dashes
		p.Add(l)
	}

	return p, nil
}
