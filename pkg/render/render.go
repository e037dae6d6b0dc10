// Package render draws static diagnostic images of analysed fingerprints with gonum/plot.
// The image format follows the output file extension (.png, .svg, .pdf, ...).
package render

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch
)

var (
	dataColor       = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	fitColor        = color.RGBA{R: 220, G: 50, B: 40, A: 255}
	transitionColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
)

// grid adapts a processed matrix to plotter.GridXYZ with CV on X and DT on Y.
type grid struct {
	data *mat.Dense
	axes core.Axes
}

func (g grid) Dims() (c, r int)   { return len(g.axes.CV), len(g.axes.DT) }
func (g grid) Z(c, r int) float64 { return g.data.At(r, c) }
func (g grid) X(c int) float64    { return g.axes.CV[c] }
func (g grid) Y(r int) float64    { return g.axes.DT[r] }

// Fingerprint draws the processed matrix as a heat map.
func Fingerprint(obj *core.AnalysisObject, path string) error {
	axes := obj.Axes()
	if len(axes.CV) < 2 || len(axes.DT) < 2 {
		return fmt.Errorf("%s: a heat map needs at least 2 points on each axis", obj.BaseName())
	}

	hm := plotter.NewHeatMap(grid{data: obj.Data(), axes: axes}, palette.Heat(32, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = obj.BaseName()
	p.X.Label.Text = "Collision voltage (V)"
	p.Y.Label.Text = "Drift time"
	p.Add(hm)

	return save(p, path)
}

// Centroids plots the fitted centroid of every component against CV, with a vertical
// marker at each detected transition.
func Centroids(obj *core.AnalysisObject, path string) error {
	if obj.Fit == nil {
		return fmt.Errorf("%s: no Gaussian fit attached", obj.BaseName())
	}
	vals, ok := obj.Fit.Centroids()
	p, err := parameterPlot(obj, vals, ok, "Centroid drift time")
	if err != nil {
		return err
	}

	if obj.Features != nil {
		lo, hi := p.Y.Min, p.Y.Max
		for _, t := range obj.Features.Transitions {
			line, err := plotter.NewLine(plotter.XYs{{X: t.Midpoint, Y: lo}, {X: t.Midpoint, Y: hi}})
			if err != nil {
				return err
			}
			line.Color = transitionColor
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(line)
		}
	}
	return save(p, path)
}

// FWHMs plots the full width at half maximum of every component against CV.
func FWHMs(obj *core.AnalysisObject, path string) error {
	if obj.Fit == nil {
		return fmt.Errorf("%s: no Gaussian fit attached", obj.BaseName())
	}
	vals, ok := obj.Fit.FWHMs()
	p, err := parameterPlot(obj, vals, ok, "FWHM")
	if err != nil {
		return err
	}
	return save(p, path)
}

// FitOverlay plots one column's intensity profile with its fitted curve.
func FitOverlay(obj *core.AnalysisObject, column int, path string) error {
	if obj.Fit == nil {
		return fmt.Errorf("%s: no Gaussian fit attached", obj.BaseName())
	}
	if column < 0 || column >= len(obj.Fit.Columns) {
		return fmt.Errorf("%s: column %d out of range", obj.BaseName(), column)
	}
	col := obj.Fit.Columns[column]
	axes := obj.Axes()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s CV %g", obj.BaseName(), col.CV)
	p.X.Label.Text = "Drift time"
	p.Y.Label.Text = "Intensity"

	profile := core.Column(obj.Data(), column)
	data := make(plotter.XYs, len(profile))
	for i, v := range profile {
		data[i] = plotter.XY{X: axes.DT[i], Y: v}
	}
	scatter, err := plotter.NewScatter(data)
	if err != nil {
		return err
	}
	scatter.Color = dataColor
	p.Add(scatter)
	p.Legend.Add("data", scatter)

	if col.OK() && len(col.Fitted) == len(axes.DT) {
		fitted := make(plotter.XYs, len(col.Fitted))
		for i, v := range col.Fitted {
			fitted[i] = plotter.XY{X: axes.DT[i], Y: v}
		}
		line, err := plotter.NewLine(fitted)
		if err != nil {
			return err
		}
		line.Color = fitColor
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("fit (R^2 %.3f)", col.RSquared), line)
	} else if col.Err != nil {
		p.Title.Text += " (fit failed)"
	}

	return save(p, path)
}

// parameterPlot scatters a parallel fit parameter array against CV, skipping failed slots.
func parameterPlot(obj *core.AnalysisObject, vals []float64, ok []bool, label string) (*plot.Plot, error) {
	k := obj.Fit.ComponentsPerColumn
	var pts plotter.XYs
	for i, v := range vals {
		if ok[i] {
			pts = append(pts, plotter.XY{X: obj.Fit.Columns[i/k].CV, Y: v})
		}
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%s: every column fit failed", obj.BaseName())
	}

	p := plot.New()
	p.Title.Text = obj.BaseName()
	p.X.Label.Text = "Collision voltage (V)"
	p.Y.Label.Text = label

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.Color = dataColor
	p.Add(scatter)
	return p, nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
