// Package gaussfit decomposes every collision-voltage column of a fingerprint into one or
// more Gaussian peaks by nonlinear least squares.
//
// Each column is fitted independently. A column whose fit fails is recorded as failed and
// never affects the other columns.
package gaussfit

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/RuotoloLab/CIUSuite2/internal/lsq"
	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Options controls the per-column fit.
type Options struct {
	Components    int     // Gaussians per column
	Width         float64 // initial width guess
	MaxIterations int
	Workers       int // columns fitted concurrently; <= 0 uses GOMAXPROCS
}

// OptionsFromParams extracts fit options from a resolved parameter set.
func OptionsFromParams(p core.Params) Options {
	return Options{
		Components:    p.GaussComponents,
		Width:         p.GaussWidth,
		MaxIterations: p.GaussMaxIterations,
	}
}

func (o Options) validate() error {
	if o.Components < 1 {
		return &core.ConfigurationError{Field: "gauss_components", Message: "must be at least 1"}
	}
	if !(o.Width > 0) {
		return &core.ConfigurationError{Field: "gauss_width", Message: "must be positive"}
	}
	if o.MaxIterations < 1 {
		return &core.ConfigurationError{Field: "gauss_max_iterations", Message: "must be at least 1"}
	}
	return nil
}

// NumParams returns the number of free parameters of a k-component model.
func NumParams(k int) int {
	return 1 + 3*k
}

// Gaussian evaluates baseline + amplitude * exp(-(x-centroid)^2 / (2 width^2)).
func Gaussian(x, baseline, amplitude, centroid, width float64) float64 {
	d := (x - centroid) / width
	return baseline + amplitude*math.Exp(-0.5*d*d)
}

// model evaluates a shared baseline plus a sum of Gaussians. Parameter layout:
// p[0] baseline, then amplitude, centroid, width for each component.
func model(x float64, p []float64) float64 {
	y := p[0]
	for k := 1; k+2 < len(p); k += 3 {
		y += Gaussian(x, 0, p[k], p[k+1], p[k+2])
	}
	return y
}

func gradient(grad []float64, x float64, p []float64) {
	grad[0] = 1
	for k := 1; k+2 < len(p); k += 3 {
		a, c, w := p[k], p[k+1], p[k+2]
		d := x - c
		e := math.Exp(-0.5 * d * d / (w * w))
		grad[k] = e
		grad[k+1] = a * e * d / (w * w)
		grad[k+2] = a * e * d * d / (w * w * w)
	}
}

// Fit fits every column of the object's processed matrix and returns one record per
// column in CV order. Only invalid options produce an error.
func Fit(obj *core.AnalysisObject, opts Options) (*core.FitResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return FitMatrix(obj.Data(), obj.Axes(), opts)
}

// FitMatrix fits every column of m against the DT axis.
func FitMatrix(m mat.Matrix, axes core.Axes, opts Options) (*core.FitResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if rows != len(axes.DT) || cols != len(axes.CV) {
		return nil, &core.AxisMismatchError{Message: "matrix does not match its axes"}
	}

	result := &core.FitResult{
		ComponentsPerColumn: opts.Components,
		Columns:             make([]core.ColumnFit, cols),
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > cols {
		workers = cols
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// Each worker writes only its own slot.
				result.Columns[j] = FitColumn(axes.DT, mat.Col(nil, j, m), j, axes.CV[j], opts)
			}
		}()
	}
	for j := 0; j < cols; j++ {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	return result, nil
}

// FitColumn fits one drift-time profile. Failures are returned in the record's Err field.
func FitColumn(dt, y []float64, index int, cv float64, opts Options) core.ColumnFit {
	col := core.ColumnFit{Index: index, CV: cv}
	fail := func(reason string) core.ColumnFit {
		col.Err = &core.FitConvergenceError{Column: index, CV: cv, Reason: reason}
		return col
	}

	n := len(y)
	p := NumParams(opts.Components)
	if n != len(dt) {
		return fail(fmt.Sprintf("%d intensities for %d drift times", n, len(dt)))
	}
	if n < p+2 {
		return fail(fmt.Sprintf("%d points are too few for %d parameters", n, p))
	}
	mean := stat.Mean(y, nil)
	ssTot := 0.0
	for _, v := range y {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return fail("constant intensity profile")
	}

	res, err := lsq.Fit(lsq.Problem{
		X:        dt,
		Y:        y,
		Model:    model,
		Gradient: gradient,
	}, initialGuess(dt, y, opts), lsq.Settings{MaxIterations: opts.MaxIterations})
	if err != nil {
		switch {
		case errors.Is(err, lsq.ErrSingular):
			return fail("singular fit")
		case errors.Is(err, lsq.ErrNotConverged):
			return fail(fmt.Sprintf("no convergence after %d iterations", opts.MaxIterations))
		default:
			return fail(err.Error())
		}
	}

	params := res.Params
	for _, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("non-finite parameters")
		}
	}

	col.Components = make([]core.Component, opts.Components)
	for k := 0; k < opts.Components; k++ {
		i := 1 + 3*k
		col.Components[k] = core.NewComponent(params[0], params[i], params[i+1], params[i+2])
	}
	col.Fitted = res.Fitted
	col.Iterations = res.Iterations
	col.RSquared = 1 - res.SSR/ssTot
	col.AdjRSquared = 1 - (1-col.RSquared)*float64(n-1)/float64(n-p-1)

	col.Covariance = make([][]float64, p)
	for i := 0; i < p; i++ {
		col.Covariance[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			col.Covariance[i][j] = res.Covariance.At(i, j)
		}
	}
	return col
}

// initialGuess seeds the first component at the column maximum and each further component
// at the largest remaining residual.
func initialGuess(dt, y []float64, opts Options) []float64 {
	p := make([]float64, NumParams(opts.Components))
	p[0] = floats.Min(y)

	imax := floats.MaxIdx(y)
	p[1], p[2], p[3] = floats.Max(y), dt[imax], opts.Width

	resid := make([]float64, len(y))
	for k := 1; k < opts.Components; k++ {
		for i, x := range dt {
			resid[i] = y[i] - model(x, p[:1+3*k])
		}
		idx := floats.MaxIdx(resid)
		amp := resid[idx]
		if amp <= 0 {
			amp = 0.1 * p[1]
		}
		i := 1 + 3*k
		p[i], p[i+1], p[i+2] = amp, dt[idx], opts.Width
	}
	return p
}
