package process

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

func newPredictor(method string) (interp.FittablePredictor, error) {
	switch method {
	case core.InterpLinear, "":
		return &interp.PiecewiseLinear{}, nil
	case core.InterpAkima:
		return &interp.AkimaSpline{}, nil
	case core.InterpPCHIP:
		return &interp.FritschButland{}, nil
	default:
		return nil, &core.ConfigurationError{Field: "interpolation_method", Message: fmt.Sprintf("unknown interpolation method %q", method)}
	}
}

// LinearAxis returns n evenly spaced values from lo to hi inclusive.
func LinearAxis(lo, hi float64, n int) []float64 {
	axis := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range axis {
		axis[i] = lo + float64(i)*step
	}
	axis[n-1] = hi
	return axis
}

// Interpolate resamples the DT axis to exactly bins evenly spaced points spanning the
// original DT range, independently per column. The CV axis is unchanged.
func Interpolate(m mat.Matrix, axes core.Axes, bins int, method string) (*mat.Dense, core.Axes, error) {
	if bins < 2 {
		return nil, core.Axes{}, &core.ConfigurationError{Field: "interpolation_bins", Message: fmt.Sprintf("need at least 2 bins, got %d", bins)}
	}
	if len(axes.DT) < 2 {
		return nil, core.Axes{}, &core.ConfigurationError{Field: "interpolation_bins", Message: "DT axis has fewer than 2 points"}
	}
	rows, cols := m.Dims()
	if rows != len(axes.DT) || cols != len(axes.CV) {
		return nil, core.Axes{}, &core.AxisMismatchError{Message: "matrix does not match its axes"}
	}

	dt := LinearAxis(axes.DT[0], axes.DT[len(axes.DT)-1], bins)
	out := mat.NewDense(bins, cols, nil)
	col := make([]float64, rows)
	resampled := make([]float64, bins)

	for j := 0; j < cols; j++ {
		pred, err := newPredictor(method)
		if err != nil {
			return nil, core.Axes{}, err
		}
		mat.Col(col, j, m)
		if err := pred.Fit(axes.DT, col); err != nil {
			return nil, core.Axes{}, &core.ConfigurationError{
				Field:   "interpolation_method",
				Message: fmt.Sprintf("column %d: %v", j, err),
			}
		}
		for i, x := range dt {
			resampled[i] = pred.Predict(x)
		}
		out.SetCol(j, resampled)
	}

	return out, core.Axes{DT: dt, CV: append([]float64(nil), axes.CV...)}, nil
}
