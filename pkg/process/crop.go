package process

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Bounds is an inclusive crop window on both axes.
type Bounds struct {
	DTLow, DTHigh float64
	CVLow, CVHigh float64
}

// BoundsFromSlice converts [dt_low, dt_high, cv_low, cv_high] to Bounds.
func BoundsFromSlice(v []float64) (Bounds, error) {
	if len(v) != 4 {
		return Bounds{}, &core.ConfigurationError{Field: "cropping_bounds", Message: fmt.Sprintf("expected 4 values, got %d", len(v))}
	}
	return Bounds{DTLow: v[0], DTHigh: v[1], CVLow: v[2], CVHigh: v[3]}, nil
}

// Crop returns the rows and columns whose axis values fall inside the inclusive bounds.
//
// With core.CropClamp a bound reaching past the axis is clamped to the available range.
// With core.CropStrict every bound must lie within the existing axis range. Either way,
// low > high or an empty selection is an AxisMismatchError.
func Crop(m mat.Matrix, axes core.Axes, b Bounds, policy string) (*mat.Dense, core.Axes, error) {
	if policy == "" {
		policy = core.CropClamp
	}
	if policy != core.CropClamp && policy != core.CropStrict {
		return nil, core.Axes{}, &core.ConfigurationError{Field: "crop_policy", Message: fmt.Sprintf("unknown crop policy %q", policy)}
	}

	if rows, cols := m.Dims(); rows != len(axes.DT) || cols != len(axes.CV) {
		return nil, core.Axes{}, &core.AxisMismatchError{Message: "matrix does not match its axes"}
	}

	rowLo, rowHi, err := selectRange("DT", axes.DT, b.DTLow, b.DTHigh, policy)
	if err != nil {
		return nil, core.Axes{}, err
	}
	colLo, colHi, err := selectRange("CV", axes.CV, b.CVLow, b.CVHigh, policy)
	if err != nil {
		return nil, core.Axes{}, err
	}

	out := mat.NewDense(rowHi-rowLo, colHi-colLo, nil)
	for i := rowLo; i < rowHi; i++ {
		for j := colLo; j < colHi; j++ {
			out.Set(i-rowLo, j-colLo, m.At(i, j))
		}
	}

	return out, core.Axes{
		DT: append([]float64(nil), axes.DT[rowLo:rowHi]...),
		CV: append([]float64(nil), axes.CV[colLo:colHi]...),
	}, nil
}

// checkBounds validates bounds against the extent of an axis without requiring a grid
// point inside them.
func checkBounds(name string, axis []float64, low, high float64, policy string) error {
	if low > high {
		return &core.AxisMismatchError{Axis: name, Message: fmt.Sprintf("low bound %g exceeds high bound %g", low, high)}
	}
	if len(axis) == 0 {
		return &core.AxisMismatchError{Axis: name, Message: "axis is empty"}
	}
	first, last := axis[0], axis[len(axis)-1]
	if high < first || low > last {
		return &core.AxisMismatchError{Axis: name, Message: fmt.Sprintf("bounds [%g, %g] lie outside axis range [%g, %g]", low, high, first, last)}
	}
	if policy == core.CropStrict && (low < first || high > last) {
		return &core.AxisMismatchError{Axis: name, Message: fmt.Sprintf("bounds [%g, %g] extend past axis range [%g, %g]", low, high, first, last)}
	}
	return nil
}

// selectRange returns the half-open index range [lo, hi) of axis values inside [low, high].
func selectRange(name string, axis []float64, low, high float64, policy string) (int, int, error) {
	if err := checkBounds(name, axis, low, high, policy); err != nil {
		return 0, 0, err
	}

	lo, hi := -1, -1
	for i, v := range axis {
		if v >= low && v <= high {
			if lo < 0 {
				lo = i
			}
			hi = i + 1
		}
	}
	if lo < 0 {
		return 0, 0, &core.AxisMismatchError{Axis: name, Message: fmt.Sprintf("no values within [%g, %g]", low, high)}
	}
	return lo, hi, nil
}
