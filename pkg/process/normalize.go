// Package process provides the fingerprint processing stages: normalization, interpolation,
// smoothing, cropping, replicate averaging and fingerprint comparison. Every stage is a pure
// function returning a new matrix and leaves its inputs untouched.
package process

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Normalize scales every column by its maximum (core.NormalizeMax) or its total
// (core.NormalizeSum). Columns whose scale is zero are copied unchanged.
func Normalize(m mat.Matrix, mode string) (*mat.Dense, error) {
	var scale func([]float64) float64
	switch mode {
	case core.NormalizeMax, "":
		scale = floats.Max
	case core.NormalizeSum:
		scale = floats.Sum
	default:
		return nil, &core.ConfigurationError{Field: "normalization", Message: fmt.Sprintf("unknown normalization %q", mode)}
	}

	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		if s := scale(col); s != 0 {
			floats.Scale(1/s, col)
		}
		out.SetCol(j, col)
	}
	return out, nil
}
