package process

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// SavitzkyGolay holds the projection matrix of a least-squares polynomial fit over a
// window. Row r gives the weights producing the smoothed value at window position r.
type SavitzkyGolay struct {
	window int
	order  int
	proj   *mat.Dense
}

// NewSavitzkyGolay builds a filter for an odd window and polynomial order < window.
func NewSavitzkyGolay(window, order int) (*SavitzkyGolay, error) {
	if window < 1 || window%2 == 0 {
		return nil, &core.ConfigurationError{Field: "smoothing_window", Message: fmt.Sprintf("window must be a positive odd integer, got %d", window)}
	}
	if order < 0 {
		return nil, &core.ConfigurationError{Field: "smoothing_order", Message: "order must be non-negative"}
	}
	if window <= order {
		return nil, &core.ConfigurationError{Field: "smoothing_window", Message: fmt.Sprintf("window %d must exceed polynomial order %d", window, order)}
	}

	// Vandermonde matrix over positions -half..half
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - half)
		for k := 0; k <= order; k++ {
			a.Set(i, k, math.Pow(x, float64(k)))
		}
	}

	// proj = A (A^T A)^-1 A^T
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil && !isCondition(err) {
		return nil, &core.ConfigurationError{Field: "smoothing_window", Message: fmt.Sprintf("singular filter design: %v", err)}
	}
	var tmp mat.Dense
	tmp.Mul(a, &inv)
	proj := mat.NewDense(window, window, nil)
	proj.Mul(&tmp, a.T())

	return &SavitzkyGolay{window: window, order: order, proj: proj}, nil
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}

// Apply smooths one signal. Edge points take their value from the polynomial fitted to
// the first or last full window.
func (s *SavitzkyGolay) Apply(dst, src []float64) {
	n := len(src)
	w := s.window
	half := w / 2

	for i := 0; i < n; i++ {
		var start, row int
		switch {
		case i < half:
			start, row = 0, i
		case i >= n-half:
			start, row = n-w, w-(n-i)
		default:
			start, row = i-half, half
		}
		sum := 0.0
		for j := 0; j < w; j++ {
			sum += s.proj.At(row, j) * src[start+j]
		}
		dst[i] = sum
	}
}

// Smooth applies a Savitzky-Golay filter along DT to every column, iterations times in
// sequence. Each pass consumes the previous pass's output.
func Smooth(m mat.Matrix, window, order, iterations int) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if iterations < 1 {
		return nil, &core.ConfigurationError{Field: "smoothing_iterations", Message: fmt.Sprintf("need at least 1 iteration, got %d", iterations)}
	}
	if window > rows {
		return nil, &core.ConfigurationError{Field: "smoothing_window", Message: fmt.Sprintf("window %d exceeds DT axis length %d", window, rows)}
	}
	sg, err := NewSavitzkyGolay(window, order)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, cols, nil)
	src := make([]float64, rows)
	dst := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(src, j, m)
		for k := 0; k < iterations; k++ {
			sg.Apply(dst, src)
			src, dst = dst, src
		}
		out.SetCol(j, src)
	}
	return out, nil
}
