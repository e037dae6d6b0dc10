package lsq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLine(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2*x + 1
	}
	prob := Problem{
		X:     xs,
		Y:     ys,
		Model: func(x float64, p []float64) float64 { return p[0]*x + p[1] },
		Gradient: func(grad []float64, x float64, p []float64) {
			grad[0] = x
			grad[1] = 1
		},
	}

	res, err := Fit(prob, []float64{0, 0}, Settings{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Params[0], 1e-8)
	assert.InDelta(t, 1.0, res.Params[1], 1e-8)
	assert.InDelta(t, 0.0, res.SSR, 1e-12)
	assert.Len(t, res.Fitted, len(xs))
}

func TestFitExponentialNumericGradient(t *testing.T) {
	xs := make([]float64, 20)
	ys := make([]float64, 20)
	for i := range xs {
		xs[i] = float64(i) * 0.25
		noise := 0.002 * math.Sin(float64(i)*1.7)
		ys[i] = 3*math.Exp(-0.8*xs[i]) + noise
	}
	prob := Problem{
		X:     xs,
		Y:     ys,
		Model: func(x float64, p []float64) float64 { return p[0] * math.Exp(-p[1]*x) },
	}

	res, err := Fit(prob, []float64{1, 0.1}, Settings{})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, res.Params[0], 0.01)
	assert.InDelta(t, 0.8, res.Params[1], 0.01)

	require.NotNil(t, res.Covariance)
	r, c := res.Covariance.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Greater(t, res.Covariance.At(0, 0), 0.0)
	assert.Greater(t, res.Covariance.At(1, 1), 0.0)
}

func TestFitErrors(t *testing.T) {
	model := func(x float64, p []float64) float64 { return p[0] * math.Exp(-(x-p[1])*(x-p[1])) }

	t.Run("underdetermined", func(t *testing.T) {
		_, err := Fit(Problem{X: []float64{1, 2}, Y: []float64{1, 2}, Model: model}, []float64{1, 1}, Settings{})
		assert.ErrorIs(t, err, ErrUnderdetermined)
	})

	t.Run("singular at zero amplitude", func(t *testing.T) {
		xs := []float64{0, 1, 2, 3, 4}
		ys := make([]float64, len(xs))
		_, err := Fit(Problem{X: xs, Y: ys, Model: model}, []float64{0, 2}, Settings{})
		assert.ErrorIs(t, err, ErrSingular)
	})

	t.Run("non-finite start", func(t *testing.T) {
		xs := []float64{0, 1, 2, 3, 4}
		_, err := Fit(Problem{X: xs, Y: xs, Model: func(x float64, p []float64) float64 { return math.NaN() }}, []float64{1}, Settings{})
		assert.ErrorIs(t, err, ErrNonFinite)
	})

	t.Run("iteration limit", func(t *testing.T) {
		xs := make([]float64, 30)
		ys := make([]float64, 30)
		for i := range xs {
			xs[i] = float64(i) * 0.3
			ys[i] = 5 * math.Exp(-(xs[i]-4)*(xs[i]-4))
		}
		_, err := Fit(Problem{X: xs, Y: ys, Model: model}, []float64{1, 2.5}, Settings{MaxIterations: 1})
		assert.ErrorIs(t, err, ErrNotConverged)
	})
}
