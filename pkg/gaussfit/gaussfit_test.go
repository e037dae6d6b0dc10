package gaussfit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

func driftAxis() []float64 {
	dt := make([]float64, 101)
	for i := range dt {
		dt[i] = float64(i) * 0.1
	}
	return dt
}

func defaultOptions() Options {
	return OptionsFromParams(core.DefaultParams())
}

func TestFitColumnRecoversGaussian(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dt := driftAxis()
	y := make([]float64, len(dt))
	for i, x := range dt {
		y[i] = Gaussian(x, 0, 1, 5.0, 1.0) + 0.02*(rng.Float64()-0.5)
	}

	col := FitColumn(dt, y, 0, 10, defaultOptions())
	require.True(t, col.OK(), "fit failed: %v", col.Err)
	require.Len(t, col.Components, 1)

	c := col.Components[0]
	assert.InDelta(t, 5.0, c.Centroid, 0.05)
	assert.InDelta(t, 1.0, c.Width, 0.1)
	assert.InDelta(t, 1.0, c.Amplitude, 0.05)
	assert.InDelta(t, 0.0, c.Baseline, 0.05)
	assert.Greater(t, col.RSquared, 0.95)
	assert.Equal(t, c.Width*2.3548, c.FWHM)
	assert.Equal(t, c.Centroid/c.FWHM, c.Resolution)

	n, p := float64(len(dt)), float64(NumParams(1))
	assert.InDelta(t, 1-(1-col.RSquared)*(n-1)/(n-p-1), col.AdjRSquared, 1e-12)
	assert.Less(t, col.AdjRSquared, col.RSquared)

	assert.Len(t, col.Fitted, len(dt))
	require.Len(t, col.Covariance, 4)
	for i := 0; i < 4; i++ {
		assert.Len(t, col.Covariance[i], 4)
		assert.Greater(t, col.Covariance[i][i], 0.0)
	}
}

func TestFitColumnTwoComponents(t *testing.T) {
	dt := driftAxis()
	y := make([]float64, len(dt))
	for i, x := range dt {
		y[i] = Gaussian(x, 0, 1, 3.0, 0.5) + Gaussian(x, 0, 0.6, 7.0, 0.6)
	}
	opts := defaultOptions()
	opts.Components = 2

	col := FitColumn(dt, y, 0, 10, opts)
	require.True(t, col.OK(), "fit failed: %v", col.Err)
	require.Len(t, col.Components, 2)

	dom, ok := col.Dominant()
	require.True(t, ok)
	assert.InDelta(t, 3.0, dom.Centroid, 0.01)

	var second core.Component
	for _, c := range col.Components {
		if c != dom {
			second = c
		}
	}
	assert.InDelta(t, 7.0, second.Centroid, 0.01)
	assert.InDelta(t, 0.6, second.Width, 0.01)
	assert.Greater(t, col.RSquared, 0.999)
}

func TestFitColumnFailures(t *testing.T) {
	dt := driftAxis()

	zero := make([]float64, len(dt))
	col := FitColumn(dt, zero, 3, 25, defaultOptions())
	require.False(t, col.OK())
	var fitErr *core.FitConvergenceError
	require.True(t, errors.As(col.Err, &fitErr))
	assert.Equal(t, 3, fitErr.Column)
	assert.Equal(t, 25.0, fitErr.CV)
	assert.Nil(t, col.Components)

	short := FitColumn([]float64{1, 2, 3}, []float64{0, 1, 0}, 0, 5, defaultOptions())
	assert.ErrorIs(t, short.Err, core.ErrFitConvergence)

	opts := defaultOptions()
	opts.MaxIterations = 1
	y := make([]float64, len(dt))
	for i, x := range dt {
		y[i] = Gaussian(x, 0.1, 1, 6.5, 1.5)
	}
	col = FitColumn(dt, y, 0, 5, opts)
	assert.ErrorIs(t, col.Err, core.ErrFitConvergence)
}

func TestFitMatrixIsolatesFailures(t *testing.T) {
	dt := driftAxis()
	cv := []float64{5, 10, 15, 20}
	m := mat.NewDense(len(dt), len(cv), nil)
	centers := []float64{4, 0, 5, 6}
	for j, c := range centers {
		if c == 0 {
			continue // column 1 stays empty
		}
		for i, x := range dt {
			m.Set(i, j, Gaussian(x, 0, 1, c, 0.8))
		}
	}
	axes := core.Axes{DT: dt, CV: cv}

	for _, workers := range []int{1, 3, 0} {
		opts := defaultOptions()
		opts.Workers = workers
		res, err := FitMatrix(m, axes, opts)
		require.NoError(t, err)
		require.Len(t, res.Columns, 4)

		assert.Equal(t, []int{1}, res.Failed())
		for j, col := range res.Columns {
			assert.Equal(t, j, col.Index)
			assert.Equal(t, cv[j], col.CV)
			if j == 1 {
				continue
			}
			assert.InDelta(t, centers[j], col.Components[0].Centroid, 1e-4)
		}

		cents, ok := res.Centroids()
		assert.Len(t, cents, 4)
		assert.False(t, ok[1])
		assert.True(t, math.IsNaN(cents[1]))
	}
}

func TestFitRejectsBadOptions(t *testing.T) {
	axes := core.Axes{DT: []float64{1, 2, 3}, CV: []float64{5}}
	raw, err := core.NewRawMatrix("x_raw.csv", mat.NewDense(3, 1, []float64{0, 1, 0}), axes)
	require.NoError(t, err)
	obj, err := core.NewAnalysisObject(raw, mat.DenseCopyOf(raw.Data), axes, core.DefaultParams())
	require.NoError(t, err)

	_, err = Fit(obj, Options{Components: 0, Width: 1, MaxIterations: 10})
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = Fit(obj, Options{Components: 1, Width: 0, MaxIterations: 10})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
