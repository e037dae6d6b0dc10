package process

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

func seqAxis(start, step float64, n int) []float64 {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = start + float64(i)*step
	}
	return axis
}

func newRaw(t *testing.T, data *mat.Dense, axes core.Axes) *core.RawMatrix {
	t.Helper()
	raw, err := core.NewRawMatrix("test_raw.csv", data, axes)
	require.NoError(t, err)
	return raw
}

func newObject(t *testing.T, data *mat.Dense, axes core.Axes) *core.AnalysisObject {
	t.Helper()
	obj, err := core.NewAnalysisObject(newRaw(t, data, axes), mat.DenseCopyOf(data), axes.Clone(), core.DefaultParams())
	require.NoError(t, err)
	return obj
}

func TestNormalize(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		1, 0, 10,
		4, 0, 30,
		2, 0, 60,
	})

	out, err := Normalize(m, core.NormalizeMax)
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		col := mat.Col(nil, j, out)
		for _, v := range col {
			assert.LessOrEqual(t, v, 1.0)
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
	assert.Equal(t, 1.0, out.At(1, 0))
	assert.Equal(t, 0.25, out.At(0, 0))
	assert.Equal(t, 1.0, out.At(2, 2))
	// all-zero column stays zero
	assert.Equal(t, []float64{0, 0, 0}, mat.Col(nil, 1, out))
	// input untouched
	assert.Equal(t, 4.0, m.At(1, 0))

	sum, err := Normalize(m, core.NormalizeSum)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, sum.At(2, 2), 1e-12)
	assert.InDelta(t, 1.0, mat.Sum(sum.ColView(0)), 1e-12)

	_, err = Normalize(m, "median")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestInterpolate(t *testing.T) {
	axes := core.Axes{DT: seqAxis(0, 1, 5), CV: []float64{5, 10}}
	m := mat.NewDense(5, 2, []float64{
		0, 4,
		1, 3,
		2, 2,
		3, 1,
		4, 0,
	})

	for _, bins := range []int{2, 3, 9, 50, 200} {
		for _, method := range []string{core.InterpLinear, core.InterpAkima, core.InterpPCHIP} {
			out, outAxes, err := Interpolate(m, axes, bins, method)
			require.NoError(t, err, "bins=%d method=%s", bins, method)
			rows, cols := out.Dims()
			assert.Equal(t, bins, rows)
			assert.Equal(t, 2, cols)
			assert.Len(t, outAxes.DT, bins)
			assert.Equal(t, axes.CV, outAxes.CV)
			assert.Equal(t, 0.0, outAxes.DT[0])
			assert.Equal(t, 4.0, outAxes.DT[bins-1])
		}
	}

	// linear data is reproduced exactly by linear interpolation
	out, outAxes, err := Interpolate(m, axes, 9, core.InterpLinear)
	require.NoError(t, err)
	for i, x := range outAxes.DT {
		assert.InDelta(t, x, out.At(i, 0), 1e-12)
		assert.InDelta(t, 4-x, out.At(i, 1), 1e-12)
	}

	_, _, err = Interpolate(m, axes, 1, core.InterpLinear)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	single := core.Axes{DT: []float64{1}, CV: []float64{5, 10}}
	_, _, err = Interpolate(mat.NewDense(1, 2, nil), single, 10, core.InterpLinear)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestSmooth(t *testing.T) {
	t.Run("constant signal is unchanged", func(t *testing.T) {
		m := mat.NewDense(7, 2, nil)
		for i := 0; i < 7; i++ {
			m.Set(i, 0, 3)
			m.Set(i, 1, 0.5)
		}
		out, err := Smooth(m, 5, 2, 4)
		require.NoError(t, err)
		for i := 0; i < 7; i++ {
			assert.InDelta(t, 3.0, out.At(i, 0), 1e-9)
			assert.InDelta(t, 0.5, out.At(i, 1), 1e-9)
		}
	})

	t.Run("quadratic preserved by order 2", func(t *testing.T) {
		n := 11
		m := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			x := float64(i)
			m.Set(i, 0, 0.5*x*x-2*x+1)
		}
		out, err := Smooth(m, 5, 2, 1)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			assert.InDelta(t, m.At(i, 0), out.At(i, 0), 1e-8)
		}
	})

	t.Run("noise is reduced", func(t *testing.T) {
		n := 21
		m := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				m.Set(i, 0, 1)
			}
		}
		once, err := Smooth(m, 5, 2, 1)
		require.NoError(t, err)
		twice, err := Smooth(m, 5, 2, 2)
		require.NoError(t, err)
		spread := func(d *mat.Dense) float64 {
			return math.Abs(d.At(10, 0) - d.At(11, 0))
		}
		assert.Less(t, spread(once), 1.0)
		assert.Less(t, spread(twice), spread(once))

		again, err := Smooth(m, 5, 2, 2)
		require.NoError(t, err)
		assert.True(t, mat.Equal(twice, again), "smoothing must be deterministic")
	})

	t.Run("configuration errors", func(t *testing.T) {
		m := mat.NewDense(5, 1, nil)
		tests := []struct {
			name                      string
			window, order, iterations int
		}{
			{"even window", 4, 2, 1},
			{"window longer than axis", 7, 2, 1},
			{"window not above order", 3, 3, 1},
			{"zero iterations", 3, 2, 0},
		}
		for _, tt := range tests {
			_, err := Smooth(m, tt.window, tt.order, tt.iterations)
			assert.ErrorIs(t, err, core.ErrConfiguration, tt.name)
		}
	})
}

func TestCrop(t *testing.T) {
	axes := core.Axes{DT: seqAxis(1, 1, 6), CV: seqAxis(10, 5, 5)} // DT 1..6, CV 10..30
	m := mat.NewDense(6, 5, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 5; j++ {
			m.Set(i, j, float64(i*10+j))
		}
	}

	t.Run("full range is identity", func(t *testing.T) {
		out, outAxes, err := Crop(m, axes, Bounds{1, 6, 10, 30}, core.CropStrict)
		require.NoError(t, err)
		assert.True(t, mat.Equal(m, out))
		assert.True(t, axes.Equal(outAxes))
	})

	t.Run("inner window", func(t *testing.T) {
		out, outAxes, err := Crop(m, axes, Bounds{2, 4, 15, 25}, core.CropClamp)
		require.NoError(t, err)
		rows, cols := out.Dims()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 3, cols)
		assert.Equal(t, []float64{2, 3, 4}, outAxes.DT)
		assert.Equal(t, []float64{15, 20, 25}, outAxes.CV)
		assert.Equal(t, 11.0, out.At(0, 0))
	})

	t.Run("low above high fails", func(t *testing.T) {
		for _, policy := range []string{core.CropClamp, core.CropStrict} {
			_, _, err := Crop(m, axes, Bounds{4, 2, 10, 30}, policy)
			assert.ErrorIs(t, err, core.ErrAxisMismatch)
			_, _, err = Crop(m, axes, Bounds{1, 6, 30, 10}, policy)
			assert.ErrorIs(t, err, core.ErrAxisMismatch)
		}
	})

	t.Run("bounds outside axis fail", func(t *testing.T) {
		_, _, err := Crop(m, axes, Bounds{10, 20, 10, 30}, core.CropClamp)
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
		_, _, err = Crop(m, axes, Bounds{1, 6, 0, 5}, core.CropClamp)
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
	})

	t.Run("window between grid points fails", func(t *testing.T) {
		_, _, err := Crop(m, axes, Bounds{2.2, 2.8, 10, 30}, core.CropClamp)
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
	})

	t.Run("partial overlap clamps", func(t *testing.T) {
		out, outAxes, err := Crop(m, axes, Bounds{0, 3, 20, 100}, core.CropClamp)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, outAxes.DT)
		assert.Equal(t, []float64{20, 25, 30}, outAxes.CV)
		assert.Equal(t, 2.0, out.At(0, 0))
	})

	t.Run("partial overlap fails when strict", func(t *testing.T) {
		_, _, err := Crop(m, axes, Bounds{0, 3, 20, 100}, core.CropStrict)
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
	})
}

func TestAverage(t *testing.T) {
	axes := core.Axes{DT: seqAxis(1, 1, 3), CV: seqAxis(5, 5, 2)}
	m := mat.NewDense(3, 2, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	t.Run("identical replicates", func(t *testing.T) {
		objs := []*core.AnalysisObject{newObject(t, m, axes), newObject(t, m, axes), newObject(t, m, axes)}
		avg, err := Average(objs)
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(m, avg.Data(), 1e-12))
		assert.Len(t, avg.Sources, 3)
		assert.True(t, avg.IsAverage())
		assert.True(t, axes.Equal(avg.Axes()))
	})

	t.Run("mean of different replicates", func(t *testing.T) {
		zero := mat.NewDense(3, 2, nil)
		avg, err := Average([]*core.AnalysisObject{newObject(t, m, axes), newObject(t, zero, axes)})
		require.NoError(t, err)
		assert.InDelta(t, 0.3, avg.Data().At(2, 1), 1e-12)
	})

	t.Run("axis length mismatch", func(t *testing.T) {
		other := core.Axes{DT: seqAxis(1, 1, 4), CV: seqAxis(5, 5, 2)}
		_, err := Average([]*core.AnalysisObject{newObject(t, m, axes), newObject(t, mat.NewDense(4, 2, nil), other)})
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
	})

	t.Run("axis value mismatch", func(t *testing.T) {
		other := core.Axes{DT: seqAxis(2, 1, 3), CV: seqAxis(5, 5, 2)}
		_, err := Average([]*core.AnalysisObject{newObject(t, m, axes), newObject(t, m, other)})
		assert.ErrorIs(t, err, core.ErrAxisMismatch)
	})

	t.Run("single input", func(t *testing.T) {
		_, err := Average([]*core.AnalysisObject{newObject(t, m, axes)})
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

// Seed fixture: a constant 5x5 fingerprint normalizes to ones and is unchanged by smoothing.
func TestPipelineConstantFixture(t *testing.T) {
	data := mat.NewDense(5, 5, []float64{
		10, 10, 10, 10, 10,
		10, 10, 10, 10, 10,
		10, 10, 10, 10, 10,
		10, 10, 10, 10, 10,
		10, 10, 10, 10, 10,
	})
	axes := core.Axes{DT: []float64{1, 2, 3, 4, 5}, CV: []float64{5, 10, 15, 20, 25}}
	raw := newRaw(t, data, axes)

	normalized, err := Normalize(raw.Data, core.NormalizeMax)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			assert.Equal(t, 1.0, normalized.At(i, j))
		}
	}

	smoothed, err := Smooth(normalized, 3, 2, 1)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(normalized, smoothed, 1e-12))

	p := core.DefaultParams()
	p.SmoothingWindow = 3
	p.SmoothingIterations = 1
	obj, err := Run(raw, p)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(normalized, obj.Data(), 1e-12))
	assert.Same(t, raw, obj.Raw)
	assert.Equal(t, 10.0, raw.Data.At(0, 0), "raw data must not be mutated")
}

func TestRunStages(t *testing.T) {
	axes := core.Axes{DT: seqAxis(1, 1, 10), CV: seqAxis(5, 5, 4)}
	data := mat.NewDense(10, 4, nil)
	for i := 0; i < 10; i++ {
		for j := 0; j < 4; j++ {
			data.Set(i, j, float64((i+1)*(j+1)))
		}
	}
	raw := newRaw(t, data, axes)

	p := core.DefaultParams()
	p.InterpolationBins = 19
	p.SmoothingWindow = 5
	p.SmoothingIterations = 2
	p.CroppingBounds = []float64{2, 8, 10, 15}

	obj, err := Run(raw, p)
	require.NoError(t, err)
	outAxes := obj.Axes()
	assert.Equal(t, []float64{10, 15}, outAxes.CV)
	assert.Equal(t, 2.0, outAxes.DT[0])
	assert.Equal(t, 8.0, outAxes.DT[len(outAxes.DT)-1])
	assert.Len(t, outAxes.DT, 13)
	assert.Equal(t, p, obj.Params)
}

func TestRunRejectsBadConfigurationEagerly(t *testing.T) {
	axes := core.Axes{DT: seqAxis(1, 1, 5), CV: seqAxis(5, 5, 2)}
	raw := newRaw(t, mat.NewDense(5, 2, nil), axes)

	tests := []struct {
		name    string
		modify  func(p *core.Params)
		wantErr error
	}{
		{"even window", func(p *core.Params) { p.SmoothingWindow = 4 }, core.ErrConfiguration},
		{"window longer than DT", func(p *core.Params) { p.SmoothingWindow = 7 }, core.ErrConfiguration},
		{"crop low above high", func(p *core.Params) { p.CroppingBounds = []float64{4, 2, 5, 10} }, core.ErrAxisMismatch},
		{"crop outside CV", func(p *core.Params) { p.CroppingBounds = []float64{1, 5, 50, 60} }, core.ErrAxisMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := core.DefaultParams()
			tt.modify(&p)
			obj, err := Run(raw, p)
			assert.Nil(t, obj)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRMSDAndDeltaDT(t *testing.T) {
	axes := core.Axes{DT: []float64{1, 2, 3}, CV: []float64{5, 10}}
	a := newObject(t, mat.NewDense(3, 2, []float64{0, 1, 1, 0, 0, 0}), axes)
	b := newObject(t, mat.NewDense(3, 2, []float64{0, 1, 1, 0, 0, 1}), axes)

	same, err := RMSD(a, a)
	require.NoError(t, err)
	assert.Equal(t, 0.0, same)

	diff, err := RMSD(a, b)
	require.NoError(t, err)
	// one unit difference over six cells
	assert.InDelta(t, 100/2.449489742783178, diff, 1e-9)

	other := newObject(t, mat.NewDense(2, 2, nil), core.Axes{DT: []float64{1, 2}, CV: []float64{5, 10}})
	_, err = RMSD(a, other)
	assert.ErrorIs(t, err, core.ErrAxisMismatch)

	shifted, err := DeltaDT(a)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1}, shifted.Axes().DT)
	assert.Equal(t, []float64{1, 2, 3}, a.Axes().DT, "input axes must be untouched")

	withFit := newObject(t, mat.NewDense(3, 2, nil), axes)
	require.NoError(t, withFit.AttachFit(&core.FitResult{
		ComponentsPerColumn: 1,
		Columns: []core.ColumnFit{
			{Index: 0, Err: &core.FitConvergenceError{Reason: "singular"}},
			{Index: 1, Components: []core.Component{core.NewComponent(0, 1, 2.5, 1)}},
		},
	}))
	shifted, err = DeltaDT(withFit)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.5, -0.5, 0.5}, shifted.Axes().DT)
	assert.Nil(t, shifted.Fit)
}
