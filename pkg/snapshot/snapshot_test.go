package snapshot

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

func sampleObject(t *testing.T) *core.AnalysisObject {
	t.Helper()
	axes := core.Axes{DT: []float64{1.5, 2.25, 3.1}, CV: []float64{5, 10}}
	raw, err := core.NewRawMatrix("/data/ubq_7_raw.csv", mat.NewDense(3, 2, []float64{
		0.1, 3,
		1.0 / 3, 4,
		0, 5.5,
	}), axes)
	require.NoError(t, err)

	params := core.DefaultParams()
	params.CroppingBounds = []float64{1, 3, 5, 10}
	params.SmoothingWindow = 3
	obj, err := core.NewAnalysisObject(raw, mat.DenseCopyOf(raw.Data), axes.Clone(), params)
	require.NoError(t, err)
	obj.ID = "5b2f6c0e-2a7e-4b7a-9d0a-0e8b7a3c2f11"
	return obj
}

func TestRoundTripMatrixOnly(t *testing.T) {
	obj := sampleObject(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, obj))
	assert.Contains(t, buf.String(), "version: 1")

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)
	assert.Equal(t, obj.Params, got.Params)
	assert.Equal(t, obj.Axes(), got.Axes())
	assert.True(t, mat.Equal(obj.Data(), got.Data()))
	assert.True(t, mat.Equal(obj.Raw.Data, got.Raw.Data))
	assert.Equal(t, "ubq_7_raw.csv", got.Raw.Filename)
	assert.Equal(t, "ubq_7", got.BaseName())
	assert.Nil(t, got.Fit)
	assert.Nil(t, got.Features)
}

func TestRoundTripWithResults(t *testing.T) {
	obj := sampleObject(t)
	obj.Sources = []*core.RawMatrix{obj.Raw, obj.Raw}

	fit := &core.FitResult{
		ComponentsPerColumn: 1,
		Columns: []core.ColumnFit{
			{
				Index:       0,
				CV:          5,
				Components:  []core.Component{core.NewComponent(0.01, 0.98, 2.2, 0.41)},
				Fitted:      []float64{0.1, 0.3333, 0.02},
				Covariance:  [][]float64{{1e-6, 0}, {0, 2e-5}},
				RSquared:    0.991,
				AdjRSquared: 0.98,
				Iterations:  12,
			},
			{
				Index: 1,
				CV:    10,
				Err:   &core.FitConvergenceError{Column: 1, CV: 10, Reason: "singular fit"},
			},
		},
	}
	require.NoError(t, obj.AttachFit(fit))
	features := &core.FeatureSet{
		States: []core.State{
			{StartIndex: 0, EndIndex: 0, StartCV: 5, EndCV: 5, Points: 1, MeanCentroid: 2.2, MeanWidth: 0.41},
			{StartIndex: 1, EndIndex: 1, StartCV: 10, EndCV: 10, Points: 1, MeanCentroid: 3, MeanWidth: 0.5},
		},
		Transitions: []core.Transition{{Midpoint: 7.5, LowState: 0, HighState: 1, Logistic: true}},
	}
	require.NoError(t, obj.AttachFeatures(features))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, obj))
	got, err := Decode(&buf)
	require.NoError(t, err)

	require.NotNil(t, got.Fit)
	assert.Equal(t, 1, got.Fit.ComponentsPerColumn)
	require.Len(t, got.Fit.Columns, 2)
	ok := got.Fit.Columns[0]
	assert.True(t, ok.OK())
	assert.Equal(t, fit.Columns[0].Components, ok.Components)
	assert.Equal(t, fit.Columns[0].Fitted, ok.Fitted)
	assert.Equal(t, fit.Columns[0].Covariance, ok.Covariance)
	assert.Equal(t, 0.991, ok.RSquared)
	assert.Equal(t, 12, ok.Iterations)

	failed := got.Fit.Columns[1]
	assert.False(t, failed.OK())
	assert.ErrorIs(t, failed.Err, core.ErrFitConvergence)
	assert.Equal(t, fit.Columns[1].Err.Error(), failed.Err.Error())

	require.NotNil(t, got.Features)
	assert.Equal(t, features, got.Features)
	assert.Len(t, got.Sources, 2)
	assert.True(t, got.IsAverage())
}

func TestRejectsUnknownVersion(t *testing.T) {
	obj := sampleObject(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, obj))

	future := strings.Replace(buf.String(), "version: 1", "version: 2", 1)
	_, err := Decode(strings.NewReader(future))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode(strings.NewReader("raw: null\n"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestRejectsCorruptDocuments(t *testing.T) {
	obj := sampleObject(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, obj))
	doc := buf.String()

	t.Run("bad matrix", func(t *testing.T) {
		bad := strings.Replace(doc, "data: ", "data: '!!notbase64' #", 1)
		_, err := Decode(strings.NewReader(bad))
		assert.Error(t, err)
	})
	t.Run("invalid params", func(t *testing.T) {
		bad := strings.Replace(doc, "smoothing_window: 3", "smoothing_window: 4", 1)
		_, err := Decode(strings.NewReader(bad))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
	t.Run("not yaml", func(t *testing.T) {
		_, err := Decode(strings.NewReader("{{{"))
		assert.Error(t, err)
	})
}

func TestSaveLoad(t *testing.T) {
	obj := sampleObject(t)
	dir := t.TempDir()

	path, err := Save(obj, dir, "_Avg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ubq_7_Avg.ciu"), path)
	assert.Equal(t, path, obj.Filename)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, got.Filename)
	assert.True(t, mat.Equal(obj.Data(), got.Data()))

	_, err = Load(filepath.Join(dir, "missing.ciu"))
	assert.Error(t, err)
}
