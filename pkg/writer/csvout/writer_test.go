package csvout

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/reader/rawcsv"
)

func TestMatrixRoundTrip(t *testing.T) {
	axes := core.Axes{DT: []float64{0.1, 0.2, 1.0 / 3}, CV: []float64{5, 7.5}}
	data := mat.NewDense(3, 2, []float64{
		0, 1e-12,
		2.0 / 3, 1,
		0.123456789012345, 42,
	})

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, data, axes))
	assert.True(t, strings.HasPrefix(buf.String(), ",5,7.5\n"))

	raw, err := rawcsv.NewReader(&buf, "rt_raw.csv").Read()
	require.NoError(t, err)
	assert.Equal(t, axes, raw.Axes)
	assert.True(t, mat.Equal(data, raw.Data))
}

func TestWriteMatrixMismatch(t *testing.T) {
	err := WriteMatrix(&bytes.Buffer{}, mat.NewDense(2, 2, nil), core.Axes{DT: []float64{1}, CV: []float64{1, 2}})
	assert.ErrorIs(t, err, core.ErrAxisMismatch)
}

func TestSaveMatrix(t *testing.T) {
	axes := core.Axes{DT: []float64{1, 2}, CV: []float64{10}}
	raw, err := core.NewRawMatrix("s_raw.csv", mat.NewDense(2, 1, []float64{3, 4}), axes)
	require.NoError(t, err)
	obj, err := core.NewAnalysisObject(raw, mat.NewDense(2, 1, []float64{0.75, 1}), axes, core.DefaultParams())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "s_processed_raw.csv")
	require.NoError(t, SaveMatrix(path, obj))
	back, err := rawcsv.Load(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(obj.Data(), back.Data))
}

func readAll(t *testing.T, s string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteGaussDiagnostics(t *testing.T) {
	fit := &core.FitResult{
		ComponentsPerColumn: 2,
		Columns: []core.ColumnFit{
			{
				Index: 0, CV: 5, RSquared: 0.99, AdjRSquared: 0.98,
				Components: []core.Component{
					core.NewComponent(0, 1, 4.7, 0.5),
					core.NewComponent(0, 0.2, 6.1, 0.4),
				},
			},
			{Index: 1, CV: 10, Err: &core.FitConvergenceError{Column: 1, CV: 10, Reason: "singular fit"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteGaussDiagnostics(&buf, fit))
	records := readAll(t, buf.String())
	require.Len(t, records, 4)
	assert.Equal(t, "TrapCV", records[0][0])

	assert.Equal(t, []string{"5", "1", "4.7", "0.5", "1.1774"}, records[1][0:5])
	assert.Equal(t, "2", records[2][1])
	assert.Equal(t, "ok", records[2][10])
	assert.Equal(t, "10", records[3][0])
	assert.Equal(t, "", records[3][2])
	assert.Contains(t, records[3][10], "singular fit")
}

func TestWriteFeatures(t *testing.T) {
	fs := &core.FeatureSet{
		States: []core.State{
			{StartCV: 0, EndCV: 9, MeanCentroid: 3, MeanWidth: 0.5},
			{StartCV: 10, EndCV: 20, MeanCentroid: 7, MeanWidth: 0.6},
		},
		Transitions: []core.Transition{{Midpoint: 9.5, LowState: 0, HighState: 1, Logistic: true}},
	}

	records := FeatureRecords("ubq", fs)
	records = append(records, FeatureRecords("empty", &core.FeatureSet{})...)
	require.Len(t, records, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, records))
	got := readAll(t, buf.String())
	require.Len(t, got, 2)
	assert.Equal(t, FeatureHeader, got[0])
	assert.Equal(t, []string{"ubq", "9.5", "0", "9", "3", "0.5", "10", "20", "7", "0.6", "logistic"}, got[1])
}

func TestWriteFeaturesShort(t *testing.T) {
	fs := &core.FeatureSet{
		States: make([]core.State, 3),
		Transitions: []core.Transition{
			{Midpoint: 9.5, LowState: 0, HighState: 1},
			{Midpoint: 22.25, LowState: 1, HighState: 2},
		},
	}
	records := [][]string{
		FeatureShortRecord("ubq", fs),
		FeatureShortRecord("flat", &core.FeatureSet{States: make([]core.State, 1)}),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFeaturesShort(&buf, records))
	assert.Equal(t, "ubq,9.5,22.25\nflat\n", buf.String())
}

func TestWriteRMSDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRMSDs(&buf, []RMSD{{File1: "a", File2: "b", Percent: 3.14159}}))
	assert.Equal(t, "File 1,File 2,RMSD (%)\na,b,3.14\n", buf.String())
}
