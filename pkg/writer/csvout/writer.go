// Package csvout writes processed matrices and fit/feature diagnostics as CSV.
package csvout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteMatrix writes a matrix and its axes in the raw CSV layout read by the rawcsv package.
// Values are written at full precision so the output round-trips exactly.
func WriteMatrix(w io.Writer, data mat.Matrix, axes core.Axes) error {
	rows, cols := data.Dims()
	if rows != len(axes.DT) || cols != len(axes.CV) {
		return &core.AxisMismatchError{Message: fmt.Sprintf("matrix is %dx%d but axes are %dx%d", rows, cols, len(axes.DT), len(axes.CV))}
	}

	cw := csv.NewWriter(w)
	record := make([]string, cols+1)

	record[0] = ""
	for j, v := range axes.CV {
		record[j+1] = formatFloat(v)
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, d := range axes.DT {
		record[0] = formatFloat(d)
		for j := 0; j < cols; j++ {
			record[j+1] = formatFloat(data.At(i, j))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveMatrix writes the processed matrix of obj to path.
func SaveMatrix(path string, obj *core.AnalysisObject) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteMatrix(f, obj.Data(), obj.Axes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteGaussDiagnostics writes one row per CV column and component with the fit statistics.
// Failed columns get a single row carrying the failure reason.
func WriteGaussDiagnostics(w io.Writer, fit *core.FitResult) error {
	cw := csv.NewWriter(w)
	header := []string{"TrapCV", "Component", "ATD_centroid", "ATD_width", "ATD_FWHM", "ATD_Resolution", "Amplitude", "Baseline", "R^2", "Adj_R^2", "Status"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range fit.Columns {
		col := &fit.Columns[i]
		if !col.OK() {
			record := []string{formatFloat(col.CV), "", "", "", "", "", "", "", "", "", col.Err.Error()}
			if err := cw.Write(record); err != nil {
				return err
			}
			continue
		}
		for k, comp := range col.Components {
			record := []string{
				formatFloat(col.CV),
				strconv.Itoa(k + 1),
				formatFloat(comp.Centroid),
				formatFloat(comp.Width),
				formatFloat(comp.FWHM),
				formatFloat(comp.Resolution),
				formatFloat(comp.Amplitude),
				formatFloat(comp.Baseline),
				formatFloat(col.RSquared),
				formatFloat(col.AdjRSquared),
				"ok",
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// FeatureHeader is the column header of the transition report.
var FeatureHeader = []string{"File", "CIU50", "Low_StartCV", "Low_EndCV", "Low_MeanCentroid", "Low_MeanWidth", "High_StartCV", "High_EndCV", "High_MeanCentroid", "High_MeanWidth", "Method"}

// FeatureRecords returns the transition report rows for one analysis.
func FeatureRecords(name string, fs *core.FeatureSet) [][]string {
	records := make([][]string, 0, len(fs.Transitions))
	for i, t := range fs.Transitions {
		low, high := fs.Flanks(i)
		method := "crossing"
		if t.Logistic {
			method = "logistic"
		}
		records = append(records, []string{
			name,
			formatFloat(t.Midpoint),
			formatFloat(low.StartCV),
			formatFloat(low.EndCV),
			formatFloat(low.MeanCentroid),
			formatFloat(low.MeanWidth),
			formatFloat(high.StartCV),
			formatFloat(high.EndCV),
			formatFloat(high.MeanCentroid),
			formatFloat(high.MeanWidth),
			method,
		})
	}
	return records
}

// WriteFeatures writes the transition report for one or more analyses.
func WriteFeatures(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FeatureHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write features: %w", err)
	}
	return nil
}

// FeatureShortRecord returns the compact summary of one analysis: its name followed by the
// CIU50 of every transition in CV order.
func FeatureShortRecord(name string, fs *core.FeatureSet) []string {
	record := []string{name}
	for _, t := range fs.Transitions {
		record = append(record, formatFloat(t.Midpoint))
	}
	return record
}

// WriteFeaturesShort writes one compact row per analysis. Rows have no header since their
// length depends on the number of transitions.
func WriteFeaturesShort(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write feature summary: %w", err)
	}
	return nil
}

// RMSD is one pairwise fingerprint comparison.
type RMSD struct {
	File1, File2 string
	Percent      float64
}

// WriteRMSDs writes a pairwise comparison table.
func WriteRMSDs(w io.Writer, rows []RMSD) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File 1", "File 2", "RMSD (%)"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.File1, r.File2, strconv.FormatFloat(r.Percent, 'f', 2, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
