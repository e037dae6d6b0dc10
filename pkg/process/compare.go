package process

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// RMSD returns the root-mean-square deviation between two processed fingerprints as a
// percentage of full scale. Both must share identical axes.
func RMSD(a, b *core.AnalysisObject) (float64, error) {
	diff, err := Difference(a, b)
	if err != nil {
		return 0, err
	}
	rows, cols := diff.Dims()
	// Frobenius norm
	dist := mat.Norm(diff, 2)
	return dist / math.Sqrt(float64(rows*cols)) * 100, nil
}

// Difference returns a - b elementwise for two fingerprints sharing axes.
func Difference(a, b *core.AnalysisObject) (*mat.Dense, error) {
	if !a.Axes().Equal(b.Axes()) {
		return nil, &core.AxisMismatchError{Message: fmt.Sprintf("cannot compare %s with %s", a.BaseName(), b.BaseName())}
	}
	var diff mat.Dense
	diff.Sub(a.Data(), b.Data())
	return &diff, nil
}

// DeltaDT shifts the DT axis so that the reference drift time becomes zero. The reference
// is the first successfully fitted centroid when a fit is attached, otherwise the drift time
// of the maximum of the first column. Results computed on the old axis are not carried over.
func DeltaDT(obj *core.AnalysisObject) (*core.AnalysisObject, error) {
	axes := obj.Axes()
	if len(axes.CV) == 0 || len(axes.DT) == 0 {
		return nil, &core.AxisMismatchError{Message: "empty fingerprint"}
	}

	ref, ok := firstCentroid(obj.Fit)
	if !ok {
		col := core.Column(obj.Data(), 0)
		ref = axes.DT[floats.MaxIdx(col)]
	}

	shifted := axes.Clone()
	for i := range shifted.DT {
		shifted.DT[i] -= ref
	}
	return obj.Derive(mat.DenseCopyOf(obj.Data()), shifted)
}

func firstCentroid(fit *core.FitResult) (float64, bool) {
	if fit == nil {
		return 0, false
	}
	for i := range fit.Columns {
		if comp, ok := fit.Columns[i].Dominant(); ok {
			return comp.Centroid, true
		}
	}
	return 0, false
}
