package process

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Average returns a new analysis object whose matrix is the elementwise mean of the inputs'
// processed matrices. All inputs must share identical axes. The axes and parameters of the
// first input are used and every contributing raw matrix is recorded as a source.
func Average(objs []*core.AnalysisObject) (*core.AnalysisObject, error) {
	if len(objs) < 2 {
		return nil, &core.ConfigurationError{Field: "average", Message: fmt.Sprintf("need at least 2 analyses, got %d", len(objs))}
	}

	first := objs[0]
	axes := first.Axes()
	for i, obj := range objs[1:] {
		other := obj.Axes()
		if len(other.DT) != len(axes.DT) || len(other.CV) != len(axes.CV) {
			return nil, &core.AxisMismatchError{
				Message: fmt.Sprintf("analysis %d is %dx%d, expected %dx%d", i+1, len(other.DT), len(other.CV), len(axes.DT), len(axes.CV)),
			}
		}
		if !axes.Equal(other) {
			return nil, &core.AxisMismatchError{Message: fmt.Sprintf("analysis %d has different axis values", i+1)}
		}
	}

	rows, cols := first.Data().Dims()
	sum := mat.NewDense(rows, cols, nil)
	sources := make([]*core.RawMatrix, 0, len(objs))
	for _, obj := range objs {
		sum.Add(sum, obj.Data())
		if len(obj.Sources) > 0 {
			sources = append(sources, obj.Sources...)
		} else {
			sources = append(sources, obj.Raw)
		}
	}
	sum.Scale(1/float64(len(objs)), sum)

	avg, err := core.NewAnalysisObject(first.Raw, sum, axes.Clone(), first.Params)
	if err != nil {
		return nil, err
	}
	avg.Sources = sources
	avg.Filename = first.Filename
	return avg, nil
}
