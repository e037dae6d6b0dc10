package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AnalysisObject owns a raw fingerprint, the current processed matrix with its own axes,
// and the results attached by downstream stages. The processed matrix and axes are only
// ever replaced as a pair.
type AnalysisObject struct {
	ID       string // assigned when stored; empty until then
	Raw      *RawMatrix
	Sources  []*RawMatrix // replicate sources for averaged objects
	Params   Params
	Filename string // snapshot file this object was last saved to or loaded from

	data *mat.Dense
	axes Axes

	Fit      *FitResult
	Features *FeatureSet
}

// NewAnalysisObject creates an analysis object whose processed matrix starts as the given data.
func NewAnalysisObject(raw *RawMatrix, data *mat.Dense, axes Axes, params Params) (*AnalysisObject, error) {
	obj := &AnalysisObject{
		Raw:    raw,
		Params: params,
	}
	if err := obj.Replace(data, axes); err != nil {
		return nil, err
	}
	return obj, nil
}

// Data returns the current processed matrix. Callers must not modify it.
func (a *AnalysisObject) Data() *mat.Dense {
	return a.data
}

// Axes returns the axes of the current processed matrix.
func (a *AnalysisObject) Axes() Axes {
	return a.axes
}

// Replace installs a new processed matrix and axes pair. Results computed on the previous
// matrix are dropped.
func (a *AnalysisObject) Replace(data *mat.Dense, axes Axes) error {
	if data == nil {
		return fmt.Errorf("processed matrix is nil")
	}
	rows, cols := data.Dims()
	if rows != len(axes.DT) || cols != len(axes.CV) {
		return &AxisMismatchError{
			Message: fmt.Sprintf("matrix is %dx%d but axes are %dx%d", rows, cols, len(axes.DT), len(axes.CV)),
		}
	}
	a.data = data
	a.axes = axes
	a.Fit = nil
	a.Features = nil
	return nil
}

// Derive returns a copy of the object carrying a new processed matrix and axes. Raw and
// source references are shared; results are not carried over.
func (a *AnalysisObject) Derive(data *mat.Dense, axes Axes) (*AnalysisObject, error) {
	out := &AnalysisObject{
		Raw:      a.Raw,
		Sources:  a.Sources,
		Params:   a.Params,
		Filename: a.Filename,
	}
	if err := out.Replace(data, axes); err != nil {
		return nil, err
	}
	return out, nil
}

// AttachFit attaches a Gaussian fit result computed on the current matrix. Features
// detected from an earlier fit are dropped.
func (a *AnalysisObject) AttachFit(r *FitResult) error {
	if r == nil {
		return fmt.Errorf("fit result is nil")
	}
	if len(r.Columns) != len(a.axes.CV) {
		return &AxisMismatchError{
			Axis:    "CV",
			Message: fmt.Sprintf("fit has %d columns but matrix has %d", len(r.Columns), len(a.axes.CV)),
		}
	}
	a.Fit = r
	a.Features = nil
	return nil
}

// AttachFeatures attaches a feature set. A fit must be attached first.
func (a *AnalysisObject) AttachFeatures(f *FeatureSet) error {
	if a.Fit == nil {
		return fmt.Errorf("no Gaussian fit attached")
	}
	if f == nil {
		return fmt.Errorf("feature set is nil")
	}
	a.Features = f
	return nil
}

// BaseName returns the name used for output files derived from this object: the snapshot
// file name when the object has one, otherwise the raw file name.
func (a *AnalysisObject) BaseName() string {
	if a.Filename != "" {
		return BaseName(a.Filename)
	}
	if a.Raw == nil {
		return "analysis"
	}
	return a.Raw.BaseName()
}

// IsAverage reports whether the object was produced by averaging replicates.
func (a *AnalysisObject) IsAverage() bool {
	return len(a.Sources) > 1
}
