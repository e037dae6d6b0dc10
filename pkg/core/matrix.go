// Package core provides the data model and validation logic for CIU fingerprints:
// raw matrices, analysis objects, fit results and feature sets.
package core

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// RawSuffix is the filename suffix carried by raw fingerprint exports.
const RawSuffix = "_raw.csv"

// Axes holds the drift-time (rows) and collision-voltage (columns) axes of a fingerprint.
type Axes struct {
	DT []float64
	CV []float64
}

// Clone returns a deep copy of the axes.
func (a Axes) Clone() Axes {
	return Axes{
		DT: append([]float64(nil), a.DT...),
		CV: append([]float64(nil), a.CV...),
	}
}

// Equal reports whether both axes have the same lengths and identical values.
func (a Axes) Equal(b Axes) bool {
	return floatsEqual(a.DT, b.DT) && floatsEqual(a.CV, b.CV)
}

// Validate checks that both axes are non-empty, finite and strictly increasing.
func (a Axes) Validate() error {
	if err := validateAxis("DT", a.DT); err != nil {
		return err
	}
	return validateAxis("CV", a.CV)
}

func validateAxis(name string, axis []float64) error {
	if len(axis) == 0 {
		return &AxisMismatchError{Axis: name, Message: "axis is empty"}
	}
	for i, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &AxisMismatchError{Axis: name, Message: fmt.Sprintf("value %d is not finite", i)}
		}
		if i > 0 && v <= axis[i-1] {
			return &AxisMismatchError{Axis: name, Message: fmt.Sprintf("values must be strictly increasing (index %d)", i)}
		}
	}
	return nil
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RawMatrix is a fingerprint exactly as loaded. It is never mutated after load.
type RawMatrix struct {
	Filename string // base name, e.g. "ubq_7_raw.csv"
	Filepath string // full path the data was read from
	Data     *mat.Dense
	Axes     Axes
}

// NewRawMatrix validates the data against its axes and returns the raw matrix.
func NewRawMatrix(path string, data *mat.Dense, axes Axes) (*RawMatrix, error) {
	raw := &RawMatrix{
		Filename: filepath.Base(path),
		Filepath: path,
		Data:     data,
		Axes:     axes,
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return raw, nil
}

// Validate checks dimensions, axis ordering and intensity values.
func (r *RawMatrix) Validate() error {
	var errs []string

	if r.Data == nil {
		return &InputFormatError{File: r.Filename, Message: "no intensity data"}
	}
	rows, cols := r.Data.Dims()
	if rows != len(r.Axes.DT) {
		errs = append(errs, fmt.Sprintf("%d rows but %d DT values", rows, len(r.Axes.DT)))
	}
	if cols != len(r.Axes.CV) {
		errs = append(errs, fmt.Sprintf("%d columns but %d CV values", cols, len(r.Axes.CV)))
	}
	if err := r.Axes.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Intensities
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := r.Data.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Sprintf("intensity at (%d,%d) is not finite", i, j))
			} else if v < 0 {
				errs = append(errs, fmt.Sprintf("intensity at (%d,%d) is negative", i, j))
			}
		}
	}

	if len(errs) > 0 {
		return &InputFormatError{
			File:    r.Filename,
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// BaseName returns the filename with the raw suffix removed. Only an exact trailing
// "_raw.csv" is stripped; otherwise the extension is dropped.
func (r *RawMatrix) BaseName() string {
	return BaseName(r.Filename)
}

// BaseName strips an exact RawSuffix, or else the file extension, from a file name.
func BaseName(name string) string {
	name = filepath.Base(name)
	if strings.HasSuffix(name, RawSuffix) {
		return strings.TrimSuffix(name, RawSuffix)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Column returns a copy of column j of m.
func Column(m mat.Matrix, j int) []float64 {
	return mat.Col(nil, j, m)
}
