package process

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Check validates params against a raw matrix before any transformation runs, so a bad
// configuration never yields partial output.
func Check(raw *core.RawMatrix, p core.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	dtLen := len(raw.Axes.DT)
	if p.InterpolationBins != 0 {
		if dtLen < 2 {
			return &core.ConfigurationError{Field: "interpolation_bins", Message: "DT axis has fewer than 2 points"}
		}
		dtLen = p.InterpolationBins
	}
	if p.SmoothingWindow != 0 && p.SmoothingWindow > dtLen {
		return &core.ConfigurationError{
			Field:   "smoothing_window",
			Message: fmt.Sprintf("window %d exceeds DT axis length %d", p.SmoothingWindow, dtLen),
		}
	}

	if p.HasCrop() {
		b, err := BoundsFromSlice(p.CroppingBounds)
		if err != nil {
			return err
		}
		// Interpolation keeps the DT range, so range checks hold on the raw axes.
		axes := raw.Axes
		if p.InterpolationBins != 0 {
			if err := checkBounds("DT", axes.DT, b.DTLow, b.DTHigh, p.CropPolicy); err != nil {
				return err
			}
		} else if _, _, err := selectRange("DT", axes.DT, b.DTLow, b.DTHigh, p.CropPolicy); err != nil {
			return err
		}
		if _, _, err := selectRange("CV", axes.CV, b.CVLow, b.CVHigh, p.CropPolicy); err != nil {
			return err
		}
	}
	return nil
}

// Run takes a raw matrix through normalization, optional interpolation, optional smoothing
// and optional cropping, returning a new analysis object that records params.
func Run(raw *core.RawMatrix, p core.Params) (*core.AnalysisObject, error) {
	if err := Check(raw, p); err != nil {
		return nil, err
	}

	data, err := Normalize(raw.Data, p.Normalization)
	if err != nil {
		return nil, err
	}
	axes := raw.Axes.Clone()

	if p.InterpolationBins != 0 {
		data, axes, err = Interpolate(data, axes, p.InterpolationBins, p.InterpolationMethod)
		if err != nil {
			return nil, fmt.Errorf("interpolation failed: %w", err)
		}
	}

	if p.SmoothingWindow != 0 {
		data, err = Smooth(data, p.SmoothingWindow, p.SmoothingOrder, p.SmoothingIterations)
		if err != nil {
			return nil, fmt.Errorf("smoothing failed: %w", err)
		}
	}

	if p.HasCrop() {
		data, axes, err = CropWithParams(data, axes, p)
		if err != nil {
			return nil, fmt.Errorf("cropping failed: %w", err)
		}
	}

	return core.NewAnalysisObject(raw, data, axes, p)
}

// CropWithParams crops using the configured bounds and policy.
func CropWithParams(m mat.Matrix, axes core.Axes, p core.Params) (*mat.Dense, core.Axes, error) {
	b, err := BoundsFromSlice(p.CroppingBounds)
	if err != nil {
		return nil, core.Axes{}, err
	}
	return Crop(m, axes, b, p.CropPolicy)
}

// CropObject returns a copy of obj cropped to bounds. The copy records the bounds in its params.
func CropObject(obj *core.AnalysisObject, b Bounds, policy string) (*core.AnalysisObject, error) {
	data, axes, err := Crop(obj.Data(), obj.Axes(), b, policy)
	if err != nil {
		return nil, err
	}
	out, err := obj.Derive(data, axes)
	if err != nil {
		return nil, err
	}
	out.Params.CroppingBounds = []float64{b.DTLow, b.DTHigh, b.CVLow, b.CVHigh}
	if policy != "" {
		out.Params.CropPolicy = policy
	}
	return out, nil
}
