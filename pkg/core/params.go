package core

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Normalization modes
const (
	NormalizeMax = "max"
	NormalizeSum = "sum"
)

// Interpolation methods
const (
	InterpLinear = "linear"
	InterpAkima  = "akima"
	InterpPCHIP  = "pchip"
)

// Crop policies for bounds that only partly overlap the axis range.
const (
	CropClamp  = "clamp"
	CropStrict = "strict"
)

// Params is the resolved, immutable configuration handed to every stage.
// Zero values for InterpolationBins and SmoothingWindow disable those stages.
type Params struct {
	Normalization       string    `yaml:"normalization"`
	InterpolationBins   int       `yaml:"interpolation_bins"`
	InterpolationMethod string    `yaml:"interpolation_method"`
	SmoothingWindow     int       `yaml:"smoothing_window"`
	SmoothingOrder      int       `yaml:"smoothing_order"`
	SmoothingIterations int       `yaml:"smoothing_iterations"`
	CroppingBounds      []float64 `yaml:"cropping_bounds,flow,omitempty"` // dt_low, dt_high, cv_low, cv_high
	CropPolicy          string    `yaml:"crop_policy"`
	SaveOutputCSV       bool      `yaml:"save_output_csv"`

	GaussComponents    int     `yaml:"gauss_components"`
	GaussWidth         float64 `yaml:"gauss_width"`
	GaussMaxIterations int     `yaml:"gauss_max_iterations"`

	FeatureThreshold      float64 `yaml:"feature_threshold"`
	FeatureSmoothWindow   int     `yaml:"feature_smooth_window"`
	FeatureMinStateLength int     `yaml:"feature_min_state_length"`
	FeatureLogistic       bool    `yaml:"feature_logistic"`
}

// DefaultParams returns the parameter set used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Normalization:         NormalizeMax,
		InterpolationMethod:   InterpLinear,
		SmoothingOrder:        2,
		SmoothingIterations:   1,
		CropPolicy:            CropClamp,
		GaussComponents:       1,
		GaussWidth:            0.5,
		GaussMaxIterations:    200,
		FeatureThreshold:      0.5,
		FeatureMinStateLength: 3,
	}
}

// LoadParams decodes a YAML parameter file on top of DefaultParams.
func LoadParams(r io.Reader) (Params, error) {
	p := DefaultParams()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Params{}, fmt.Errorf("failed to parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// HasCrop reports whether cropping bounds are configured.
func (p Params) HasCrop() bool {
	return len(p.CroppingBounds) > 0
}

// Validate checks every numeric parameter so no transformation starts on a bad configuration.
func (p Params) Validate() error {
	var errs []string
	var field string

	fail := func(f, msg string) {
		if field == "" {
			field = f
		}
		errs = append(errs, msg)
	}

	switch p.Normalization {
	case NormalizeMax, NormalizeSum:
	default:
		fail("normalization", fmt.Sprintf("unknown normalization %q", p.Normalization))
	}

	if p.InterpolationBins != 0 && p.InterpolationBins < 2 {
		fail("interpolation_bins", "must be at least 2")
	}
	switch p.InterpolationMethod {
	case InterpLinear, InterpAkima, InterpPCHIP:
	default:
		fail("interpolation_method", fmt.Sprintf("unknown interpolation method %q", p.InterpolationMethod))
	}

	if p.SmoothingWindow != 0 {
		if p.SmoothingWindow < 0 || p.SmoothingWindow%2 == 0 {
			fail("smoothing_window", "must be a positive odd integer")
		}
		if p.SmoothingOrder < 0 {
			fail("smoothing_order", "must be non-negative")
		}
		if p.SmoothingWindow <= p.SmoothingOrder {
			fail("smoothing_window", "must exceed the polynomial order")
		}
		if p.SmoothingIterations < 1 {
			fail("smoothing_iterations", "must be at least 1")
		}
		if p.InterpolationBins != 0 && p.SmoothingWindow > p.InterpolationBins {
			fail("smoothing_window", "exceeds the interpolated DT length")
		}
	}

	if p.HasCrop() {
		if len(p.CroppingBounds) != 4 {
			fail("cropping_bounds", "expected [dt_low, dt_high, cv_low, cv_high]")
		} else {
			for _, v := range p.CroppingBounds {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					fail("cropping_bounds", "bounds must be finite")
					break
				}
			}
		}
	}
	switch p.CropPolicy {
	case CropClamp, CropStrict:
	default:
		fail("crop_policy", fmt.Sprintf("unknown crop policy %q", p.CropPolicy))
	}

	if p.GaussComponents < 1 {
		fail("gauss_components", "must be at least 1")
	}
	if !(p.GaussWidth > 0) {
		fail("gauss_width", "must be positive")
	}
	if p.GaussMaxIterations < 1 {
		fail("gauss_max_iterations", "must be at least 1")
	}

	if !(p.FeatureThreshold > 0) {
		fail("feature_threshold", "must be positive")
	}
	if p.FeatureSmoothWindow < 0 || (p.FeatureSmoothWindow > 0 && p.FeatureSmoothWindow%2 == 0) {
		fail("feature_smooth_window", "must be 0 or a positive odd integer")
	}
	if p.FeatureMinStateLength < 2 {
		fail("feature_min_state_length", "must be at least 2")
	}

	if len(errs) > 0 {
		return &ConfigurationError{
			Field:   field,
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}
