package core

import "math"

// FWHMFactor converts a Gaussian width (sigma) to full width at half maximum: 2*sqrt(2*ln 2).
const FWHMFactor = 2.3548

// Component is one fitted Gaussian peak of a column.
type Component struct {
	Baseline   float64
	Amplitude  float64
	Centroid   float64
	Width      float64
	FWHM       float64 // Width * FWHMFactor
	Resolution float64 // Centroid / FWHM
}

// NewComponent derives FWHM and resolution from the fitted parameters.
func NewComponent(baseline, amplitude, centroid, width float64) Component {
	width = math.Abs(width)
	fwhm := width * FWHMFactor
	c := Component{
		Baseline:  baseline,
		Amplitude: amplitude,
		Centroid:  centroid,
		Width:     width,
		FWHM:      fwhm,
	}
	if fwhm != 0 {
		c.Resolution = centroid / fwhm
	}
	return c
}

// ColumnFit is the tagged outcome of fitting one CV column: success with parameters, or
// failure with Err set to a *FitConvergenceError.
type ColumnFit struct {
	Index       int
	CV          float64
	Components  []Component
	Fitted      []float64   // fitted curve on the DT axis
	Covariance  [][]float64 // p x p, parameter order: baseline, then (amplitude, centroid, width) per component
	RSquared    float64
	AdjRSquared float64
	Iterations  int
	Err         error
}

// OK reports whether the column was fit successfully.
func (c *ColumnFit) OK() bool {
	return c.Err == nil
}

// Dominant returns the component with the largest amplitude.
func (c *ColumnFit) Dominant() (Component, bool) {
	if !c.OK() || len(c.Components) == 0 {
		return Component{}, false
	}
	best := c.Components[0]
	for _, comp := range c.Components[1:] {
		if comp.Amplitude > best.Amplitude {
			best = comp
		}
	}
	return best, true
}

// FitResult holds one ColumnFit per CV column, in CV-axis order.
type FitResult struct {
	ComponentsPerColumn int
	Columns             []ColumnFit
}

// Failed returns the indexes of columns whose fit failed.
func (r *FitResult) Failed() []int {
	var idx []int
	for i := range r.Columns {
		if !r.Columns[i].OK() {
			idx = append(idx, i)
		}
	}
	return idx
}

// parameter returns a parallel array of len(Columns)*ComponentsPerColumn entries. Entries of
// failed columns are NaN and are reported as not valid in the second slice.
func (r *FitResult) parameter(get func(Component) float64) ([]float64, []bool) {
	k := r.ComponentsPerColumn
	vals := make([]float64, len(r.Columns)*k)
	ok := make([]bool, len(vals))
	for i := range r.Columns {
		col := &r.Columns[i]
		for c := 0; c < k; c++ {
			slot := i*k + c
			if col.OK() && c < len(col.Components) {
				vals[slot] = get(col.Components[c])
				ok[slot] = true
			} else {
				vals[slot] = math.NaN()
			}
		}
	}
	return vals, ok
}

// Baselines returns the fitted baselines as a parallel array with validity flags.
func (r *FitResult) Baselines() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.Baseline })
}

// Amplitudes returns the fitted amplitudes as a parallel array with validity flags.
func (r *FitResult) Amplitudes() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.Amplitude })
}

// Centroids returns the fitted centroids as a parallel array with validity flags.
func (r *FitResult) Centroids() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.Centroid })
}

// Widths returns the fitted widths as a parallel array with validity flags.
func (r *FitResult) Widths() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.Width })
}

// FWHMs returns FWHM values as a parallel array with validity flags.
func (r *FitResult) FWHMs() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.FWHM })
}

// Resolutions returns resolution values as a parallel array with validity flags.
func (r *FitResult) Resolutions() ([]float64, []bool) {
	return r.parameter(func(c Component) float64 { return c.Resolution })
}

// State is a segment of the centroid trajectory with a stable drift time.
type State struct {
	StartIndex   int // trajectory index of the first member point
	EndIndex     int // trajectory index of the last member point
	StartCV      float64
	EndCV        float64
	Points       int
	MeanCentroid float64
	MeanWidth    float64
}

// Transition is a shift between two adjacent states.
type Transition struct {
	Midpoint  float64 // CV midpoint (CIU50)
	LowState  int     // index into FeatureSet.States
	HighState int     // index into FeatureSet.States
	Logistic  bool    // midpoint refined by a logistic fit
}

// FeatureSet is the ordered output of feature detection.
type FeatureSet struct {
	States      []State
	Transitions []Transition
}

// Empty reports whether no transitions were detected.
func (f *FeatureSet) Empty() bool {
	return len(f.Transitions) == 0
}

// Flanks returns the low-CV and high-CV states of transition i.
func (f *FeatureSet) Flanks(i int) (State, State) {
	t := f.Transitions[i]
	return f.States[t.LowState], f.States[t.HighState]
}
