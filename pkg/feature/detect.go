// Package feature detects conformational transitions in the centroid trajectory of a
// Gaussian-fitted fingerprint.
//
// The trajectory is segmented into discrete states of stable drift time. A new state opens
// only when a deviation larger than the threshold persists for a minimum number of points;
// each boundary between adjacent states yields one transition whose CV midpoint is the
// CIU50 value.
package feature

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Options controls state segmentation.
type Options struct {
	Threshold      float64 // minimum drift-time difference between states
	SmoothWindow   int     // running-median window; 0 or 1 disables
	MinStateLength int     // points a deviation must persist to open a state
	Logistic       bool    // refine midpoints with a logistic fit
}

// OptionsFromParams extracts detection options from a resolved parameter set.
func OptionsFromParams(p core.Params) Options {
	return Options{
		Threshold:      p.FeatureThreshold,
		SmoothWindow:   p.FeatureSmoothWindow,
		MinStateLength: p.FeatureMinStateLength,
		Logistic:       p.FeatureLogistic,
	}
}

func (o Options) validate() error {
	if !(o.Threshold > 0) || math.IsInf(o.Threshold, 0) {
		return &core.ConfigurationError{Field: "feature_threshold", Message: "must be positive"}
	}
	if o.SmoothWindow < 0 || (o.SmoothWindow > 1 && o.SmoothWindow%2 == 0) {
		return &core.ConfigurationError{Field: "feature_smooth_window", Message: "must be 0 or an odd number"}
	}
	if o.MinStateLength < 2 {
		return &core.ConfigurationError{Field: "feature_min_state_length", Message: "must be at least 2"}
	}
	return nil
}

// Trajectory is the dominant-component centroid (and width) per successfully fitted
// column, in increasing CV order.
type Trajectory struct {
	CV       []float64
	Centroid []float64
	Width    []float64
}

// Len returns the number of trajectory points.
func (t Trajectory) Len() int { return len(t.CV) }

// BuildTrajectory collects the dominant component of every successful column. Failed
// columns are skipped.
func BuildTrajectory(fit *core.FitResult) Trajectory {
	var tr Trajectory
	cols := make([]*core.ColumnFit, 0, len(fit.Columns))
	for i := range fit.Columns {
		if fit.Columns[i].OK() {
			cols = append(cols, &fit.Columns[i])
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].CV < cols[j].CV })
	for _, col := range cols {
		comp, ok := col.Dominant()
		if !ok {
			continue
		}
		tr.CV = append(tr.CV, col.CV)
		tr.Centroid = append(tr.Centroid, comp.Centroid)
		tr.Width = append(tr.Width, comp.Width)
	}
	return tr
}

// MedianSmooth applies a running median of the given odd window. The window is truncated
// at both ends; an even-length edge window takes the mean of its two middle values.
func MedianSmooth(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	half := window / 2
	buf := make([]float64, 0, window)
	for i := range values {
		lo, hi := max(0, i-half), min(len(values), i+half+1)
		buf = append(buf[:0], values[lo:hi]...)
		sort.Float64s(buf)
		out[i] = median(buf)
	}
	return out
}

// median returns the median of sorted values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return stat.Mean(sorted[n/2-1:n/2+1], nil)
	}
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Analyze detects features from the object's attached fit and attaches them.
func Analyze(obj *core.AnalysisObject, opts Options) (*core.FeatureSet, error) {
	if obj.Fit == nil {
		return nil, fmt.Errorf("%s: no Gaussian fit attached", obj.BaseName())
	}
	fs, err := Detect(obj.Fit, opts)
	if err != nil {
		return nil, err
	}
	if err := obj.AttachFeatures(fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// Detect builds the centroid trajectory of a fit and segments it.
func Detect(fit *core.FitResult, opts Options) (*core.FeatureSet, error) {
	if fit == nil {
		return nil, fmt.Errorf("fit result is nil")
	}
	return DetectTrajectory(BuildTrajectory(fit), opts)
}

// DetectTrajectory segments a trajectory into states and reports a transition between each
// adjacent pair. A trajectory without a persistent shift yields no transitions.
func DetectTrajectory(tr Trajectory, opts Options) (*core.FeatureSet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(tr.Centroid) != len(tr.CV) {
		return nil, fmt.Errorf("trajectory has %d centroids for %d CVs", len(tr.Centroid), len(tr.CV))
	}
	fs := &core.FeatureSet{}
	if tr.Len() == 0 {
		return fs, nil
	}

	values := MedianSmooth(tr.Centroid, opts.SmoothWindow)
	widths := tr.Width
	if len(widths) != len(values) {
		widths = make([]float64, len(values))
	}

	segs := segment(values, widths, opts.Threshold, opts.MinStateLength)
	segs = merge(segs, opts.Threshold)

	for _, s := range segs {
		fs.States = append(fs.States, s.state(tr.CV))
	}
	for i := 1; i < len(segs); i++ {
		a, b := segs[i-1], segs[i]
		t := core.Transition{
			Midpoint:  halfwayCrossing(tr.CV, values, a, b),
			LowState:  i - 1,
			HighState: i,
		}
		if opts.Logistic {
			if x0, ok := logisticMidpoint(tr.CV, values, a, b); ok {
				t.Midpoint = x0
				t.Logistic = true
			}
		}
		fs.Transitions = append(fs.Transitions, t)
	}
	return fs, nil
}

// seg accumulates the inlier points of one state. Points rejected as noise stay outside
// every state.
type seg struct {
	start, end int
	n          int
	sum, wsum  float64
}

func (s *seg) add(i int, v, w float64) {
	if s.n == 0 {
		s.start = i
	}
	s.end = i
	s.n++
	s.sum += v
	s.wsum += w
}

func (s *seg) level() float64 { return s.sum / float64(s.n) }

func (s seg) state(cv []float64) core.State {
	return core.State{
		StartIndex:   s.start,
		EndIndex:     s.end,
		StartCV:      cv[s.start],
		EndCV:        cv[s.end],
		Points:       s.n,
		MeanCentroid: s.sum / float64(s.n),
		MeanWidth:    s.wsum / float64(s.n),
	}
}

func segment(values, widths []float64, threshold float64, minLen int) []seg {
	cur := seg{}
	cur.add(0, values[0], widths[0])
	var segs []seg

	for i := 1; i < len(values); {
		if math.Abs(values[i]-cur.level()) <= threshold {
			cur.add(i, values[i], widths[i])
			i++
			continue
		}
		// A candidate state: consecutive points away from the current level that agree
		// with each other.
		run := seg{}
		j := i
		for ; j < len(values); j++ {
			v := values[j]
			if math.Abs(v-cur.level()) <= threshold {
				break
			}
			if run.n > 0 && math.Abs(v-run.level()) > threshold {
				break
			}
			run.add(j, v, widths[j])
		}
		if run.n >= minLen {
			// Only the leading state can be shorter than minLen; it is dropped as noise.
			if cur.n >= minLen {
				segs = append(segs, cur)
			}
			cur = run
			i = j
			continue
		}
		i++
	}
	return append(segs, cur)
}

// merge joins adjacent states whose levels differ by less than the threshold until no
// such pair remains.
func merge(segs []seg, threshold float64) []seg {
	for {
		merged := false
		for i := 1; i < len(segs); i++ {
			a, b := segs[i-1], segs[i]
			if math.Abs(a.level()-b.level()) >= threshold {
				continue
			}
			segs[i-1] = seg{
				start: a.start,
				end:   b.end,
				n:     a.n + b.n,
				sum:   a.sum + b.sum,
				wsum:  a.wsum + b.wsum,
			}
			segs = append(segs[:i], segs[i+1:]...)
			merged = true
			break
		}
		if !merged {
			return segs
		}
	}
}

// halfwayCrossing returns the CV at which the trajectory first crosses the level halfway
// between the two state means, searching from the last point of a to the first point of b.
func halfwayCrossing(cv, values []float64, a, b seg) float64 {
	half := (a.level() + b.level()) / 2
	for j := a.end; j < b.start; j++ {
		v0, v1 := values[j], values[j+1]
		if v0 == v1 || (v0-half)*(v1-half) > 0 {
			continue
		}
		return cv[j] + (half-v0)*(cv[j+1]-cv[j])/(v1-v0)
	}
	return (cv[a.end] + cv[b.start]) / 2
}
