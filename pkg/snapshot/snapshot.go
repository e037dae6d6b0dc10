// Package snapshot saves and restores analysis objects as versioned YAML documents
// (".ciu" files). Matrices are stored as base64 of their gonum binary encoding so a round
// trip is exact.
package snapshot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// CurrentVersion is the document version written by Encode.
const CurrentVersion = 1

// Extension is the file extension of saved analyses.
const Extension = ".ciu"

// ErrUnsupportedVersion is returned for documents written by an unknown format version.
var ErrUnsupportedVersion = errors.New("snapshot: unsupported version")

type document struct {
	Version  int            `yaml:"version"`
	ID       string         `yaml:"id,omitempty"`
	Raw      *rawDoc        `yaml:"raw"`
	Sources  []rawDoc       `yaml:"sources,omitempty"`
	Params   core.Params    `yaml:"params"`
	Data     string         `yaml:"data"`
	Axes     axesDoc        `yaml:"axes"`
	Fit      *fitDoc        `yaml:"fit,omitempty"`
	Features *featureSetDoc `yaml:"features,omitempty"`
}

type rawDoc struct {
	Path string  `yaml:"path"`
	Data string  `yaml:"data"`
	Axes axesDoc `yaml:"axes"`
}

type axesDoc struct {
	DT []float64 `yaml:"dt,flow"`
	CV []float64 `yaml:"cv,flow"`
}

type fitDoc struct {
	ComponentsPerColumn int         `yaml:"components_per_column"`
	Columns             []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Index       int            `yaml:"index"`
	CV          float64        `yaml:"cv"`
	Error       string         `yaml:"error,omitempty"`
	Components  []componentDoc `yaml:"components,omitempty"`
	Fitted      []float64      `yaml:"fitted,flow,omitempty"`
	Covariance  [][]float64    `yaml:"covariance,omitempty"`
	RSquared    float64        `yaml:"r2"`
	AdjRSquared float64        `yaml:"adj_r2"`
	Iterations  int            `yaml:"iterations"`
}

type componentDoc struct {
	Baseline  float64 `yaml:"baseline"`
	Amplitude float64 `yaml:"amplitude"`
	Centroid  float64 `yaml:"centroid"`
	Width     float64 `yaml:"width"`
}

type featureSetDoc struct {
	States      []stateDoc      `yaml:"states"`
	Transitions []transitionDoc `yaml:"transitions"`
}

type stateDoc struct {
	StartIndex   int     `yaml:"start_index"`
	EndIndex     int     `yaml:"end_index"`
	StartCV      float64 `yaml:"start_cv"`
	EndCV        float64 `yaml:"end_cv"`
	Points       int     `yaml:"points"`
	MeanCentroid float64 `yaml:"mean_centroid"`
	MeanWidth    float64 `yaml:"mean_width"`
}

type transitionDoc struct {
	Midpoint  float64 `yaml:"midpoint"`
	LowState  int     `yaml:"low_state"`
	HighState int     `yaml:"high_state"`
	Logistic  bool    `yaml:"logistic,omitempty"`
}

// Encode writes obj as a snapshot document.
func Encode(w io.Writer, obj *core.AnalysisObject) error {
	doc, err := toDocument(obj)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}

// Decode reads a snapshot document and rebuilds the analysis object.
func Decode(r io.Reader) (*core.AnalysisObject, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	return fromDocument(&doc)
}

// FileName returns the snapshot file name for obj with an optional suffix, e.g. "_Avg".
func FileName(obj *core.AnalysisObject, suffix string) string {
	return obj.BaseName() + suffix + Extension
}

// Save writes obj into dir and records the path on the object.
func Save(obj *core.AnalysisObject, dir, suffix string) (string, error) {
	path := filepath.Join(dir, FileName(obj, suffix))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := Encode(f, obj); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close snapshot: %w", err)
	}
	obj.Filename = path
	return path, nil
}

// Load reads a snapshot file.
func Load(path string) (*core.AnalysisObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	obj, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	obj.Filename = path
	return obj, nil
}

func encodeMatrix(m *mat.Dense) (string, error) {
	b, err := m.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode matrix: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeMatrix(s string) (*mat.Dense, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode matrix: %w", err)
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("failed to decode matrix: %w", err)
	}
	return &m, nil
}

func toRawDoc(raw *core.RawMatrix) (rawDoc, error) {
	data, err := encodeMatrix(raw.Data)
	if err != nil {
		return rawDoc{}, err
	}
	return rawDoc{
		Path: raw.Filepath,
		Data: data,
		Axes: axesDoc{DT: raw.Axes.DT, CV: raw.Axes.CV},
	}, nil
}

func fromRawDoc(d rawDoc) (*core.RawMatrix, error) {
	data, err := decodeMatrix(d.Data)
	if err != nil {
		return nil, err
	}
	return core.NewRawMatrix(d.Path, data, core.Axes{DT: d.Axes.DT, CV: d.Axes.CV})
}

func toDocument(obj *core.AnalysisObject) (*document, error) {
	if obj.Raw == nil {
		return nil, fmt.Errorf("analysis object has no raw data")
	}
	doc := &document{
		Version: CurrentVersion,
		ID:      obj.ID,
		Params:  obj.Params,
	}

	raw, err := toRawDoc(obj.Raw)
	if err != nil {
		return nil, err
	}
	doc.Raw = &raw
	for _, src := range obj.Sources {
		d, err := toRawDoc(src)
		if err != nil {
			return nil, err
		}
		doc.Sources = append(doc.Sources, d)
	}

	if doc.Data, err = encodeMatrix(obj.Data()); err != nil {
		return nil, err
	}
	axes := obj.Axes()
	doc.Axes = axesDoc{DT: axes.DT, CV: axes.CV}

	if obj.Fit != nil {
		fd := &fitDoc{ComponentsPerColumn: obj.Fit.ComponentsPerColumn}
		for _, col := range obj.Fit.Columns {
			cd := columnDoc{
				Index:       col.Index,
				CV:          col.CV,
				Fitted:      col.Fitted,
				Covariance:  col.Covariance,
				RSquared:    col.RSquared,
				AdjRSquared: col.AdjRSquared,
				Iterations:  col.Iterations,
			}
			if col.Err != nil {
				cd.Error = failureReason(col.Err)
			}
			for _, c := range col.Components {
				cd.Components = append(cd.Components, componentDoc{
					Baseline:  c.Baseline,
					Amplitude: c.Amplitude,
					Centroid:  c.Centroid,
					Width:     c.Width,
				})
			}
			fd.Columns = append(fd.Columns, cd)
		}
		doc.Fit = fd
	}

	if obj.Features != nil {
		fs := &featureSetDoc{
			States:      []stateDoc{},
			Transitions: []transitionDoc{},
		}
		for _, s := range obj.Features.States {
			fs.States = append(fs.States, stateDoc(s))
		}
		for _, t := range obj.Features.Transitions {
			fs.Transitions = append(fs.Transitions, transitionDoc(t))
		}
		doc.Features = fs
	}
	return doc, nil
}

func failureReason(err error) string {
	var fe *core.FitConvergenceError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return err.Error()
}

func fromDocument(doc *document) (*core.AnalysisObject, error) {
	if doc.Raw == nil {
		return nil, fmt.Errorf("snapshot has no raw data")
	}
	raw, err := fromRawDoc(*doc.Raw)
	if err != nil {
		return nil, err
	}
	var sources []*core.RawMatrix
	for _, d := range doc.Sources {
		src, err := fromRawDoc(d)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	data, err := decodeMatrix(doc.Data)
	if err != nil {
		return nil, err
	}
	axes := core.Axes{DT: doc.Axes.DT, CV: doc.Axes.CV}
	if err := axes.Validate(); err != nil {
		return nil, err
	}
	if err := doc.Params.Validate(); err != nil {
		return nil, err
	}

	obj, err := core.NewAnalysisObject(raw, data, axes, doc.Params)
	if err != nil {
		return nil, err
	}
	obj.ID = doc.ID
	obj.Sources = sources

	if doc.Fit != nil {
		fit := &core.FitResult{ComponentsPerColumn: doc.Fit.ComponentsPerColumn}
		for _, cd := range doc.Fit.Columns {
			col := core.ColumnFit{
				Index:       cd.Index,
				CV:          cd.CV,
				Fitted:      cd.Fitted,
				Covariance:  cd.Covariance,
				RSquared:    cd.RSquared,
				AdjRSquared: cd.AdjRSquared,
				Iterations:  cd.Iterations,
			}
			if cd.Error != "" {
				col.Err = &core.FitConvergenceError{Column: cd.Index, CV: cd.CV, Reason: cd.Error}
			}
			for _, c := range cd.Components {
				col.Components = append(col.Components, core.NewComponent(c.Baseline, c.Amplitude, c.Centroid, c.Width))
			}
			fit.Columns = append(fit.Columns, col)
		}
		if err := obj.AttachFit(fit); err != nil {
			return nil, err
		}
	}

	if doc.Features != nil {
		fs := &core.FeatureSet{}
		for _, s := range doc.Features.States {
			fs.States = append(fs.States, core.State(s))
		}
		for _, t := range doc.Features.Transitions {
			if t.LowState < 0 || t.HighState >= len(fs.States) || t.LowState >= t.HighState {
				return nil, fmt.Errorf("snapshot transition references invalid states %d-%d", t.LowState, t.HighState)
			}
			fs.Transitions = append(fs.Transitions, core.Transition(t))
		}
		if err := obj.AttachFeatures(fs); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
