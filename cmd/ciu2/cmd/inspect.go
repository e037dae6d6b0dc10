package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/process"
	"github.com/RuotoloLab/CIUSuite2/pkg/reader/rawcsv"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/sqlite"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate raw fingerprint files",
	Long: `Check that raw _raw.csv files are well formed: numeric axes in strictly increasing
order, one intensity per axis pair and no negative or non-finite intensities. With --params
the parameter file is validated against every input as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize an analysis file or library",
	Long: `Print the axes, parameters, fit and feature results of a .ciu analysis, or list the
analyses stored in a SQLite library. With --id the stored analysis is restored from the
library and summarized like a .ciu file.

Examples:
  ciu2 summarize results/ubq_7.ciu
  ciu2 summarize library.db --id 3f1c2d9e-6b1a-4c55-9a43-1f0d5e2b7c88`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVar(&summaryID, "id", "", "Analysis ID to restore from a library")
}

func runValidate(cmd *cobra.Command, args []string) error {
	inputs, err := expandInputs(args, core.RawSuffix)
	if err != nil {
		return err
	}
	var params *core.Params
	if paramsFile != "" || cmd.Flags().NFlag() > 0 {
		p, err := resolveParams(cmd)
		if err != nil {
			return err
		}
		params = &p
	}

	invalid := 0
	for _, input := range inputs {
		raw, err := rawcsv.Load(input)
		if err == nil && params != nil {
			err = process.Check(raw, *params)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", input, err)
			invalid++
			continue
		}
		rows, cols := raw.Data.Dims()
		fmt.Printf("OK      %s: %d DT x %d CV, DT %g-%g, CV %g-%g\n", input, rows, cols,
			raw.Axes.DT[0], raw.Axes.DT[rows-1], raw.Axes.CV[0], raw.Axes.CV[cols-1])
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d files are invalid", invalid, len(inputs))
	}
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	path := args[0]
	switch strings.ToLower(filepath.Ext(path)) {
	case snapshot.Extension:
		if summaryID != "" {
			return fmt.Errorf("--id only applies to libraries")
		}
		obj, err := snapshot.Load(path)
		if err != nil {
			return err
		}
		summarizeAnalysis(obj)
		return nil
	case ".db", ".sqlite":
		if summaryID != "" {
			obj, err := sqlite.Load(path, summaryID)
			if err != nil {
				return err
			}
			summarizeAnalysis(obj)
			return nil
		}
		entries, err := sqlite.List(path)
		if err != nil {
			return err
		}
		summarizeLibrary(path, entries)
		return nil
	default:
		return fmt.Errorf("cannot summarize '%s': expected a %s or .db file", path, snapshot.Extension)
	}
}

func summarizeAnalysis(obj *core.AnalysisObject) {
	axes := obj.Axes()
	fmt.Printf("Analysis: %s\n", obj.BaseName())
	if obj.ID != "" {
		fmt.Printf("ID: %s\n", obj.ID)
	}
	fmt.Printf("Source: %s\n", obj.Raw.Filepath)
	if obj.IsAverage() {
		fmt.Printf("Replicates: %d\n", len(obj.Sources))
		for _, src := range obj.Sources {
			fmt.Printf("  %s\n", src.Filename)
		}
	}
	fmt.Printf("Matrix: %d DT x %d CV\n", len(axes.DT), len(axes.CV))
	fmt.Printf("DT range: %g - %g\n", axes.DT[0], axes.DT[len(axes.DT)-1])
	fmt.Printf("CV range: %g - %g\n", axes.CV[0], axes.CV[len(axes.CV)-1])

	p := obj.Params
	fmt.Printf("Normalization: %s\n", p.Normalization)
	if p.InterpolationBins > 0 {
		fmt.Printf("Interpolation: %d bins (%s)\n", p.InterpolationBins, p.InterpolationMethod)
	}
	if p.SmoothingWindow > 0 {
		fmt.Printf("Smoothing: window %d, order %d, %d pass(es)\n", p.SmoothingWindow, p.SmoothingOrder, p.SmoothingIterations)
	}
	if p.HasCrop() {
		fmt.Printf("Crop: %v (%s)\n", p.CroppingBounds, p.CropPolicy)
	}

	if obj.Fit == nil {
		fmt.Printf("Gaussian fit: none\n")
		return
	}
	failed := obj.Fit.Failed()
	fmt.Printf("Gaussian fit: %d component(s), %d/%d columns fit\n",
		obj.Fit.ComponentsPerColumn, len(obj.Fit.Columns)-len(failed), len(obj.Fit.Columns))
	var r2 []float64
	for i := range obj.Fit.Columns {
		if obj.Fit.Columns[i].OK() {
			r2 = append(r2, obj.Fit.Columns[i].RSquared)
		}
	}
	if len(r2) > 0 {
		fmt.Printf("R^2: min %.4f, max %.4f\n", floats.Min(r2), floats.Max(r2))
	}

	if obj.Features == nil {
		return
	}
	fmt.Printf("States: %d\n", len(obj.Features.States))
	for i, t := range obj.Features.Transitions {
		low, high := obj.Features.Flanks(i)
		fmt.Printf("  CIU50 %.2f V: %.3f -> %.3f\n", t.Midpoint, low.MeanCentroid, high.MeanCentroid)
	}
}

func summarizeLibrary(path string, entries []sqlite.Entry) {
	fmt.Printf("Library: %s\n", path)
	fmt.Printf("Analyses: %d\n", len(entries))
	for _, e := range entries {
		fitted := "no fit"
		if e.Centroids != nil {
			fitted = "fitted"
		}
		fmt.Printf("  %s  %-30s %3d DT x %3d CV  replicates %d  %s  transitions %d\n",
			e.ID, e.Name, len(e.DT), len(e.CV), e.Replicates, fitted, e.Transitions)
	}
}
