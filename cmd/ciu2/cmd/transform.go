package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RuotoloLab/CIUSuite2/pkg/batch"
	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/process"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
)

// Output name suffixes
const (
	averageSuffix = "_Avg"
	cropSuffix    = "_crop"
	deltaSuffix   = "_delta"
)

var averageCmd = &cobra.Command{
	Use:   "average [analysis files...]",
	Short: "Average replicate fingerprints",
	Long: `Average two or more processed replicates with identical axes into one analysis,
saved as <first name>_Avg.ciu. The replicate sources are recorded in the output.

Example:
  ciu2 average results/ubq_rep1.ciu results/ubq_rep2.ciu results/ubq_rep3.ciu`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAverage,
}

var cropCmd = &cobra.Command{
	Use:   "crop [analysis files...]",
	Short: "Crop processed analyses to new axis bounds",
	Long: `Crop existing analyses to the --crop bounds and save them as <name>_crop.ciu.
Fit and feature results are dropped because they refer to the old axes.

Example:
  ciu2 crop results/ --crop 2.5,7.5,10,50 --crop-policy strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrop,
}

var deltaDTCmd = &cobra.Command{
	Use:   "deltadt [analysis files...]",
	Short: "Shift the drift time axis to start at the first feature",
	Long: `Shift the drift time axis so the first column's maximum (or its first fitted centroid)
sits at zero, saved as <name>_delta.ciu.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDeltaDT,
}

func runAverage(cmd *cobra.Command, args []string) error {
	inputs, err := expandInputs(args, snapshot.Extension)
	if err != nil {
		return err
	}
	if err := ensureOutputDir(); err != nil {
		return err
	}

	objs := make([]*core.AnalysisObject, 0, len(inputs))
	for _, input := range inputs {
		obj, err := snapshot.Load(input)
		if err != nil {
			return err
		}
		objs = append(objs, obj)
	}

	avg, err := process.Average(objs)
	if err != nil {
		return err
	}

	library, err := openLibrary()
	if err != nil {
		return err
	}
	outputs, err := saveAnalysis(inputs[0], avg, averageSuffix, library)
	if err != nil {
		return err
	}
	if library != nil {
		if err := library.Finalize(); err != nil {
			return fmt.Errorf("failed to finalize database: %w", err)
		}
	}

	fmt.Printf("Averaged %d replicates\n", len(objs))
	for _, out := range outputs {
		fmt.Printf("Output: %s\n", out)
	}
	return nil
}

func runCrop(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("crop") {
		return fmt.Errorf("--crop is required")
	}
	params, err := resolveParams(cmd)
	if err != nil {
		return err
	}
	bounds, err := process.BoundsFromSlice(params.CroppingBounds)
	if err != nil {
		return err
	}
	return transformEach(cmd, args, "crop", cropSuffix, func(obj *core.AnalysisObject) (*core.AnalysisObject, error) {
		return process.CropObject(obj, bounds, params.CropPolicy)
	})
}

func runDeltaDT(cmd *cobra.Command, args []string) error {
	return transformEach(cmd, args, "deltadt", deltaSuffix, process.DeltaDT)
}

// transformEach loads every analysis, applies fn and saves the result with suffix.
func transformEach(cmd *cobra.Command, args []string, stage, suffix string, fn func(*core.AnalysisObject) (*core.AnalysisObject, error)) error {
	inputs, err := expandInputs(args, snapshot.Extension)
	if err != nil {
		return err
	}
	if err := ensureOutputDir(); err != nil {
		return err
	}
	library, err := openLibrary()
	if err != nil {
		return err
	}

	runner := batch.NewRunner(stage, threads, newLogger())
	statuses := runner.Run(cmd.Context(), inputs, func(ctx context.Context, input string) ([]string, error) {
		obj, err := snapshot.Load(input)
		if err != nil {
			return nil, err
		}
		out, err := fn(obj)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", input, err)
		}
		out.ID = ""
		return saveAnalysis(input, out, suffix, library)
	})
	return finish(statuses, library)
}
