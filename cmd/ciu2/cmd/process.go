package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RuotoloLab/CIUSuite2/pkg/batch"
	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/process"
	"github.com/RuotoloLab/CIUSuite2/pkg/reader/rawcsv"
	"github.com/RuotoloLab/CIUSuite2/pkg/render"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/csvout"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/sqlite"
)

var processCmd = &cobra.Command{
	Use:   "process [files or directories...]",
	Short: "Process raw fingerprints into analysis files",
	Long: `Load raw _raw.csv fingerprints and run normalization, interpolation, smoothing and
cropping. Each input is saved as <name>.ciu.

Examples:
  # Process with default parameters
  ciu2 process ubq_7_raw.csv

  # Interpolate to 200 bins, smooth twice with a 5 point window and crop
  ciu2 process data/ --bins 200 --smooth-window 5 --smooth-iterations 2 --crop 2,8,5,60 --out results`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	params, err := resolveParams(cmd)
	if err != nil {
		return err
	}
	inputs, err := expandInputs(args, core.RawSuffix)
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

	fmt.Printf("Processing %d files...\n", len(inputs))
	runner := batch.NewRunner("process", threads, newLogger())
	statuses := runner.Run(cmd.Context(), inputs, func(ctx context.Context, input string) ([]string, error) {
		return processFile(input, params, library)
	})

	return finish(statuses, library)
}

func processFile(input string, params core.Params, library *sqlite.Writer) ([]string, error) {
	raw, err := rawcsv.Load(input)
	if err != nil {
		return nil, err
	}
	obj, err := process.Run(raw, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}
	return saveAnalysis(input, obj, "", library)
}

// saveAnalysis writes the snapshot plus the optional CSV, image and library outputs. The
// snapshot is named after the file obj was loaded from (or its raw file) plus suffix.
func saveAnalysis(input string, obj *core.AnalysisObject, suffix string, library *sqlite.Writer) ([]string, error) {
	obj.Filename = outputPath(input, snapshot.FileName(obj, suffix))
	name := obj.BaseName()

	// The library assigns the analysis ID, so it is written before the snapshot.
	if library != nil {
		if err := library.WriteAnalysis(obj); err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", input, err)
		}
	}

	path, err := snapshot.Save(obj, filepath.Dir(obj.Filename), "")
	if err != nil {
		return nil, err
	}
	outputs := []string{path}

	if obj.Params.SaveOutputCSV {
		csvPath := outputPath(input, name+"_processed"+core.RawSuffix)
		if err := csvout.SaveMatrix(csvPath, obj); err != nil {
			return outputs, err
		}
		outputs = append(outputs, csvPath)
	}
	if makePlots {
		img := outputPath(input, name+"_fingerprint.png")
		if err := render.Fingerprint(obj, img); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			outputs = append(outputs, img)
		}
	}
	return outputs, nil
}

// finish finalizes the library and reports the batch outcome.
func finish(statuses []batch.Status, library *sqlite.Writer) error {
	if library != nil {
		if err := library.Finalize(); err != nil {
			return fmt.Errorf("failed to finalize database: %w", err)
		}
	}

	written := 0
	for _, st := range statuses {
		if st.OK() {
			written += len(st.Outputs)
			continue
		}
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", st.Input, st.Err)
	}

	failed := batch.Failed(statuses)
	fmt.Printf("\nComplete!\n")
	fmt.Printf("Processed: %d files\n", len(statuses)-failed)
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
	}
	fmt.Printf("Outputs: %d files\n", written)
	if dbFile != "" {
		fmt.Printf("Library: %s\n", dbFile)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(statuses))
	}
	return nil
}
