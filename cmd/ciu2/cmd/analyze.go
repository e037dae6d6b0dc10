package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/RuotoloLab/CIUSuite2/pkg/batch"
	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/feature"
	"github.com/RuotoloLab/CIUSuite2/pkg/gaussfit"
	"github.com/RuotoloLab/CIUSuite2/pkg/render"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/csvout"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/sqlite"
)

// Files written by "features --combine".
const (
	combinedFeaturesFile      = "features_combined.csv"
	combinedFeaturesShortFile = "features-short_combined.csv"
)

var gaussfitCmd = &cobra.Command{
	Use:   "gaussfit [analysis files...]",
	Short: "Fit Gaussian peaks to every collision voltage column",
	Long: `Fit a baseline plus one or more Gaussians to each CV column of processed analyses.
The fit is stored in the .ciu file and summarized in <name>_gaussians.csv. Columns that
cannot be fit are reported as failed and do not affect the others. With --plot the centroids,
FWHMs and the data and fit of every column (<name>_fit_cv<CV>.png) are drawn.

Examples:
  ciu2 gaussfit results/ubq_7.ciu --components 2 --width 0.3
  ciu2 gaussfit results/ --plot --db library.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGaussfit,
}

var featuresCmd = &cobra.Command{
	Use:   "features [analysis files...]",
	Short: "Detect conformational transitions (CIU50)",
	Long: `Segment the centroid trajectory of fitted analyses into states and report the CIU50
midpoint of every transition in <name>_features.csv, with the CIU50 values alone in
<name>_features-short.csv, or in combined tables with --combine. Files without a Gaussian fit
are fitted first; an existing fit is kept.

Examples:
  ciu2 features results/*.ciu --threshold 0.75 --min-state-length 4
  ciu2 features results/ --combine --logistic`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFeatures,
}

func init() {
	featuresCmd.Flags().BoolVar(&combineFeatures, "combine", false, "Write one combined feature table for all inputs")
}

// withFitParams copies the fitting and feature parameters of p onto base.
func withFitParams(base, p core.Params) core.Params {
	base.GaussComponents = p.GaussComponents
	base.GaussWidth = p.GaussWidth
	base.GaussMaxIterations = p.GaussMaxIterations
	return withFeatureParams(base, p)
}

// withFeatureParams copies only the feature detection parameters of p onto base, leaving the
// parameters of an attached fit as they were.
func withFeatureParams(base, p core.Params) core.Params {
	base.FeatureThreshold = p.FeatureThreshold
	base.FeatureSmoothWindow = p.FeatureSmoothWindow
	base.FeatureMinStateLength = p.FeatureMinStateLength
	base.FeatureLogistic = p.FeatureLogistic
	return base
}

func fitObject(obj *core.AnalysisObject) error {
	opts := gaussfit.OptionsFromParams(obj.Params)
	opts.Workers = threads
	fit, err := gaussfit.Fit(obj, opts)
	if err != nil {
		return err
	}
	if failed := fit.Failed(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %s: %d of %d columns could not be fit\n", obj.BaseName(), len(failed), len(fit.Columns))
	}
	return obj.AttachFit(fit)
}

func runGaussfit(cmd *cobra.Command, args []string) error {
	params, err := resolveParams(cmd)
	if err != nil {
		return err
	}
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

	fmt.Printf("Fitting %d analyses with %d component(s)...\n", len(inputs), params.GaussComponents)
	runner := batch.NewRunner("gaussfit", threads, newLogger())
	statuses := runner.Run(cmd.Context(), inputs, func(ctx context.Context, input string) ([]string, error) {
		obj, err := snapshot.Load(input)
		if err != nil {
			return nil, err
		}
		obj.Params = withFitParams(obj.Params, params)
		if err := fitObject(obj); err != nil {
			return nil, err
		}
		return saveFit(input, obj, library)
	})

	return finish(statuses, library)
}

func saveFit(input string, obj *core.AnalysisObject, library *sqlite.Writer) ([]string, error) {
	outputs, err := saveAnalysis(input, obj, "", library)
	if err != nil {
		return outputs, err
	}

	diagPath := outputPath(input, obj.BaseName()+"_gaussians.csv")
	f, err := os.Create(diagPath)
	if err != nil {
		return outputs, fmt.Errorf("failed to create %s: %w", diagPath, err)
	}
	if err := csvout.WriteGaussDiagnostics(f, obj.Fit); err != nil {
		f.Close()
		return outputs, err
	}
	if err := f.Close(); err != nil {
		return outputs, err
	}
	outputs = append(outputs, diagPath)

	if makePlots {
		for name, draw := range map[string]func(*core.AnalysisObject, string) error{
			"_centroids.png": render.Centroids,
			"_fwhm.png":      render.FWHMs,
		} {
			img := outputPath(input, obj.BaseName()+name)
			if err := draw(obj, img); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				continue
			}
			outputs = append(outputs, img)
		}
		for j, cv := range obj.Axes().CV {
			img := outputPath(input, fitOverlayName(obj.BaseName(), cv))
			if err := render.FitOverlay(obj, j, img); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				continue
			}
			outputs = append(outputs, img)
		}
	}
	return outputs, nil
}

// fitOverlayName names the data and fit image of one CV column, e.g. "ubq_fit_cv12.5.png".
func fitOverlayName(name string, cv float64) string {
	return name + "_fit_cv" + strconv.FormatFloat(cv, 'f', -1, 64) + ".png"
}

func runFeatures(cmd *cobra.Command, args []string) error {
	params, err := resolveParams(cmd)
	if err != nil {
		return err
	}
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

	var mu sync.Mutex
	combined := make(map[string][][]string)
	combinedShort := make(map[string][]string)

	runner := batch.NewRunner("features", threads, newLogger())
	statuses := runner.Run(cmd.Context(), inputs, func(ctx context.Context, input string) ([]string, error) {
		obj, err := snapshot.Load(input)
		if err != nil {
			return nil, err
		}
		if obj.Fit == nil {
			obj.Params = withFitParams(obj.Params, params)
			if err := fitObject(obj); err != nil {
				return nil, err
			}
		} else {
			obj.Params = withFeatureParams(obj.Params, params)
			if fitFlagsChanged(cmd) {
				fmt.Fprintf(os.Stderr, "Warning: %s already has a fit; run gaussfit to change fit parameters\n", obj.BaseName())
			}
		}
		fs, err := feature.Analyze(obj, feature.OptionsFromParams(obj.Params))
		if err != nil {
			return nil, err
		}
		fmt.Printf("%s: %d transition(s)\n", obj.BaseName(), len(fs.Transitions))

		outputs, err := saveAnalysis(input, obj, "", library)
		if err != nil {
			return outputs, err
		}
		records := csvout.FeatureRecords(obj.BaseName(), fs)
		short := csvout.FeatureShortRecord(obj.BaseName(), fs)
		if combineFeatures {
			mu.Lock()
			combined[input] = records
			combinedShort[input] = short
			mu.Unlock()
		} else {
			path := outputPath(input, obj.BaseName()+"_features.csv")
			if err := writeFeatureFile(path, records); err != nil {
				return outputs, err
			}
			shortPath := outputPath(input, obj.BaseName()+"_features-short.csv")
			if err := writeFeatureShortFile(shortPath, [][]string{short}); err != nil {
				return outputs, err
			}
			outputs = append(outputs, path, shortPath)
		}

		if makePlots {
			img := outputPath(input, obj.BaseName()+"_centroids.png")
			if err := render.Centroids(obj, img); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			} else {
				outputs = append(outputs, img)
			}
		}
		return outputs, nil
	})

	if combineFeatures {
		// Keep input order in the combined tables.
		var records, shorts [][]string
		for _, st := range statuses {
			records = append(records, combined[st.Input]...)
			if short, ok := combinedShort[st.Input]; ok {
				shorts = append(shorts, short)
			}
		}
		path := outputPath(inputs[0], combinedFeaturesFile)
		if err := writeFeatureFile(path, records); err != nil {
			return err
		}
		shortPath := outputPath(inputs[0], combinedFeaturesShortFile)
		if err := writeFeatureShortFile(shortPath, shorts); err != nil {
			return err
		}
		fmt.Printf("Combined features: %s\n", path)
		fmt.Printf("Combined CIU50 summary: %s\n", shortPath)
	}

	return finish(statuses, library)
}

// fitFlagsChanged reports whether a Gaussian fit parameter was set on the command line.
func fitFlagsChanged(cmd *cobra.Command) bool {
	for _, name := range []string{"components", "width", "max-iterations"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func writeFeatureFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := csvout.WriteFeatures(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFeatureShortFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := csvout.WriteFeaturesShort(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
