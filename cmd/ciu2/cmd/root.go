// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/sqlite"
)

var (
	// Shared flags
	paramsFile string
	outputDir  string
	dbFile     string
	threads    int
	verbose    bool
	makePlots  bool

	// Parameter overrides
	normalization      string
	interpBins         int
	interpMethod       string
	smoothWindow       int
	smoothOrder        int
	smoothIterations   int
	cropBounds         string
	cropPolicy         string
	saveCSV            bool
	gaussComponents    int
	gaussWidth         float64
	gaussMaxIterations int
	featureThreshold   float64
	featureSmooth      int
	featureMinLength   int
	featureLogistic    bool

	// Command specific
	combineFeatures bool
	summaryID       string
)

var rootCmd = &cobra.Command{
	Use:   "ciu2",
	Short: "CIUSuite2 - collision induced unfolding analysis",
	Long: `ciu2 processes raw collision induced unfolding (CIU) fingerprints, fits Gaussian
peaks to every collision voltage column and detects conformational transitions (CIU50).

Typical workflow:
  ciu2 process *_raw.csv --params params.yaml --out results
  ciu2 gaussfit results/*.ciu --components 2 --plot
  ciu2 features results/*.ciu --combine`,
	Version:       "2.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(averageCmd)
	rootCmd.AddCommand(cropCmd)
	rootCmd.AddCommand(deltaDTCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(gaussfitCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&paramsFile, "params", "", "YAML parameter file (defaults are used when omitted)")
	pf.StringVarP(&outputDir, "out", "o", "", "Output directory (default: next to each input)")
	pf.StringVar(&dbFile, "db", "", "Also store results in this SQLite analysis library")
	pf.IntVar(&threads, "threads", 0, "Number of worker threads (0 = number of CPUs)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log every file and stage")
	pf.BoolVar(&makePlots, "plot", false, "Write diagnostic images")

	pf.StringVar(&normalization, "normalize", core.NormalizeMax, "Column normalization: max or sum")
	pf.IntVar(&interpBins, "bins", 0, "Interpolate the drift time axis to this many bins (0 = off)")
	pf.StringVar(&interpMethod, "interp-method", core.InterpLinear, "Interpolation: linear, akima or pchip")
	pf.IntVar(&smoothWindow, "smooth-window", 0, "Savitzky-Golay window, odd (0 = off)")
	pf.IntVar(&smoothOrder, "smooth-order", 2, "Savitzky-Golay polynomial order")
	pf.IntVar(&smoothIterations, "smooth-iterations", 1, "Number of smoothing passes")
	pf.StringVar(&cropBounds, "crop", "", "Crop bounds 'dt_low,dt_high,cv_low,cv_high'")
	pf.StringVar(&cropPolicy, "crop-policy", core.CropClamp, "Bounds outside the axes: clamp or strict")
	pf.BoolVar(&saveCSV, "save-csv", false, "Also write processed matrices as _raw.csv")
	pf.IntVar(&gaussComponents, "components", 1, "Gaussian components per column")
	pf.Float64Var(&gaussWidth, "width", 0.5, "Initial Gaussian width")
	pf.IntVar(&gaussMaxIterations, "max-iterations", 200, "Fit iteration limit per column")
	pf.Float64Var(&featureThreshold, "threshold", 0.5, "Minimum centroid shift between states")
	pf.IntVar(&featureSmooth, "feature-smooth", 0, "Running median window for the centroid trajectory (0 = off)")
	pf.IntVar(&featureMinLength, "min-state-length", 3, "Points a shift must persist to open a state")
	pf.BoolVar(&featureLogistic, "logistic", false, "Refine CIU50 values with a logistic fit")
}

// newLogger returns the stderr logger used by batch operations.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveParams loads --params (or the defaults) and applies every flag set on the command
// line on top of it.
func resolveParams(cmd *cobra.Command) (core.Params, error) {
	p := core.DefaultParams()
	if paramsFile != "" {
		f, err := os.Open(paramsFile)
		if err != nil {
			return core.Params{}, fmt.Errorf("failed to open params file: %w", err)
		}
		p, err = core.LoadParams(f)
		f.Close()
		if err != nil {
			return core.Params{}, fmt.Errorf("%s: %w", paramsFile, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("normalize") {
		p.Normalization = normalization
	}
	if flags.Changed("bins") {
		p.InterpolationBins = interpBins
	}
	if flags.Changed("interp-method") {
		p.InterpolationMethod = strings.ToLower(interpMethod)
	}
	if flags.Changed("smooth-window") {
		p.SmoothingWindow = smoothWindow
	}
	if flags.Changed("smooth-order") {
		p.SmoothingOrder = smoothOrder
	}
	if flags.Changed("smooth-iterations") {
		p.SmoothingIterations = smoothIterations
	}
	if flags.Changed("crop") {
		bounds, err := parseBounds(cropBounds)
		if err != nil {
			return core.Params{}, err
		}
		p.CroppingBounds = bounds
	}
	if flags.Changed("crop-policy") {
		p.CropPolicy = strings.ToLower(cropPolicy)
	}
	if flags.Changed("save-csv") {
		p.SaveOutputCSV = saveCSV
	}
	if flags.Changed("components") {
		p.GaussComponents = gaussComponents
	}
	if flags.Changed("width") {
		p.GaussWidth = gaussWidth
	}
	if flags.Changed("max-iterations") {
		p.GaussMaxIterations = gaussMaxIterations
	}
	if flags.Changed("threshold") {
		p.FeatureThreshold = featureThreshold
	}
	if flags.Changed("feature-smooth") {
		p.FeatureSmoothWindow = featureSmooth
	}
	if flags.Changed("min-state-length") {
		p.FeatureMinStateLength = featureMinLength
	}
	if flags.Changed("logistic") {
		p.FeatureLogistic = featureLogistic
	}

	if err := p.Validate(); err != nil {
		return core.Params{}, err
	}
	return p, nil
}

func parseBounds(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &core.ConfigurationError{Field: "cropping_bounds", Message: "expected 'dt_low,dt_high,cv_low,cv_high'"}
	}
	bounds := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, &core.ConfigurationError{Field: "cropping_bounds", Message: fmt.Sprintf("invalid value %q", part)}
		}
		bounds[i] = v
	}
	return bounds, nil
}

// outputPath places name in --out, or next to input when no output directory is set.
func outputPath(input, name string) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

func ensureOutputDir() error {
	if outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// openLibrary opens the --db library, or returns nil when none is configured.
func openLibrary() (*sqlite.Writer, error) {
	if dbFile == "" {
		return nil, nil
	}
	w, err := sqlite.NewWriter(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis library: %w", err)
	}
	return w, nil
}

// expandInputs replaces directory arguments with the files inside them that end in suffix.
func expandInputs(args []string, suffix string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input does not exist: %s", arg)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*"+suffix))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found", suffix)
	}
	return files, nil
}
