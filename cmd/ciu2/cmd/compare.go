package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/process"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
	"github.com/RuotoloLab/CIUSuite2/pkg/writer/csvout"
)

// batchRMSDFile is written when more than two analyses are compared.
const batchRMSDFile = "batch_RMSDs.csv"

var compareCmd = &cobra.Command{
	Use:   "compare [analysis files...]",
	Short: "Compare fingerprints by RMSD",
	Long: `Compute the root-mean-square deviation (percent of full scale) between processed
fingerprints with identical axes. Two files print a single RMSD; more files are compared
all against all and written to batch_RMSDs.csv.

Examples:
  ciu2 compare results/wt.ciu results/mutant.ciu
  ciu2 compare results/ --out comparisons`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompare,
}

func runCompare(cmd *cobra.Command, args []string) error {
	inputs, err := expandInputs(args, snapshot.Extension)
	if err != nil {
		return err
	}
	if len(inputs) < 2 {
		return &core.ConfigurationError{Field: "compare", Message: "need at least 2 analyses"}
	}

	objs := make([]*core.AnalysisObject, len(inputs))
	for i, input := range inputs {
		if objs[i], err = snapshot.Load(input); err != nil {
			return err
		}
	}

	if len(objs) == 2 {
		rmsd, err := process.RMSD(objs[0], objs[1])
		if err != nil {
			return err
		}
		fmt.Printf("RMSD %s vs %s: %.2f%%\n", objs[0].BaseName(), objs[1].BaseName(), rmsd)
		return nil
	}

	var rows []csvout.RMSD
	skipped := 0
	for i := range objs {
		for j := i + 1; j < len(objs); j++ {
			rmsd, err := process.RMSD(objs[i], objs[j])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				skipped++
				continue
			}
			rows = append(rows, csvout.RMSD{File1: objs[i].BaseName(), File2: objs[j].BaseName(), Percent: rmsd})
		}
	}

	if err := ensureOutputDir(); err != nil {
		return err
	}
	path := outputPath(inputs[0], batchRMSDFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := csvout.WriteRMSDs(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Compared %d pairs\n", len(rows))
	if skipped > 0 {
		fmt.Printf("Skipped: %d pairs (axis mismatch)\n", skipped)
	}
	fmt.Printf("Output: %s\n", path)
	return nil
}
