package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silolab/avalanche/internal/export"
	"github.com/silolab/avalanche/internal/pipeline"
)

func newCombineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine <pattern>",
		Short: "Pool the event logs of nominally identical simulations",
		Long: `Combine the avalanche_data.csv logs of every simulation directory matching
a glob pattern (e.g. "sim_*_chi0.20_*") into one ns(D) distribution.
Directories that cannot be read are skipped; parameter disagreements with
the first directory are reported as warnings.`,
		Example: `  avalanche combine "runs/sim_*_chi0.2_*" -o combined_distribution.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.CombineDirs(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			jsonOut, _ := cmd.Flags().GetBool("json")
			w := cmd.OutOrStdout()
			if !jsonOut {
				fmt.Fprintf(w, "Found %d simulation directories, %d skipped\n", len(res.Dirs), len(res.Skipped))
				for _, s := range res.Skipped {
					fmt.Fprintf(w, "  skipped %s: %s\n", s.ID, s.Reason())
				}
				for _, warn := range res.Warnings {
					fmt.Fprintf(w, "  warning: %v\n", warn)
				}
			}
			return reportNsD(w, res.Combination, output, export.CombinedStatsFileName(output), jsonOut)
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write the combined ns(D) table to this CSV file")
	return cmd
}
