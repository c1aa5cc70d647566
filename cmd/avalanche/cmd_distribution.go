package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/distribution"
	"github.com/silolab/avalanche/internal/export"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/pipeline"
)

func newDistributionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribution <sim_dir>",
		Short: "Build the ns(D) distribution of one simulation directory",
		Long: `Read the avalanche_data.csv event log of a simulation directory named
sim_<N>_chi<c>_ratio<r>_br<b>_lg<L>_sm<S>_poly<P>_sides<k>_outlet<w>,
print its statistics and ns(D) table and, with --output, write the table
and a <output>_stats.csv file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("simulation directory %s does not exist", dir)
			}

			run, err := pipeline.LoadNominalRun(dir)
			if err != nil {
				return err
			}
			c, err := aggregate.Combine([]aggregate.NominalRun{run})
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			jsonOut, _ := cmd.Flags().GetBool("json")
			return reportNsD(cmd.OutOrStdout(), c, output, export.StatsFileName(output), jsonOut)
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write the ns(D) table to this CSV file")
	return cmd
}

type nsDReport struct {
	Params  aggregate.SimParams `json:"params"`
	D       float64             `json:"D"`
	Summary aggregate.Summary   `json:"summary"`
	Table   *distribution.Table `json:"table"`
}

// reportNsD bins the sizes of c, prints the result and writes the table and
// statistics files when output is set. A combination without avalanches is
// reported but not an error.
func reportNsD(w io.Writer, c *aggregate.Combination, output, statsFile string, jsonOut bool) error {
	g := c.Group
	d := c.D()

	table, err := distribution.BuildSizes(g.Sizes)
	if errors.Is(err, distribution.ErrEmptyInput) {
		if jsonOut {
			return printJSON(w, nsDReport{Params: c.Params, D: d, Summary: g.Summary})
		}
		fmt.Fprintln(w, "No distribution: no avalanches detected")
		return nil
	}
	if err != nil {
		return err
	}
	if table.Warning != nil {
		log.Warnf("%v", table.Warning)
	}

	if output != "" {
		if err := export.WriteFile(output, func(fw io.Writer) error { return export.WriteNsD(fw, d, table) }); err != nil {
			return err
		}
		if err := export.WriteFile(statsFile, func(fw io.Writer) error { return export.WriteStats(fw, d, g.Summary) }); err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(w, nsDReport{Params: c.Params, D: d, Summary: g.Summary, Table: table})
	}

	p := c.Params
	fmt.Fprintf(w, "D = outlet_radius / base_radius = %.4f / %.4f = %.3f\n", p.OutletRadius(), p.BaseRadius, d)
	printSummary(w, g.Summary)

	fmt.Fprintf(w, "\nns(D) distribution (%d bins, %s):\n", len(table.Rows), table.Strategy)
	fmt.Fprintf(w, "%14s %14s %8s %12s\n", "avalanche_size", "ns_D", "count", "probability")
	for _, r := range table.Rows {
		fmt.Fprintf(w, "%14.2f %14.6g %8d %12.6f\n", r.Center, r.Density, r.Count, r.Probability)
	}

	if output != "" {
		fmt.Fprintf(w, "\nData written to %s\nStatistics written to %s\n", output, statsFile)
	}
	return nil
}

func printSummary(w io.Writer, s aggregate.Summary) {
	fmt.Fprintf(w, "Simulations: %d\n", s.Runs)
	fmt.Fprintf(w, "Avalanches: %d (%.2f per simulation)\n", s.Count, s.AvgPerRun)
	fmt.Fprintf(w, "Size: %d-%d particles, mean %.2f ± %.2f, median %.1f\n", s.Min, s.Max, s.Mean, s.Std, s.Median)
	fmt.Fprintf(w, "Particles in avalanches: %d\n", s.TotalParticles)
	if dur := s.Durations; dur != nil {
		fmt.Fprintf(w, "Duration: mean %.2fs, total %.2fs\n", dur.Mean, dur.Total)
	}
}
