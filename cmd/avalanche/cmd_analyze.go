package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/app"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/pkg/config"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [root]",
		Short: "Segment every run below a root and write group distributions",
		Long: `Discover simulation runs below a root directory, detect avalanches in each,
pool the sizes by chi/outlet group and write raw size lists, distribution
tables, a group summary and the list of skipped runs.

Flags override the values of the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Discovery.Root = args[0]
			}
			applyAnalyzeFlags(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := app.New(config.NewStaticProvider(cfg), log.GetSugaredLogger()).Analyze(ctx)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), newAnalyzeReport(res, cfg))
			}
			printAnalyzeReport(cmd.OutOrStdout(), res, cfg)
			return nil
		},
	}

	cmd.Flags().String("pattern", "", "Discovery pattern relative to the root (default depends on --source)")
	cmd.Flags().String("source", "flow", "Run input: flow (flow_data.csv series) or events (avalanche_data.csv logs)")
	cmd.Flags().Float64("gap", 5.0, "Gap threshold in seconds that closes an avalanche")
	cmd.Flags().Int("min-size", 1, "Smallest avalanche kept, in particles")
	cmd.Flags().Bool("close-final", true, "Emit the avalanche still open at the end of a series")
	cmd.Flags().StringP("out", "o", "avalanche_out", "Output directory")
	cmd.Flags().Bool("gnuplot", false, "Also write fixed-width gnuplot tables")
	cmd.Flags().Int("bin-width", 200, "Bin width of gnuplot tables")
	cmd.Flags().String("xlsx", "", "Write an .xlsx workbook to this path")
	cmd.Flags().String("db", "", "Store the batch in this sqlite database")
	cmd.Flags().String("cache", "", "Reuse events of unchanged runs from this cache directory")
	cmd.Flags().Int("workers", 0, "Runs processed in parallel (0 = all CPUs)")
	return cmd
}

// applyAnalyzeFlags copies every explicitly set flag onto cfg
func applyAnalyzeFlags(flags *pflag.FlagSet, cfg *config.ConfigData) {
	if flags.Changed("pattern") {
		cfg.Discovery.Pattern, _ = flags.GetString("pattern")
	}
	if flags.Changed("source") {
		cfg.Analysis.Source, _ = flags.GetString("source")
	}
	if flags.Changed("gap") {
		cfg.Analysis.GapThreshold, _ = flags.GetFloat64("gap")
	}
	if flags.Changed("min-size") {
		cfg.Analysis.MinSize, _ = flags.GetInt("min-size")
	}
	if flags.Changed("close-final") {
		cfg.Analysis.CloseFinalBlock, _ = flags.GetBool("close-final")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("gnuplot") {
		cfg.Output.Gnuplot, _ = flags.GetBool("gnuplot")
	}
	if flags.Changed("bin-width") {
		cfg.Output.BinWidth, _ = flags.GetInt("bin-width")
	}
	if flags.Changed("xlsx") {
		cfg.Output.XLSX, _ = flags.GetString("xlsx")
	}
	if flags.Changed("db") {
		cfg.Storage.SQLitePath, _ = flags.GetString("db")
	}
	if flags.Changed("cache") {
		cfg.Storage.CacheDir, _ = flags.GetString("cache")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
}

type analyzeReport struct {
	BatchID   string             `json:"batch_id"`
	Runs      int                `json:"runs"`
	Processed int                `json:"processed"`
	OutputDir string             `json:"output_dir"`
	Stored    bool               `json:"stored"`
	Groups    []groupReport      `json:"groups"`
	Skipped   []skippedRunReport `json:"skipped"`
}

type groupReport struct {
	Key     aggregate.GroupKey `json:"key"`
	Summary aggregate.Summary  `json:"summary"`
}

type skippedRunReport struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func newAnalyzeReport(res *app.AnalyzeResult, cfg *config.ConfigData) analyzeReport {
	b := res.Batch
	r := analyzeReport{
		BatchID:   b.ID,
		Runs:      len(b.Runs),
		Processed: b.Processed(),
		OutputDir: cfg.Output.Dir,
		Stored:    res.Stored,
		Groups:    make([]groupReport, 0, len(b.Groups)),
		Skipped:   make([]skippedRunReport, 0, len(b.Skipped)),
	}
	for _, g := range b.Groups {
		r.Groups = append(r.Groups, groupReport{Key: g.Key, Summary: g.Summary})
	}
	for _, s := range b.Skipped {
		r.Skipped = append(r.Skipped, skippedRunReport{Path: s.ID, Reason: s.Reason()})
	}
	return r
}

func printAnalyzeReport(w io.Writer, res *app.AnalyzeResult, cfg *config.ConfigData) {
	b := res.Batch
	fmt.Fprintf(w, "Batch %s: %d runs, %d processed, %d skipped\n", b.ID, len(b.Runs), b.Processed(), len(b.Skipped))
	fmt.Fprintf(w, "Outputs written to %s\n", cfg.Output.Dir)
	if res.Stored {
		fmt.Fprintf(w, "Stored in %s\n", cfg.Storage.SQLitePath)
	}

	if len(b.Groups) > 0 {
		fmt.Fprintf(w, "\n%-24s %5s %8s %10s %10s %10s\n", "GROUP", "RUNS", "COUNT", "MEAN", "MEDIAN", "STD")
		for _, g := range b.Groups {
			s := g.Summary
			fmt.Fprintf(w, "%-24s %5d %8d %10.2f %10.2f %10.2f\n", g.Key, s.Runs, s.Count, s.Mean, s.Median, s.Std)
		}
	}

	if len(b.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped runs (%d):\n", len(b.Skipped))
		for _, s := range b.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.ID, s.Reason())
		}
	}
}
