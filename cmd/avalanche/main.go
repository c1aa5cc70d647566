package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "avalanche",
		Short: "Avalanche segmentation and size distributions for silo discharge runs",
		Long: `avalanche detects discharge avalanches in silo simulation output,
groups runs by their chi and outlet parameters and writes size
distributions, summaries and an optional results database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			return log.Init(debug)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Turn on debugging output")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAnalyzeCmd(),
		newDistributionCmd(),
		newCombineCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config file, or returns the defaults when none is given
func loadConfig(cmd *cobra.Command) (*config.ConfigData, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile == "" {
		return config.Default(), nil
	}

	filename, _ := filepath.Abs(cfgFile)
	cfgData, err := config.NewYAMLProvider(filename).LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return cfgData, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
