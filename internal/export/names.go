// Package export writes analysis results as CSV tables and workbooks.
package export

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/silolab/avalanche/internal/aggregate"
)

// Output subdirectories
const (
	RawDir   = "crudos"
	GroupDir = "grupos"

	SkippedFileName = "skipped_runs.csv"
	SummaryFileName = "resumen_grupos.csv"

	filePrefix = "datos_avalanchas"
	hashMod    = 10_000_000
)

// RunHash returns a short stable hash of a run path, used to keep per-run
// file names unique within a group.
func RunHash(path string) string {
	h := fnv.New32a()
	h.Write([]byte(path))
	return fmt.Sprint(h.Sum32() % hashMod)
}

// RunFileName is the raw size list name of one run,
// e.g. datos_avalanchas_chi0.2_outlet3.0_1234567.csv
func RunFileName(key aggregate.GroupKey, runPath string) string {
	return filePrefix + key.Tag() + "_" + RunHash(runPath) + ".csv"
}

// RunGnuplotFileName is the fixed-width table name of one run
func RunGnuplotFileName(key aggregate.GroupKey, runPath string, binWidth int) string {
	return strings.TrimSuffix(RunFileName(key, runPath), ".csv") + fmt.Sprintf("_gp_bin%d.csv", binWidth)
}

// GroupFileName is the pooled size list name of a group
func GroupFileName(key aggregate.GroupKey) string {
	return filePrefix + key.Tag() + ".csv"
}

// GroupGnuplotFileName is the fixed-width table name of a group
func GroupGnuplotFileName(key aggregate.GroupKey, binWidth int) string {
	return fmt.Sprintf("hist_gnuplot%s_bin%d.csv", key.Tag(), binWidth)
}

// GroupDistributionFileName is the adaptive distribution table name of a group
func GroupDistributionFileName(key aggregate.GroupKey) string {
	return "distribucion" + key.Tag() + ".csv"
}

// StatsFileName derives the statistics file name from a distribution output
// name: ns.csv becomes ns_stats.csv.
func StatsFileName(output string) string {
	if strings.HasSuffix(output, ".csv") {
		return strings.TrimSuffix(output, ".csv") + "_stats.csv"
	}
	return output + "_stats.csv"
}

// CombinedStatsFileName derives the statistics file name of a combination:
// ns.csv becomes ns_combined_stats.csv.
func CombinedStatsFileName(output string) string {
	return strings.TrimSuffix(output, ".csv") + "_combined_stats.csv"
}
