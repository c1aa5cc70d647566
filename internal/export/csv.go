package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/constants"
	"github.com/silolab/avalanche/internal/distribution"
)

// WriteFile creates path, along with its parent directories, and fills it with write
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func writeAll(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fi(v int) string {
	return strconv.Itoa(v)
}

// WriteSizes writes a single column of avalanche sizes
func WriteSizes(w io.Writer, sizes []int) error {
	records := make([][]string, 0, len(sizes)+1)
	records = append(records, []string{constants.SizeColumn})
	for _, s := range sizes {
		records = append(records, []string{fi(s)})
	}
	return writeAll(w, records)
}

// WriteDistribution writes the adaptive distribution table
func WriteDistribution(w io.Writer, t *distribution.Table) error {
	records := [][]string{{"bin_center", "density", "count", "bin_width", "probability"}}
	for _, r := range t.Rows {
		records = append(records, []string{ff(r.Center), ff(r.Density), fi(r.Count), ff(r.Width), ff(r.Probability)})
	}
	return writeAll(w, records)
}

// WriteNsD writes the ns(D) form of a distribution, where ns_D is the
// density and d the dimensionless outlet ratio of the runs.
func WriteNsD(w io.Writer, d float64, t *distribution.Table) error {
	records := [][]string{{"D", "avalanche_size", "ns_D", "count", "bin_width", "probability"}}
	for _, r := range t.Rows {
		records = append(records, []string{ff(d), ff(r.Center), ff(r.Density), fi(r.Count), ff(r.Width), ff(r.Probability)})
	}
	return writeAll(w, records)
}

// WriteGnuplot writes bin_center,density pairs for plotting
func WriteGnuplot(w io.Writer, t *distribution.Table) error {
	records := [][]string{{"bin_center", "density"}}
	for _, r := range t.Rows {
		records = append(records, []string{ff(r.Center), ff(r.Density)})
	}
	return writeAll(w, records)
}

var summaryHeader = []string{
	"chi", "outlet", "runs", "count", "min", "max", "mean", "median", "std",
	"total_particles", "avg_per_run", "mean_duration", "median_duration", "total_avalanche_time",
}

// SummaryRecord renders one group as a summary table row. Missing key
// components and unavailable durations are left empty.
func SummaryRecord(g *aggregate.Group) []string {
	s := g.Summary
	rec := []string{
		nullString(g.Key.Chi.Valid, g.Key.Chi.Float64),
		nullString(g.Key.Outlet.Valid, g.Key.Outlet.Float64),
		fi(s.Runs), fi(s.Count), fi(s.Min), fi(s.Max),
		ff(s.Mean), ff(s.Median), ff(s.Std),
		fi(s.TotalParticles), ff(s.AvgPerRun),
	}
	if d := s.Durations; d != nil {
		rec = append(rec, ff(d.Mean), ff(d.Median), ff(d.Total))
	} else {
		rec = append(rec, "", "", "")
	}
	return rec
}

func nullString(valid bool, v float64) string {
	if !valid {
		return ""
	}
	return aggregate.FormatParam(v)
}

// WriteSummary writes one row per group
func WriteSummary(w io.Writer, groups []*aggregate.Group) error {
	records := [][]string{summaryHeader}
	for _, g := range groups {
		records = append(records, SummaryRecord(g))
	}
	return writeAll(w, records)
}

// WriteStats writes the single-row statistics table of a distribution or
// combination
func WriteStats(w io.Writer, d float64, s aggregate.Summary) error {
	header := []string{
		"D", "total_simulations", "total_avalanches", "min_size", "max_size",
		"mean_size", "median_size", "std_size", "total_particles_in_avalanches",
		"mean_duration", "median_duration", "total_avalanche_time", "avalanches_per_simulation",
	}
	rec := []string{
		ff(d), fi(s.Runs), fi(s.Count), fi(s.Min), fi(s.Max),
		ff(s.Mean), ff(s.Median), ff(s.Std), fi(s.TotalParticles),
	}
	if dur := s.Durations; dur != nil {
		rec = append(rec, ff(dur.Mean), ff(dur.Median), ff(dur.Total))
	} else {
		rec = append(rec, "", "", "0")
	}
	rec = append(rec, ff(s.AvgPerRun))
	return writeAll(w, [][]string{header, rec})
}

// WriteSkipped lists runs that were skipped and why
func WriteSkipped(w io.Writer, skipped []aggregate.SkippedRun) error {
	records := [][]string{{"path", "reason"}}
	for _, s := range skipped {
		records = append(records, []string{s.ID, s.Reason()})
	}
	return writeAll(w, records)
}
