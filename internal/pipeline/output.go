package pipeline

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/avalanche"
	"github.com/silolab/avalanche/internal/distribution"
	"github.com/silolab/avalanche/internal/export"
)

// OutputOptions selects the artifacts written for a batch
type OutputOptions struct {
	Dir string
	// Gnuplot also writes fixed-width (bin_center, density) tables
	Gnuplot  bool
	BinWidth int
	// Workbook, when set, is the path of an .xlsx summary
	Workbook string
}

// WriteOutputs writes per-run size lists under crudos/, per-group size lists
// and distributions under grupos/, the group summary and the skipped-run list.
// It returns the group tables it built.
func (p *Processor) WriteOutputs(b *Batch, o OutputOptions) ([]export.GroupTable, error) {
	if o.BinWidth <= 0 {
		return nil, fmt.Errorf("%w: got %d", distribution.ErrInvalidBinWidth, o.BinWidth)
	}
	rawDir := filepath.Join(o.Dir, export.RawDir)
	groupDir := filepath.Join(o.Dir, export.GroupDir)

	for _, r := range b.Runs {
		if r.Err != nil {
			continue
		}
		sizes := avalanche.Sizes(r.Events)
		path := filepath.Join(rawDir, export.RunFileName(r.Key, r.Path))
		if err := export.WriteFile(path, func(w io.Writer) error { return export.WriteSizes(w, sizes) }); err != nil {
			return nil, err
		}
		if o.Gnuplot && len(sizes) > 0 {
			if err := writeGnuplot(filepath.Join(rawDir, export.RunGnuplotFileName(r.Key, r.Path, o.BinWidth)), sizes, o.BinWidth); err != nil {
				return nil, err
			}
		}
	}

	tables := make([]export.GroupTable, 0, len(b.Groups))
	for _, g := range b.Groups {
		gt := export.GroupTable{Group: g}
		path := filepath.Join(groupDir, export.GroupFileName(g.Key))
		if err := export.WriteFile(path, func(w io.Writer) error { return export.WriteSizes(w, g.Sizes) }); err != nil {
			return nil, err
		}

		table, err := distribution.BuildSizes(g.Sizes)
		switch {
		case errors.Is(err, distribution.ErrEmptyInput):
			p.logger.Infof("group %s: %d runs, no avalanches", g.Key, g.Summary.Runs)
		case err != nil:
			return nil, err
		default:
			if table.Warning != nil {
				p.logger.Warnf("group %s: %v", g.Key, table.Warning)
			}
			gt.Table = table
			path := filepath.Join(groupDir, export.GroupDistributionFileName(g.Key))
			if err := export.WriteFile(path, func(w io.Writer) error { return export.WriteDistribution(w, table) }); err != nil {
				return nil, err
			}
			if o.Gnuplot {
				if err := writeGnuplot(filepath.Join(groupDir, export.GroupGnuplotFileName(g.Key, o.BinWidth)), g.Sizes, o.BinWidth); err != nil {
					return nil, err
				}
			}
		}
		p.logSummary(g)
		tables = append(tables, gt)
	}

	if err := export.WriteFile(filepath.Join(o.Dir, export.SummaryFileName), func(w io.Writer) error {
		return export.WriteSummary(w, b.Groups)
	}); err != nil {
		return nil, err
	}

	if len(b.Skipped) > 0 {
		if err := export.WriteFile(filepath.Join(o.Dir, export.SkippedFileName), func(w io.Writer) error {
			return export.WriteSkipped(w, b.Skipped)
		}); err != nil {
			return nil, err
		}
	}

	if o.Workbook != "" {
		if err := export.WriteWorkbook(o.Workbook, tables); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func writeGnuplot(path string, sizes []int, binWidth int) error {
	table, err := distribution.FixedWidth(distribution.FromInts(sizes), float64(binWidth))
	if err != nil {
		return err
	}
	return export.WriteFile(path, func(w io.Writer) error { return export.WriteGnuplot(w, table) })
}

func (p *Processor) logSummary(g *aggregate.Group) {
	s := g.Summary
	p.logger.Infow("group summary",
		"group", g.Key.String(),
		"runs", s.Runs,
		"avalanches", s.Count,
		"min", s.Min,
		"max", s.Max,
		"mean", s.Mean,
		"median", s.Median,
		"std", s.Std,
	)
}
