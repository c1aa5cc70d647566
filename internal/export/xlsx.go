package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/distribution"
)

const (
	summarySheet  = "summary"
	maxSheetName  = 31
	defaultSheet1 = "Sheet1"
)

// GroupTable pairs a finalized group with its distribution. Table is nil
// for groups without avalanches.
type GroupTable struct {
	Group *aggregate.Group
	Table *distribution.Table
}

// WriteWorkbook saves an .xlsx file with a summary sheet and one
// distribution sheet per group
func WriteWorkbook(path string, results []GroupTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet1, summarySheet); err != nil {
		return fmt.Errorf("error naming summary sheet: %w", err)
	}
	if err := setRow(f, summarySheet, 1, toCells(summaryHeader)); err != nil {
		return err
	}
	for i, r := range results {
		if err := setRow(f, summarySheet, i+2, toCells(SummaryRecord(r.Group))); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Table == nil {
			continue
		}
		name := SheetName(r.Group.Key)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("error creating sheet %s: %w", name, err)
		}
		header := []interface{}{"bin_center", "density", "count", "bin_width", "probability"}
		if err := setRow(f, name, 1, header); err != nil {
			return err
		}
		for i, row := range r.Table.Rows {
			cells := []interface{}{row.Center, row.Density, row.Count, row.Width, row.Probability}
			if err := setRow(f, name, i+2, cells); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook %s: %w", path, err)
	}
	return nil
}

// SheetName is the worksheet name of a group, within the xlsx length limit
func SheetName(key aggregate.GroupKey) string {
	name := key.String()
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("error writing %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func toCells(record []string) []interface{} {
	cells := make([]interface{}, len(record))
	for i, v := range record {
		cells[i] = v
	}
	return cells
}
