package output

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/bcrlab/bcrview/internal/pipeline"
)

// Sheet names of the workbook written by WriteXLSX.
const (
	SheetHC = "HC"
	SheetLC = "LC"
)

// WriteXLSX writes a workbook with one sheet per chain.
func WriteXLSX(w io.Writer, e *pipeline.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetHC); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetLC); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	for _, s := range []struct {
		name  string
		chain pipeline.Chain
	}{
		{SheetHC, pipeline.Heavy},
		{SheetLC, pipeline.Light},
	} {
		if err := writeSheet(f, s.name, Rows(e, s.chain)); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows []Row) error {
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, r := range rows {
		values := r.values()
		line := make([]any, len(values))
		for j, v := range values {
			line[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
