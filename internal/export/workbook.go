// Package export renders worker verification state as an xlsx workbook.
package export

import (
	"fmt"
	"time"

	"docverify/internal/domain"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Verification"

var Headers = []string{
	"Worker ID",
	"Mobile",
	"Personal Name",
	"Personal DOB",
	"Educational Name",
	"Educational DOB",
	"Qualification",
	"Status",
	"Verified At",
	"Errors",
}

// VerificationWorkbook returns the xlsx bytes, one row per worker in the
// order given.
func VerificationWorkbook(workers []domain.WorkerDocumentState) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(SheetName); index == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for i, w := range workers {
		row := i + 2
		values := []string{
			w.WorkerID,
			w.MobileNumber,
			w.Personal.Fields.Value("name"),
			w.Personal.Fields.Value("dob"),
			w.Educational.Fields.Value("name"),
			w.Educational.Fields.Value("dob"),
			w.Educational.Fields.Value("qualification"),
			string(w.State()),
			"",
			truncate(w.VerificationErrors, 250),
		}
		if w.VerifiedAt != nil {
			values[8] = w.VerifiedAt.UTC().Format(time.RFC3339)
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38) // uuid
	_ = f.SetColWidth(SheetName, "B", "B", 14)
	_ = f.SetColWidth(SheetName, "C", "F", 22)
	_ = f.SetColWidth(SheetName, "G", "H", 20)
	_ = f.SetColWidth(SheetName, "I", "I", 22)
	_ = f.SetColWidth(SheetName, "J", "J", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
