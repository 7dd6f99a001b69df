package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// exportPageSize bounds memory while streaming large error reports.
const exportPageSize = 1000

var errorReportHeader = []string{"row_number", "field", "message"}

// ExportService renders an import's validation errors as downloadable
// reports. CSV is the canonical format; XLSX is offered for users who feed
// the report back into a spreadsheet.
type ExportService struct {
	imports *ImportService
}

func NewExportService(imports *ImportService) *ExportService {
	return &ExportService{imports: imports}
}

// WriteErrorsCSV streams the error report. Quoting follows RFC 4180 via
// encoding/csv, so messages containing commas or quotes survive round trips.
func (s *ExportService) WriteErrorsCSV(ctx context.Context, importID uuid.UUID, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(errorReportHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	for offset := 0; ; offset += exportPageSize {
		page, _, err := s.imports.Errors(ctx, importID, exportPageSize, offset)
		if err != nil {
			return err
		}
		for _, e := range page {
			if err := cw.Write([]string{strconv.Itoa(e.RowNumber), e.Field, e.Message}); err != nil {
				return errors.Wrap(err, "write csv row")
			}
		}
		if len(page) < exportPageSize {
			break
		}
	}

	cw.Flush()
	return cw.Error()
}

// ErrorsCSVFilename is the attachment name used by the download endpoint.
func ErrorsCSVFilename(importID uuid.UUID) string {
	return fmt.Sprintf("import-%s-errors.csv", importID)
}

func ErrorsXLSXFilename(importID uuid.UUID) string {
	return fmt.Sprintf("import-%s-errors.xlsx", importID)
}

// BuildErrorsXLSX renders the same report as a spreadsheet with a frozen
// header row. The caller is responsible for closing the returned file.
func (s *ExportService) BuildErrorsXLSX(ctx context.Context, importID uuid.UUID) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Errors"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, title := range errorReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	rowIdx := 2
	for offset := 0; ; offset += exportPageSize {
		page, _, err := s.imports.Errors(ctx, importID, exportPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			values := []any{e.RowNumber, e.Field, e.Message}
			for col, v := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return nil, err
				}
			}
			rowIdx++
		}
		if len(page) < exportPageSize {
			break
		}
	}
	return f, nil
}
