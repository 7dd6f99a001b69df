package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
)

// readSourceFile loads a CSV or XLSX file into raw rows keyed by the
// header. Row numbers are 1-based and exclude the header.
func readSourceFile(path string) ([]string, []caserow.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVFile(path)
	case ".xlsx":
		return readXLSXFile(path)
	default:
		return nil, nil, withCode(exitUsage, fmt.Errorf("unsupported file type: %s", filepath.Ext(path)))
	}
}

func readCSVFile(path string) ([]string, []caserow.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	defer func() { _ = f.Close() }()

	br := stripUTF8BOM(bufio.NewReader(f))
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return nil, nil, withCode(exitValidation, err)
	}

	var rows []caserow.RawRow
	for num := 1; ; num++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, withCode(exitValidation, fmt.Errorf("row %d: %w", num, err))
		}
		rows = append(rows, rawRowFromRecord(header, record, num))
	}
	return header, rows, nil
}

func readXLSXFile(path string) ([]string, []caserow.RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, withCode(exitValidation, fmt.Errorf("workbook has no sheets"))
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, withCode(exitValidation, err)
	}
	if len(records) == 0 {
		return nil, nil, withCode(exitValidation, fmt.Errorf("missing header"))
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	rows := make([]caserow.RawRow, 0, len(records)-1)
	for i, record := range records[1:] {
		rows = append(rows, rawRowFromRecord(header, record, i+1))
	}
	return header, rows, nil
}

func rawRowFromRecord(header, record []string, num int) caserow.RawRow {
	cells := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			cells[name] = record[i]
		}
	}
	return caserow.RawRow{RowNumber: num, Cells: cells}
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("missing header")
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, fmt.Errorf("invalid header encoding")
		}
	}
	return h, nil
}
