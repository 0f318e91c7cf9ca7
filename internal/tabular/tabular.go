// Package tabular encodes record tables as CSV or XLSX and decodes XLSX uploads.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Record is a row that can render itself in the column order of its table.
type Record interface {
	Record() []string
}

// Rows renders items in order.
func Rows[T Record](items []T) [][]string {
	out := make([][]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Record())
	}
	return out
}

// WriteCSV writes header followed by rows. Fields are quoted only when they
// contain a separator, quote or line break.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with header in row 1.
func WriteXLSX(w io.Writer, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetRow("A1", cells(header)); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells(row)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	_, err = f.WriteTo(w)
	return err
}

func cells(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// Unzip limits applied when opening an uploaded workbook. The XML limit
// bounds what a single part may inflate to in memory.
const (
	MaxUnzipSize    = 64 << 20
	MaxUnzipXMLSize = 16 << 20
)

// Row is one data row of a sheet. Line is its 1-based row number in the
// sheet, so the header is line 1.
type Row struct {
	Line  int
	Cells []string
}

// ReadXLSX returns the first sheet's header (lower-cased, trimmed) and the
// remaining non-blank rows. Cells are padded or cut to the header width.
func ReadXLSX(r io.Reader) ([]string, []Row, error) {
	f, err := excelize.OpenReader(r, excelize.Options{
		UnzipSizeLimit:    MaxUnzipSize,
		UnzipXMLSizeLimit: MaxUnzipXMLSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, errors.New("workbook has no sheets")
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, nil, errors.New("sheet is empty")
	}

	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	rows := make([]Row, 0, len(all)-1)
	for i, cells := range all[1:] {
		if blank(cells) {
			continue
		}
		padded := make([]string, len(header))
		copy(padded, cells)
		rows = append(rows, Row{Line: i + 2, Cells: padded})
	}
	return header, rows, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
