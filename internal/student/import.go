package student

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"roster/internal/roster"
	"roster/internal/tabular"
)

// importColumns are the headers an import sheet must carry; phone is optional.
var importColumns = []string{"name", "email", "department", "year"}

// ImportReport summarises a bulk import.
type ImportReport struct {
	Imported []int64    `json:"imported"`
	Failed   []RowError `json:"failed"`
}

// RowError describes why one sheet row was not imported. Row is the line
// number shown by a spreadsheet program, with the header on row 1.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Import adds one student per row of the first sheet of an XLSX workbook.
// A failing row is reported and skipped; it does not stop the import.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	header, rows, err := tabular.ReadXLSX(r)
	if err != nil {
		return ImportReport{}, roster.Invalid("file", err.Error())
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range importColumns {
		if _, ok := idx[col]; !ok {
			return ImportReport{}, roster.Invalid("file", fmt.Sprintf("missing column %q", col))
		}
	}
	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok {
			return ""
		}
		return row[i]
	}

	report := ImportReport{Imported: []int64{}, Failed: []RowError{}}
	for _, rec := range rows {
		row, line := rec.Cells, rec.Line
		year, err := strconv.Atoi(strings.TrimSpace(cell(row, "year")))
		if err != nil {
			report.Failed = append(report.Failed, RowError{Row: line, Reason: "year: must be an integer"})
			continue
		}
		id, err := s.Add(ctx, Fields{
			Name:       cell(row, "name"),
			Email:      cell(row, "email"),
			Phone:      cell(row, "phone"),
			Department: strings.ToUpper(strings.TrimSpace(cell(row, "department"))),
			Year:       year,
		})
		if err != nil {
			if !errors.Is(err, roster.ErrValidation) && !errors.Is(err, roster.ErrDuplicateKey) {
				return report, fmt.Errorf("row %d: %w", line, err)
			}
			report.Failed = append(report.Failed, RowError{Row: line, Reason: err.Error()})
			continue
		}
		report.Imported = append(report.Imported, id)
	}
	s.log.Info("student import finished",
		zap.Int("imported", len(report.Imported)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}
