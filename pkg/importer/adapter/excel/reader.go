// Package excel reads payroll rows from xlsx files with excelize. Rows are streamed,
// so a chunk read never loads the whole sheet into memory.
package excel

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// FileOpener opens a stored file by reference.
type FileOpener interface {
	Open(ctx context.Context, fileRef string) (io.ReadCloser, error)
}

// Reader implements ports.RowReader on the first sheet of a workbook.
//
// Data rows are numbered 1..N in sheet order, skipping the header and blank rows.
// RawRow.RowNumber carries the spreadsheet row number for error reports.
type Reader struct {
	files FileOpener
}

func NewReader(files FileOpener) *Reader {
	return &Reader{files: files}
}

var _ ports.RowReader = (*Reader)(nil)

func (r *Reader) open(ctx context.Context, op, fileRef string) (*excelize.File, string, error) {
	rc, err := r.files.Open(ctx, fileRef)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, "", exception.NewValidationError(op, fmt.Sprintf("'%s' is not a readable xlsx file", fileRef), err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, "", exception.NewValidationError(op, fmt.Sprintf("'%s' has no sheets", fileRef), nil)
	}
	return f, sheets[0], nil
}

// ValidateHeaders checks row 1 against model.ExpectedHeaders, ignoring case and spaces.
func (r *Reader) ValidateHeaders(ctx context.Context, fileRef string) error {
	const op = "excel.ValidateHeaders"
	f, sheet, err := r.open(ctx, op, fileRef)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return exception.NewTransientError(op, "failed to iterate rows", err)
	}
	defer rows.Close()

	var header []string
	if rows.Next() {
		if header, err = rows.Columns(); err != nil {
			return exception.NewValidationError(op, "failed to read header row", err)
		}
	}
	return CheckHeaders(header)
}

// CheckHeaders compares a header row with model.ExpectedHeaders.
func CheckHeaders(header []string) error {
	if len(header) < len(model.ExpectedHeaders) {
		return exception.NewValidationError("excel.CheckHeaders",
			fmt.Sprintf("expected %d columns, found %d", len(model.ExpectedHeaders), len(header)), nil)
	}
	for i, want := range model.ExpectedHeaders {
		if normalizeHeader(header[i]) != normalizeHeader(want) {
			return exception.NewValidationError("excel.CheckHeaders",
				fmt.Sprintf("column %d: expected '%s', found '%s'", i+1, want, header[i]), nil)
		}
	}
	return nil
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// CountRows returns the number of non-blank data rows.
func (r *Reader) CountRows(ctx context.Context, fileRef string) (int, error) {
	count := 0
	err := r.scan(ctx, "excel.CountRows", fileRef, func(index int, row model.RawRow) bool {
		count = index
		return true
	})
	return count, err
}

// ReadRows returns the data rows start..end (1-based, inclusive).
func (r *Reader) ReadRows(ctx context.Context, fileRef string, start, end int) ([]model.RawRow, error) {
	if start < 1 || end < start {
		return nil, exception.NewConfigurationError("excel.ReadRows", fmt.Sprintf("invalid row range [%d,%d]", start, end), nil)
	}
	out := make([]model.RawRow, 0, end-start+1)
	err := r.scan(ctx, "excel.ReadRows", fileRef, func(index int, row model.RawRow) bool {
		if index >= start {
			out = append(out, row)
		}
		return index < end
	})
	return out, err
}

// scan calls fn for every non-blank data row with its 1-based data index until fn
// returns false.
func (r *Reader) scan(ctx context.Context, op, fileRef string, fn func(index int, row model.RawRow) bool) error {
	f, sheet, err := r.open(ctx, op, fileRef)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return exception.NewTransientError(op, "failed to iterate rows", err)
	}
	defer rows.Close()

	sheetRow, index := 0, 0
	for rows.Next() {
		sheetRow++
		if sheetRow == 1 {
			continue
		}
		if sheetRow%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return exception.NewTransientError(op, "row scan interrupted", err)
			}
		}
		cells, err := rows.Columns()
		if err != nil {
			return exception.NewTransientError(op, fmt.Sprintf("failed to read row %d", sheetRow), err)
		}
		row := model.RawRow{RowNumber: sheetRow, Cells: trimCells(cells)}
		if row.IsBlank() {
			continue
		}
		index++
		if !fn(index, row) {
			break
		}
	}
	if err := rows.Error(); err != nil {
		return exception.NewTransientError(op, "failed to iterate rows", err)
	}
	return nil
}

func trimCells(cells []string) []string {
	out := make([]string, len(model.ExpectedHeaders))
	for i := range out {
		if i < len(cells) {
			out[i] = strings.TrimSpace(cells[i])
		}
	}
	return out
}
