// Package intake reads lead lists from spreadsheets and the Notion intake
// database and turns them into stable, deduplicated leads.
package intake

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetOptions selects the worksheet of an XLSX file.
type SheetOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Record is one data row keyed by its normalized header.
type Record map[string]string

// ReadFile reads a .xlsx or .csv file. The first row is the header.
func ReadFile(ctx context.Context, path string, opts SheetOptions) ([]Record, error) {
	var rows <-chan []string
	var errs <-chan error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, errs = StreamXLSX(ctx, path, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, errs = StreamCSV(ctx, f)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", filepath.Ext(path))
	}

	var header []string
	var out []Record
	for row := range rows {
		if header == nil {
			header = normalizeHeader(row)
			continue
		}
		if blank(row) {
			continue
		}
		out = append(out, mapRow(header, row))
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

// StreamXLSX sends the rows of one worksheet on the returned channel. Both
// channels are closed when the sheet is exhausted.
func StreamXLSX(ctx context.Context, path string, opts SheetOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: open file")
			return
		}
		sheet, err := getSheet(f, opts)
		if err != nil {
			errCh <- err
			return
		}

		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			select {
			case rowCh <- cells:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// StreamCSV sends the records of r on the returned channel. Rows may have
// a variable number of fields.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func getSheet(f *xlsx.File, opts SheetOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// normalizeHeader lowercases headers and collapses spaces, dashes, and
// underscores so "First Name", "first_name", and "first-name" agree.
func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
		out[i] = strings.Join(strings.Fields(h), " ")
	}
	return out
}

// mapRow pairs each header with its cell. Short rows leave the remaining
// columns empty.
func mapRow(header, row []string) Record {
	rec := make(Record, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if i < len(row) {
			rec[h] = strings.TrimSpace(row[i])
		} else {
			rec[h] = ""
		}
	}
	return rec
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
