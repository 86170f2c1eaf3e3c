package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV parses one ledger CSV export into Records, quarantining rows that
// cannot be keyed or parsed. The first line must be a header; header names
// are normalized (lowercased, spaces and dashes to underscores) so exports
// with "Gross Amount" or "gross-amount" columns both map to gross_amount.
func ReadCSV(source Source, r io.Reader) ([]Record, []LoadError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", source, err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = normalizeHeader(h)
	}

	var (
		records []Record
		errs    []LoadError
		rowIdx  int
	)
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowIdx++
		if err != nil {
			// Malformed CSV line: quarantine and keep going.
			errs = append(errs, LoadError{Source: source, Row: rowIdx, Reason: err.Error()})
			continue
		}
		row := make(Row, len(cols))
		for i, f := range fields {
			if i < len(cols) {
				row[cols[i]] = f
			}
		}
		rec, lerr := FromRow(source, rowIdx, row)
		if lerr != nil {
			errs = append(errs, *lerr)
			continue
		}
		records = append(records, rec)
	}
	return records, errs, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}
