package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"monthlyload/internal/domain"
)

// csvTimeLayouts are accepted when decoding. Encoding always uses the first.
var csvTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// EncodeCSV writes ds with an id,data,timestamp header. Timestamps are UTC
// RFC 3339.
func EncodeCSV(w io.Writer, ds *domain.Dataset) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(domain.DatasetSchema.Names()); err != nil {
		return err
	}
	if ds != nil {
		for _, r := range ds.Rows {
			rec := []string{r.ID, r.Data, r.Timestamp.UTC().Format(time.RFC3339Nano)}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// DecodeCSV reads a CSV document whose header names the id, data and
// timestamp columns, in any order. Extra columns are ignored.
func DecodeCSV(r io.Reader) (*domain.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty CSV: missing header")
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	var cols [3]int
	for i, name := range domain.DatasetSchema.Names() {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("CSV header missing column %q", name)
		}
		cols[i] = c
	}

	ds := &domain.Dataset{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		for _, c := range cols {
			if c >= len(rec) {
				return nil, fmt.Errorf("CSV line %d: expected at least %d fields, got %d", line, c+1, len(rec))
			}
		}
		ts, err := parseCSVTime(rec[cols[2]])
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		ds.Rows = append(ds.Rows, domain.Row{
			ID:        rec[cols[0]],
			Data:      rec[cols[1]],
			Timestamp: ts,
		})
	}
	return ds, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
