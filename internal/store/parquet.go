package store

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"monthlyload/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// SnapshotRecord is the Parquet schema for a snapshot row.
type SnapshotRecord struct {
	ID        string `parquet:"id"`
	Data      string `parquet:"data"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// EncodeParquet writes ds as a Parquet file to w. Timestamps are truncated
// to milliseconds.
func EncodeParquet(w io.Writer, ds *domain.Dataset) error {
	records := make([]SnapshotRecord, 0, ds.Len())
	if ds != nil {
		for _, r := range ds.Rows {
			records = append(records, SnapshotRecord{
				ID:        r.ID,
				Data:      r.Data,
				Timestamp: r.Timestamp.UnixMilli(),
			})
		}
	}
	return parquet.Write(w, records)
}

func readParquetSnapshot(path string) (*domain.Dataset, error) {
	records, err := parquet.ReadFile[SnapshotRecord](path)
	if err != nil {
		return nil, err
	}
	ds := &domain.Dataset{Rows: make([]domain.Row, 0, len(records))}
	for _, r := range records {
		ds.Rows = append(ds.Rows, domain.Row{
			ID:        r.ID,
			Data:      r.Data,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return ds, nil
}
