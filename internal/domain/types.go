// Package domain defines the core value types that flow through a monthly
// load cycle: rows, datasets and the warehouse column schema.
package domain

import "time"

// Row is a single record of the extracted dataset.
type Row struct {
	ID        string
	Data      string
	Timestamp time.Time
}

// Dataset is an in-memory table of rows produced by one fetch.
type Dataset struct {
	Rows []Row
}

// Len returns the number of rows, treating a nil dataset as empty.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnType is a logical warehouse column type.
type ColumnType string

const (
	ColumnString    ColumnType = "STRING"
	ColumnTimestamp ColumnType = "TIMESTAMP"
)

// Column describes one column of a table.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// DatasetSchema is the fixed schema of every snapshot and warehouse table.
var DatasetSchema = Schema{
	{Name: "id", Type: ColumnString},
	{Name: "data", Type: ColumnString},
	{Name: "timestamp", Type: ColumnTimestamp},
}
