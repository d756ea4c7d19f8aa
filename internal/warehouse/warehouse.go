// Package warehouse loads datasets into a SQL warehouse table.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"monthlyload/internal/domain"
)

// Sink is the load target of a cycle.
type Sink interface {
	// EnsureTable creates the table if it does not exist.
	EnsureTable(ctx context.Context, name string, schema domain.Schema) error
	// BulkLoad appends every row of ds to the table and returns the number of
	// rows loaded. On error no rows from this call remain in the table.
	BulkLoad(ctx context.Context, name string, ds *domain.Dataset) (int64, error)
}

// ErrInvalidIdentifier is returned for table names that are not plain,
// optionally qualified, SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid table identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// ValidateIdentifier checks that name can be interpolated into SQL as-is.
func ValidateIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

type dialect struct {
	name        string
	placeholder func(n int) string
	types       map[domain.ColumnType]string
}

func questionMark(int) string { return "?" }
func dollar(n int) string     { return fmt.Sprintf("$%d", n) }

var dialects = map[string]dialect{
	"snowflake": {
		name:        "snowflake",
		placeholder: questionMark,
		types: map[domain.ColumnType]string{
			domain.ColumnString:    "VARCHAR",
			domain.ColumnTimestamp: "TIMESTAMP_NTZ",
		},
	},
	"postgres": {
		name:        "postgres",
		placeholder: dollar,
		types: map[domain.ColumnType]string{
			domain.ColumnString:    "TEXT",
			domain.ColumnTimestamp: "TIMESTAMPTZ",
		},
	},
	"sqlite": {
		name:        "sqlite",
		placeholder: questionMark,
		types: map[domain.ColumnType]string{
			domain.ColumnString:    "TEXT",
			domain.ColumnTimestamp: "TIMESTAMP",
		},
	},
}

// ---------------------------------------------------------------------------
// SQLSink
// ---------------------------------------------------------------------------

var _ Sink = (*SQLSink)(nil)

// SQLSink implements Sink over database/sql.
type SQLSink struct {
	db        *sql.DB
	dialect   dialect
	batchSize int
	log       *slog.Logger
}

// NewSQLSink wraps an open database. driver selects the SQL dialect
// ("snowflake", "postgres" or "sqlite"); batchSize bounds rows per INSERT.
func NewSQLSink(db *sql.DB, driver string, batchSize int, log *slog.Logger) (*SQLSink, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &SQLSink{db: db, dialect: d, batchSize: batchSize, log: log.With("warehouse", driver)}, nil
}

// Close closes the underlying database connection.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// EnsureTable issues CREATE TABLE IF NOT EXISTS for the schema.
func (s *SQLSink) EnsureTable(ctx context.Context, name string, schema domain.Schema) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	stmt, err := s.createTableSQL(name, schema)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	return nil
}

// BulkLoad inserts ds inside one transaction using multi-row INSERTs of at
// most batchSize rows. Any failure rolls the whole load back.
func (s *SQLSink) BulkLoad(ctx context.Context, name string, ds *domain.Dataset) (int64, error) {
	if err := ValidateIdentifier(name); err != nil {
		return 0, err
	}
	if ds.Len() == 0 {
		s.log.Info("nothing to load", "table", name)
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warn("rolling back load", "table", name, "error", rbErr)
			}
		}
	}()

	var loaded int64
	for start := 0; start < len(ds.Rows); start += s.batchSize {
		end := min(start+s.batchSize, len(ds.Rows))
		batch := ds.Rows[start:end]

		stmt, args := s.insertSQL(name, batch)
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("inserting rows %d-%d into %s: %w", start, end-1, name, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != int64(len(batch)) {
			return 0, fmt.Errorf("inserting rows %d-%d into %s: %d of %d rows affected",
				start, end-1, name, n, len(batch))
		}
		loaded += int64(len(batch))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing load into %s: %w", name, err)
	}
	committed = true

	s.log.Info("loaded rows", "table", name, "rows", loaded)
	return loaded, nil
}

func (s *SQLSink) createTableSQL(name string, schema domain.Schema) (string, error) {
	cols := make([]string, len(schema))
	for i, c := range schema {
		typ, ok := s.dialect.types[c.Type]
		if !ok {
			return "", fmt.Errorf("column %s: no %s type for %s", c.Name, s.dialect.name, c.Type)
		}
		cols[i] = c.Name + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(cols, ", ")), nil
}

func (s *SQLSink) insertSQL(name string, rows []domain.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(name)
	b.WriteString(" (")
	b.WriteString(strings.Join(domain.DatasetSchema.Names(), ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*3)
	n := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < 3; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.dialect.placeholder(n))
			n++
		}
		b.WriteString(")")
		args = append(args, r.ID, r.Data, r.Timestamp.UTC())
	}
	return b.String(), args
}
