// Package store persists dated, immutable dataset snapshots on the local
// filesystem and optionally archives them to object storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"monthlyload/internal/domain"
	"monthlyload/internal/util"
)

// SnapshotWriter persists a dataset as a new snapshot.
type SnapshotWriter interface {
	// WriteSnapshot writes ds under a name derived from capturedAt. It never
	// overwrites an existing snapshot.
	WriteSnapshot(ctx context.Context, capturedAt time.Time, ds *domain.Dataset) (Snapshot, error)
}

// Archiver copies a written snapshot to secondary storage.
type Archiver interface {
	// Archive uploads the snapshot and returns its object key.
	Archive(ctx context.Context, snap Snapshot) (string, error)
}

// Snapshot describes a snapshot file that has been fully written.
type Snapshot struct {
	Path       string
	Format     Format
	Rows       int
	CapturedAt time.Time
}

// Format is a snapshot file encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", s)
	}
}

// ContentType returns the MIME type used when archiving.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}

// ErrSnapshotExists is returned when a snapshot with the same capture
// instant is already on disk.
var ErrSnapshotExists = errors.New("snapshot already exists")

// snapshotTimeLayout renders the capture instant in file names.
const snapshotTimeLayout = "20060102T150405Z"

// SnapshotName returns the file name for a snapshot captured at t:
//
//	data_<YYYYMMDDTHHMMSSZ>.<format>
func SnapshotName(t time.Time, f Format) string {
	return "data_" + t.UTC().Format(snapshotTimeLayout) + "." + string(f)
}

// ---------------------------------------------------------------------------
// LocalStore
// ---------------------------------------------------------------------------

var _ SnapshotWriter = (*LocalStore)(nil)

// LocalStore writes snapshots as files under DataDir.
type LocalStore struct {
	DataDir string
	Format  Format
}

// NewLocalStore creates a LocalStore rooted at dataDir.
func NewLocalStore(dataDir string, format Format) *LocalStore {
	return &LocalStore{DataDir: dataDir, Format: format}
}

// WriteSnapshot writes ds to <DataDir>/data_<ts>.<format>, creating DataDir
// if needed. The file appears under its final name only once completely
// written and synced.
func (s *LocalStore) WriteSnapshot(ctx context.Context, capturedAt time.Time, ds *domain.Dataset) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	path := s.snapshotPath(capturedAt)
	if _, err := os.Stat(path); err == nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	}

	af, err := util.CreateAtomic(path, 0o644)
	if err != nil {
		return Snapshot{}, err
	}
	defer af.Abort()

	if err := s.encode(af, ds); err != nil {
		return Snapshot{}, fmt.Errorf("encoding snapshot %s: %w", path, err)
	}
	if err := af.CommitNew(); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotExists, path)
		}
		return Snapshot{}, err
	}

	return Snapshot{
		Path:       path,
		Format:     s.Format,
		Rows:       ds.Len(),
		CapturedAt: capturedAt.UTC(),
	}, nil
}

func (s *LocalStore) encode(w io.Writer, ds *domain.Dataset) error {
	switch s.Format {
	case FormatCSV:
		return EncodeCSV(w, ds)
	case FormatParquet:
		return EncodeParquet(w, ds)
	default:
		return fmt.Errorf("unsupported snapshot format %q", s.Format)
	}
}

// snapshotPath returns the filesystem path for a snapshot.
// Layout: <dataDir>/data_<YYYYMMDDTHHMMSSZ>.<format>
func (s *LocalStore) snapshotPath(t time.Time) string {
	return filepath.Join(s.DataDir, SnapshotName(t, s.Format))
}

// ListSnapshots returns the snapshot file names in DataDir, oldest first.
func (s *LocalStore) ListSnapshots() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.DataDir, "data_*.*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".parquet") {
			names = append(names, name)
		}
	}
	// Glob results are sorted and the timestamp sorts lexically.
	return names, nil
}

// ReadSnapshot loads a snapshot file, choosing the decoder by extension.
func ReadSnapshot(path string) (*domain.Dataset, error) {
	switch filepath.Ext(path) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DecodeCSV(f)
	case ".parquet":
		return readParquetSnapshot(path)
	default:
		return nil, fmt.Errorf("unknown snapshot extension: %s", path)
	}
}
