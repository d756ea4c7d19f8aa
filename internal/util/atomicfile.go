package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile buffers writes in a temporary file next to the destination and
// publishes it under the final name only on Commit or CommitNew. Readers of
// the destination never observe a partially written file.
type AtomicFile struct {
	f    *os.File
	path string
	done bool
}

// CreateAtomic creates the temporary file for path, creating the parent
// directory if needed.
func CreateAtomic(path string, perm os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	return &AtomicFile{f: f, path: path}, nil
}

// Write implements io.Writer.
func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// Path returns the final destination path.
func (a *AtomicFile) Path() string { return a.path }

// Commit flushes the temporary file to disk and renames it over the
// destination, replacing any existing file.
func (a *AtomicFile) Commit() error {
	return a.publish(func(tmp string) error {
		return os.Rename(tmp, a.path)
	})
}

// CommitNew is like Commit but fails with an error wrapping os.ErrExist if
// the destination already exists. The existing file is left untouched.
func (a *AtomicFile) CommitNew() error {
	return a.publish(func(tmp string) error {
		if err := os.Link(tmp, a.path); err != nil {
			return err
		}
		return os.Remove(tmp)
	})
}

// Abort discards the temporary file. It is a no-op after a successful commit,
// so it is safe to defer.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	a.f.Close()
	return os.Remove(a.f.Name())
}

func (a *AtomicFile) publish(place func(tmp string) error) error {
	if a.done {
		return errors.New("atomic file already committed or aborted")
	}
	tmp := a.f.Name()
	if err := a.f.Sync(); err != nil {
		a.Abort()
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err := a.f.Close(); err != nil {
		a.done = true
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	a.done = true
	if err := place(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing %s: %w", a.path, err)
	}
	return syncDir(filepath.Dir(a.path))
}

// WriteFileAtomic writes data to path via a temporary file and rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	af, err := CreateAtomic(path, perm)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		af.Abort()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return af.Commit()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
