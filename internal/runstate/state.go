// Package runstate tracks when the last successful cycle finished and decides
// whether the next one is due.
package runstate

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"monthlyload/internal/util"
)

// ErrCorruptState is wrapped by Load when the state file exists but does not
// hold a parseable timestamp.
var ErrCorruptState = errors.New("corrupt run state")

// parseLayouts are tried in order. The naive forms are what older versions of
// the job wrote (no zone, UTC implied).
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// File is the single-line timestamp file recording the last successful run.
type File struct {
	path string
}

// NewFile returns a File stored at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the state file location.
func (f *File) Path() string { return f.path }

// Load returns the stored timestamp. ok is false when no state exists. A
// state file that cannot be read or parsed yields an error; callers treat it
// as absent.
func (f *File) Load() (last time.Time, ok bool, err error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading %s: %w", f.path, err)
	}

	t, err := parseTimestamp(string(data))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w in %s: %v", ErrCorruptState, f.path, err)
	}
	return t, true, nil
}

// Save atomically replaces the stored timestamp with t.
func (f *File) Save(t time.Time) error {
	line := t.UTC().Format(time.RFC3339Nano) + "\n"
	if err := util.WriteFileAtomic(f.path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("writing run state: %w", err)
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var firstErr error
	for _, layout := range parseLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
