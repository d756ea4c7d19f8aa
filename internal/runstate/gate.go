package runstate

import (
	"log/slog"
	"path/filepath"
	"time"
)

const day = 24 * time.Hour

// Gate decides whether a cycle is due and records completed cycles.
type Gate struct {
	state        *File
	lock         *Lock
	intervalDays int
	log          *slog.Logger
}

// NewGate creates a Gate whose state file is <dataDir>/last_run.txt and whose
// lock file is <dataDir>/.lock.
func NewGate(dataDir string, intervalDays int, log *slog.Logger) *Gate {
	return &Gate{
		state:        NewFile(filepath.Join(dataDir, "last_run.txt")),
		lock:         NewLock(dataDir),
		intervalDays: intervalDays,
		log:          log,
	}
}

// IntervalDays returns the configured interval.
func (g *Gate) IntervalDays() int { return g.intervalDays }

// StatePath returns the state file location.
func (g *Gate) StatePath() string { return g.state.Path() }

// Acquire takes the run lock. The returned function releases it.
func (g *Gate) Acquire() (release func(), err error) {
	if err := g.lock.TryLock(); err != nil {
		return nil, err
	}
	return func() {
		if err := g.lock.Unlock(); err != nil {
			g.log.Warn("releasing run lock", "error", err)
		}
	}, nil
}

// Last returns the last successful run time. A missing file returns ok=false
// silently; an unreadable or corrupt one logs a warning and also returns
// ok=false.
func (g *Gate) Last() (last time.Time, ok bool) {
	last, ok, err := g.state.Load()
	if err != nil {
		g.log.Warn("failed to read last run time, treating as first run",
			"path", g.state.Path(), "error", err)
		return time.Time{}, false
	}
	return last, ok
}

// ShouldRun reports whether a cycle is due at now.
func (g *Gate) ShouldRun(now time.Time) bool {
	last, ok := g.Last()
	return Due(last, ok, now, g.intervalDays)
}

// Commit durably records now as the last successful run.
func (g *Gate) Commit(now time.Time) error {
	return g.state.Save(now)
}

// NextDue returns the earliest instant at which a cycle following last is due.
func (g *Gate) NextDue(last time.Time) time.Time {
	return last.Add(time.Duration(g.intervalDays) * day)
}

// Due reports whether at least intervalDays whole days separate last and now.
// Partial days do not count. ok=false means no prior run, which is always due.
func Due(last time.Time, ok bool, now time.Time, intervalDays int) bool {
	if !ok {
		return true
	}
	return ElapsedDays(last, now) >= int64(intervalDays)
}

// ElapsedDays returns floor((now - last) / 24h). A last run in the future
// (clock skew) yields a negative count.
func ElapsedDays(last, now time.Time) int64 {
	elapsed := now.Sub(last)
	days := int64(elapsed / day)
	if elapsed < 0 && elapsed%day != 0 {
		days--
	}
	return days
}
