// Package pipeline sequences one extract / snapshot / load cycle behind the
// run gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"monthlyload/internal/domain"
	"monthlyload/internal/gather"
	"monthlyload/internal/runstate"
	"monthlyload/internal/store"
	"monthlyload/internal/util"
	"monthlyload/internal/warehouse"
)

// Stage is a state of the cycle state machine:
//
//	idle -> checking -> skipped
//	                 -> fetching -> snapshotting -> loading -> committing -> done
//	any non-skipped state may end in failed
type Stage string

const (
	StageIdle         Stage = "idle"
	StageChecking     Stage = "checking"
	StageSkipped      Stage = "skipped"
	StageFetching     Stage = "fetching"
	StageSnapshotting Stage = "snapshotting"
	StageLoading      Stage = "loading"
	StageCommitting   Stage = "committing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// StageError reports the stage in which a cycle failed. Failures before
// StageCommitting leave run state untouched.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Gate is the run-gate contract the pipeline depends on.
type Gate interface {
	Acquire() (release func(), err error)
	ShouldRun(now time.Time) bool
	Commit(now time.Time) error
}

var _ Gate = (*runstate.Gate)(nil)

// Result summarises an invocation.
type Result struct {
	Stage       Stage // last state reached
	StartedAt   time.Time
	CommittedAt time.Time
	Snapshot    store.Snapshot
	ArchiveKey  string
	RowsFetched int
	RowsLoaded  int64
}

// Skipped reports whether the gate decided the cycle was not due.
func (r *Result) Skipped() bool { return r.Stage == StageSkipped }

// Options tune a Pipeline.
type Options struct {
	// Table is the warehouse table to load into.
	Table string
	// Force bypasses the due check. State is still committed on success.
	Force bool
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Pipeline orchestrates one cycle. It holds no state between runs.
type Pipeline struct {
	gate      Gate
	source    gather.Source
	snapshots store.SnapshotWriter
	archive   store.Archiver
	sink      warehouse.Sink
	opts      Options
	log       *slog.Logger
}

// New creates a Pipeline wired with the given dependencies. archive may be
// nil to skip archiving.
func New(
	gate Gate,
	source gather.Source,
	snapshots store.SnapshotWriter,
	archive store.Archiver,
	sink warehouse.Sink,
	opts Options,
	log *slog.Logger,
) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		gate:      gate,
		source:    source,
		snapshots: snapshots,
		archive:   archive,
		sink:      sink,
		opts:      opts,
		log:       log,
	}
}

// Run executes one invocation. A nil error means the cycle was skipped or
// completed; check Result.Skipped. Errors wrap runstate.ErrLocked or are a
// *StageError.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{Stage: StageIdle}

	release, err := p.gate.Acquire()
	if err != nil {
		if errors.Is(err, runstate.ErrLocked) {
			p.log.Warn("another run is in progress, exiting", "error", err)
		} else {
			p.log.Error("acquiring run lock", "error", err)
		}
		return res, err
	}
	defer release()

	p.enter(res, StageChecking)
	res.StartedAt = p.opts.Now().UTC()
	if !p.gate.ShouldRun(res.StartedAt) {
		if !p.opts.Force {
			p.enter(res, StageSkipped)
			p.log.Info("monthly data load not required yet")
			return res, nil
		}
		p.log.Info("run not due, forcing")
	}
	p.log.Info("starting monthly data extraction and load", "source", p.source.Name())

	p.enter(res, StageFetching)
	ds, err := p.source.Fetch(ctx)
	if err != nil {
		return res, p.fail(ctx, res, err)
	}
	if ds == nil {
		ds = &domain.Dataset{}
	}
	res.RowsFetched = ds.Len()
	p.log.Info("fetched dataset", "rows", res.RowsFetched)

	p.enter(res, StageSnapshotting)
	snap, err := p.snapshots.WriteSnapshot(ctx, res.StartedAt, ds)
	if err != nil {
		return res, p.fail(ctx, res, err)
	}
	res.Snapshot = snap
	p.log.Info("saved snapshot", "path", snap.Path, "rows", snap.Rows)

	if p.archive != nil {
		key, err := p.archive.Archive(ctx, snap)
		if err != nil {
			return res, p.fail(ctx, res, err)
		}
		res.ArchiveKey = key
		p.log.Info("archived snapshot", "key", key)
	}

	p.enter(res, StageLoading)
	if err := p.sink.EnsureTable(ctx, p.opts.Table, domain.DatasetSchema); err != nil {
		return res, p.fail(ctx, res, err)
	}
	n, err := p.sink.BulkLoad(ctx, p.opts.Table, ds)
	if err != nil {
		return res, p.fail(ctx, res, err)
	}
	res.RowsLoaded = n
	p.log.Info("loaded data into warehouse", "table", p.opts.Table, "rows", n)

	p.enter(res, StageCommitting)
	committedAt := p.opts.Now().UTC()
	if committedAt.Before(res.StartedAt) {
		committedAt = res.StartedAt
	}
	if err := p.gate.Commit(committedAt); err != nil {
		return res, p.fail(ctx, res, err)
	}
	res.CommittedAt = committedAt

	p.enter(res, StageDone)
	p.log.Info("monthly data extraction and load completed", "committed_at", committedAt)
	return res, nil
}

func (p *Pipeline) enter(res *Result, s Stage) {
	p.log.Debug("stage", "from", res.Stage, "to", s)
	res.Stage = s
}

// fail records the failed stage and logs it. A failed commit happens after
// the warehouse load, so it is logged at critical severity: the next
// invocation will load the same interval again.
func (p *Pipeline) fail(ctx context.Context, res *Result, err error) error {
	serr := &StageError{Stage: res.Stage, Err: err}
	res.Stage = StageFailed

	if serr.Stage == StageCommitting {
		p.log.Log(ctx, util.LevelCritical, "data loaded but run state could not be saved; next run will load again",
			"stage", serr.Stage, "error", err)
	} else {
		p.log.Error("cycle aborted, run state unchanged", "stage", serr.Stage, "error", err)
	}
	return serr
}

// ---------------------------------------------------------------------------
// Exit codes
// ---------------------------------------------------------------------------

const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitCycleFailed = 2
	ExitStateWrite  = 3
	ExitLocked      = 4
)

// ExitCode maps a Run error to a process exit code. Errors that are neither
// lock nor stage errors are treated as configuration/setup failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, runstate.ErrLocked) {
		return ExitLocked
	}
	var serr *StageError
	if errors.As(err, &serr) {
		if serr.Stage == StageCommitting {
			return ExitStateWrite
		}
		return ExitCycleFailed
	}
	return ExitConfig
}
