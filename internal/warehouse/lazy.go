package warehouse

import (
	"context"
	"sync"

	"monthlyload/internal/domain"
)

var _ Sink = (*LazySink)(nil)

// LazySink defers connecting until the first call, so invocations that are
// skipped by the run gate never touch the warehouse. A failed open is
// returned from that call and retried on the next one.
type LazySink struct {
	open func(ctx context.Context) (*SQLSink, error)

	mu   sync.Mutex
	sink *SQLSink
}

// NewLazySink wraps an open function such as a closure over Open.
func NewLazySink(open func(ctx context.Context) (*SQLSink, error)) *LazySink {
	return &LazySink{open: open}
}

func (l *LazySink) get(ctx context.Context) (*SQLSink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		return l.sink, nil
	}
	s, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	l.sink = s
	return s, nil
}

// EnsureTable connects if needed and delegates.
func (l *LazySink) EnsureTable(ctx context.Context, name string, schema domain.Schema) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.EnsureTable(ctx, name, schema)
}

// BulkLoad connects if needed and delegates.
func (l *LazySink) BulkLoad(ctx context.Context, name string, ds *domain.Dataset) (int64, error) {
	s, err := l.get(ctx)
	if err != nil {
		return 0, err
	}
	return s.BulkLoad(ctx, name, ds)
}

// Opened reports whether a connection was established.
func (l *LazySink) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink != nil
}

// Close closes the connection if one was opened.
func (l *LazySink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}
