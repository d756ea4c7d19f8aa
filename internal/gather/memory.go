package gather

import (
	"context"
	"sync"

	"monthlyload/internal/domain"
)

var _ Source = (*MemorySource)(nil)

// MemorySource serves a fixed dataset, or a fixed error when Err is set. It
// counts calls so tests can assert how often a cycle fetched.
type MemorySource struct {
	Rows []domain.Row
	Err  error

	mu    sync.Mutex
	calls int
}

// NewMemorySource returns a source that always yields rows.
func NewMemorySource(rows []domain.Row) *MemorySource {
	return &MemorySource{Rows: rows}
}

// Name returns "memory".
func (s *MemorySource) Name() string { return "memory" }

// Fetch returns a copy of the configured rows.
func (s *MemorySource) Fetch(ctx context.Context) (*domain.Dataset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	rows := make([]domain.Row, len(s.Rows))
	copy(rows, s.Rows)
	return &domain.Dataset{Rows: rows}, nil
}

// Calls returns how many times Fetch was invoked.
func (s *MemorySource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
