package gather

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"monthlyload/internal/domain"
)

var _ Source = (*SampleSource)(nil)

// SampleSource generates a placeholder dataset: ids 0..n-1, data
// "value_<1..100>", all stamped with the capture instant. It stands in until a
// real upstream is configured.
type SampleSource struct {
	n   int
	now func() time.Time
}

// NewSampleSource returns a source producing n rows per fetch.
func NewSampleSource(n int) *SampleSource {
	return &SampleSource{n: n, now: time.Now}
}

// Name returns "sample".
func (s *SampleSource) Name() string { return "sample" }

// Fetch generates a fresh dataset.
func (s *SampleSource) Fetch(ctx context.Context) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts := s.now().UTC()
	rows := make([]domain.Row, s.n)
	for i := range rows {
		rows[i] = domain.Row{
			ID:        strconv.Itoa(i),
			Data:      fmt.Sprintf("value_%d", rand.Intn(100)+1),
			Timestamp: ts,
		}
	}
	return &domain.Dataset{Rows: rows}, nil
}
