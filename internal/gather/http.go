package gather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"monthlyload/internal/domain"
	"monthlyload/internal/store"
)

var _ Source = (*HTTPSource)(nil)

// HTTPSource downloads a CSV document with an id,data,timestamp header.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source fetching url. A nil client gets a default
// one with a 30s timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

// Name returns "http".
func (s *HTTPSource) Name() string { return "http" }

// Fetch performs a GET and decodes the body as CSV.
func (s *HTTPSource) Fetch(ctx context.Context) (*domain.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: status %d: %s", s.url, resp.StatusCode, body)
	}

	ds, err := store.DecodeCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.url, err)
	}
	return ds, nil
}
