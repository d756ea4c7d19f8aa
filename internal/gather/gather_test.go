package gather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"monthlyload/internal/domain"
)

func TestSampleSourceFetch(t *testing.T) {
	fixed := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	s := NewSampleSource(10)
	s.now = func() time.Time { return fixed }

	ds, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ds.Len() != 10 {
		t.Fatalf("Fetch returned %d rows, want 10", ds.Len())
	}
	for i, r := range ds.Rows {
		if r.ID != strconv.Itoa(i) {
			t.Errorf("row %d ID = %q", i, r.ID)
		}
		if !strings.HasPrefix(r.Data, "value_") {
			t.Errorf("row %d Data = %q, want value_ prefix", i, r.Data)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(r.Data, "value_"))
		if err != nil || n < 1 || n > 100 {
			t.Errorf("row %d Data = %q, want value_1..value_100", i, r.Data)
		}
		if !r.Timestamp.Equal(fixed) {
			t.Errorf("row %d Timestamp = %v, want %v", i, r.Timestamp, fixed)
		}
	}
}

func TestSampleSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSampleSource(3).Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestMemorySource(t *testing.T) {
	rows := []domain.Row{{ID: "a", Data: "x"}}
	s := NewMemorySource(rows)

	ds, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ds.Rows[0].ID = "mutated"
	if s.Rows[0].ID != "a" {
		t.Error("Fetch should return a copy of the rows")
	}

	s.Err = errors.New("upstream unavailable")
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("Fetch should return the configured error")
	}
	if s.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", s.Calls())
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("id,data,timestamp\n" +
			"1,alpha,2025-04-01T00:00:00Z\n" +
			"2,beta,2025-04-01 12:30:00\n"))
	}))
	defer srv.Close()

	ds, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Fetch returned %d rows, want 2", ds.Len())
	}
	if ds.Rows[1].Data != "beta" {
		t.Errorf("row 1 Data = %q, want beta", ds.Rows[1].Data)
	}
	want := time.Date(2025, 4, 1, 12, 30, 0, 0, time.UTC)
	if !ds.Rows[1].Timestamp.Equal(want) {
		t.Errorf("row 1 Timestamp = %v, want %v", ds.Rows[1].Timestamp, want)
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, nil).Fetch(context.Background())
	if err == nil {
		t.Fatal("Fetch should fail on a 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error %q should mention the status code", err)
	}
}
