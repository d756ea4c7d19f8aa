package us

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

type fakeLister struct {
	assets []alpaca.Asset
	err    error
	req    alpaca.GetAssetsRequest
}

func (f *fakeLister) GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	f.req = req
	return f.assets, f.err
}

func newTestSource(l assetLister) *AssetSource {
	return &AssetSource{
		client:       l,
		tradableOnly: true,
		now:          func() time.Time { return time.Date(2025, 5, 1, 13, 0, 0, 0, time.UTC) },
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAssetSourceName(t *testing.T) {
	s := NewAssetSource("key", "secret", "https://paper-api.alpaca.markets",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := s.Name(); got != "alpaca" {
		t.Errorf("AssetSource.Name() = %q, want %q", got, "alpaca")
	}
}

func TestAssetSourceFetch(t *testing.T) {
	l := &fakeLister{assets: []alpaca.Asset{
		{ID: "3", Symbol: "MSFT", Exchange: "NASDAQ", Name: "Microsoft Corporation", Tradable: true},
		{ID: "1", Symbol: "AAPL", Exchange: "NASDAQ", Name: "Apple Inc.", Tradable: true},
		{ID: "2", Symbol: "ZZZZ", Exchange: "OTC", Name: "Halted Co", Tradable: false},
	}}

	ds, err := newTestSource(l).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if l.req.Status != "active" || l.req.AssetClass != "us_equity" {
		t.Errorf("request = %+v, want active us_equity", l.req)
	}
	if ds.Len() != 2 {
		t.Fatalf("Fetch returned %d rows, want 2 (non-tradable skipped)", ds.Len())
	}
	if ds.Rows[0].ID != "AAPL" || ds.Rows[1].ID != "MSFT" {
		t.Errorf("rows not sorted by symbol: %q, %q", ds.Rows[0].ID, ds.Rows[1].ID)
	}
	if ds.Rows[0].Data != "NASDAQ:Apple Inc." {
		t.Errorf("row 0 Data = %q", ds.Rows[0].Data)
	}
	want := time.Date(2025, 5, 1, 13, 0, 0, 0, time.UTC)
	if !ds.Rows[1].Timestamp.Equal(want) {
		t.Errorf("row 1 Timestamp = %v, want %v", ds.Rows[1].Timestamp, want)
	}
}

func TestAssetSourceError(t *testing.T) {
	l := &fakeLister{err: errors.New("forbidden")}
	if _, err := newTestSource(l).Fetch(context.Background()); err == nil {
		t.Fatal("Fetch should propagate the API error")
	}
}
