// Package us provides sources backed by US market data providers.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"monthlyload/internal/domain"
	"monthlyload/internal/gather"
)

var _ gather.Source = (*AssetSource)(nil)

// assetLister is the subset of the Alpaca trading client used here.
type assetLister interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// AssetSource snapshots the active US equity universe from the Alpaca
// trading API. Each asset becomes one row: id is the symbol, data is
// "<exchange>:<name>", timestamp is the capture instant.
type AssetSource struct {
	client       assetLister
	tradableOnly bool
	now          func() time.Time
	log          *slog.Logger
}

// NewAssetSource creates an AssetSource configured with the given Alpaca
// credentials and trading API endpoint.
func NewAssetSource(apiKey, apiSecret, baseURL string, log *slog.Logger) *AssetSource {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AssetSource{
		client:       client,
		tradableOnly: true,
		now:          time.Now,
		log:          log.With("source", "alpaca"),
	}
}

// Name returns "alpaca".
func (s *AssetSource) Name() string { return "alpaca" }

// Fetch lists active US equities sorted by symbol. The SDK call is not
// context-aware, so ctx is only checked before and after it.
func (s *AssetSource) Fetch(ctx context.Context) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assets, err := s.client.GetAssets(alpaca.GetAssetsRequest{
		Status:     "active",
		AssetClass: "us_equity",
	})
	if err != nil {
		return nil, fmt.Errorf("GetAssets: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := s.now().UTC()
	rows := make([]domain.Row, 0, len(assets))
	skipped := 0
	for _, a := range assets {
		if s.tradableOnly && !a.Tradable {
			skipped++
			continue
		}
		rows = append(rows, domain.Row{
			ID:        a.Symbol,
			Data:      a.Exchange + ":" + a.Name,
			Timestamp: ts,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	s.log.Info("fetched asset universe", "assets", len(assets), "rows", len(rows), "skipped", skipped)
	return &domain.Dataset{Rows: rows}, nil
}
