// Package gather defines the dataset Source consumed by the monthly pipeline
// and its built-in implementations.
package gather

import (
	"context"

	"monthlyload/internal/domain"
)

// Source is the interface for all dataset sources.
type Source interface {
	// Name returns the source identifier.
	Name() string
	// Fetch retrieves one complete dataset. Any error aborts the cycle.
	Fetch(ctx context.Context) (*domain.Dataset, error)
}
