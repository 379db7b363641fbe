package interfaces

import (
	"context"
	"time"

	"ridematch/internal/models"
)

type PriceQuoteRepository interface {
	Create(ctx context.Context, quote *models.PriceQuote) error
	// AverageSignalMultiplier averages signal_multiplier over quotes in zoneID
	// created at or after since. ok is false when there is no history.
	AverageSignalMultiplier(ctx context.Context, zoneID string, since time.Time) (avg float64, ok bool, err error)
}
