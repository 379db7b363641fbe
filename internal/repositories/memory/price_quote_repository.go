package memory

import (
	"context"
	"sync"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PriceQuoteRepository drops quotes older than retention on every write.
type PriceQuoteRepository struct {
	mu        sync.Mutex
	quotes    []models.PriceQuote
	retention time.Duration
	failWith  error
}

func NewPriceQuoteRepository(retention time.Duration) *PriceQuoteRepository {
	return &PriceQuoteRepository{retention: retention}
}

var _ interfaces.PriceQuoteRepository = (*PriceQuoteRepository)(nil)

// FailWith makes every later call return err. Used to exercise best-effort
// persistence.
func (r *PriceQuoteRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *PriceQuoteRepository) Create(ctx context.Context, quote *models.PriceQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}
	if quote.ID.IsZero() {
		quote.ID = primitive.NewObjectID()
	}
	r.quotes = append(r.quotes, *quote)

	if r.retention > 0 {
		cutoff := quote.CreatedAt.Add(-r.retention)
		kept := r.quotes[:0]
		for _, q := range r.quotes {
			if !q.CreatedAt.Before(cutoff) {
				kept = append(kept, q)
			}
		}
		r.quotes = kept
	}
	return nil
}

func (r *PriceQuoteRepository) AverageSignalMultiplier(ctx context.Context, zoneID string, since time.Time) (float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return 0, false, r.failWith
	}

	var sum float64
	var n int
	for _, q := range r.quotes {
		if q.ZoneID == zoneID && !q.CreatedAt.Before(since) {
			sum += q.SignalMultiplier
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// Len reports how many quotes are retained.
func (r *PriceQuoteRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}
