package signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"ridematch/pkg/logger"
)

// Guarded wraps a Provider so that errors, panics and slow sources turn
// into the provider's neutral reading instead of failing the caller.
type Guarded struct {
	provider   Provider
	neutral    Reading
	timeout    time.Duration
	logger     *logger.Logger
	onDegraded func(provider string)
}

func Guard(provider Provider, timeout time.Duration, log *logger.Logger) *Guarded {
	return &Guarded{
		provider: provider,
		neutral:  NeutralFor(provider.Name()),
		timeout:  timeout,
		logger:   log.WithField("signal", provider.Name()),
	}
}

// OnDegraded registers a hook invoked whenever the neutral reading is used.
func (g *Guarded) OnDegraded(fn func(provider string)) *Guarded {
	g.onDegraded = fn
	return g
}

func (g *Guarded) Name() string { return g.provider.Name() }

// Estimate never returns an error. degraded is true when the neutral
// reading was substituted.
func (g *Guarded) Estimate(ctx context.Context, lat, lng float64, at time.Time) (reading Reading, degraded bool) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type result struct {
		reading Reading
		err     error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		r, err := g.provider.Estimate(ctx, lat, lng, at)
		done <- result{reading: r, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	if m := res.reading.Multiplier; res.err == nil && (!(m > 0) || math.IsInf(m, 0)) {
		res.err = fmt.Errorf("invalid multiplier %v", res.reading.Multiplier)
	}
	if res.err != nil {
		g.logger.WithError(res.err).Warn("Signal unavailable, using neutral reading")
		if g.onDegraded != nil {
			g.onDegraded(g.provider.Name())
		}
		return g.neutral, true
	}

	return res.reading, false
}
