package services

import (
	"context"
	"math"
	"time"

	"ridematch/internal/config"
	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/utils"
	"ridematch/pkg/logger"
	"ridematch/pkg/metrics"
	"ridematch/pkg/signals"

	"golang.org/x/sync/errgroup"
)

type QuoteRequest struct {
	Lat               float64
	Lng               float64
	DistanceKM        float64
	VehicleType       string
	ExplicitRatePerKM float64
	// BaseFare overrides the configured flag fall on the fallback path.
	BaseFare float64
}

type PricingService interface {
	// Quote never fails because a signal or the zone lookup failed; those
	// degrade to neutral readings or to the fallback fare. Only a malformed
	// distance is an error.
	Quote(ctx context.Context, req QuoteRequest) (*models.PriceQuote, error)
	Policy() models.PricingPolicy
}

// SignalSet groups the four live pricing inputs.
type SignalSet struct {
	Weather signals.Provider
	Traffic signals.Provider
	Demand  signals.Provider
	Time    signals.Provider
}

type pricingService struct {
	config   *config.PricingConfig
	policy   models.PricingPolicy
	currency string
	zones    *utils.ZoneIndex
	weather  *signals.Guarded
	traffic  *signals.Guarded
	demand   *signals.Guarded
	timeOf   *signals.Guarded
	quotes   interfaces.PriceQuoteRepository
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewPricingService(
	cfg *config.PricingConfig,
	currency string,
	zones *utils.ZoneIndex,
	set SignalSet,
	quotes interfaces.PriceQuoteRepository,
	m *metrics.Metrics,
	log *logger.Logger,
) PricingService {
	log = log.WithComponent("pricing")

	guard := func(p signals.Provider) *signals.Guarded {
		return signals.Guard(p, cfg.ProviderTimeout, log).OnDegraded(func(name string) {
			m.SignalDegraded.WithLabelValues(name).Inc()
		})
	}

	return &pricingService{
		config:   cfg,
		policy:   models.PricingPolicy(cfg.Policy),
		currency: currency,
		zones:    zones,
		weather:  guard(set.Weather),
		traffic:  guard(set.Traffic),
		demand:   guard(set.Demand),
		timeOf:   guard(set.Time),
		quotes:   quotes,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

func (s *pricingService) Policy() models.PricingPolicy {
	return s.policy
}

func (s *pricingService) Quote(ctx context.Context, req QuoteRequest) (*models.PriceQuote, error) {
	if !utils.IsFinite(req.DistanceKM) || req.DistanceKM < 0 {
		return nil, validationError("distance must be a finite, non-negative number")
	}
	if !utils.IsFinite(req.ExplicitRatePerKM) {
		return nil, validationError("rate per km must be finite")
	}

	now := s.now()
	vehicle := models.NormalizeVehicleType(req.VehicleType)
	rate, source := s.resolveRate(vehicle, req.ExplicitRatePerKM)

	var distancePrice float64
	if source == models.RateSourceFallback {
		distancePrice = s.fallbackPrice(req)
	} else {
		distancePrice = utils.RoundCurrency(req.DistanceKM * rate)
	}

	zone, err := s.zones.Lookup(req.Lat, req.Lng)
	if err != nil {
		s.logger.WithError(err).Warn("Zone lookup failed, using fallback fare")
		return s.fallbackQuote(req, vehicle, "", now), nil
	}

	factors, zoneAdjustment, err := s.gatherSignals(ctx, zone.ID, req.Lat, req.Lng, now)
	if err != nil {
		s.logger.WithError(err).WithField("zone_id", zone.ID).Warn("Signal gathering failed, using fallback fare")
		quote := s.fallbackQuote(req, vehicle, zone.ID, now)
		quote.ZoneBounds = zone.Bounds
		quote.ZoneCenter = zone.Center
		return quote, nil
	}

	signalMultiplier := factors.Product() * zoneAdjustment
	combined := s.combine(signalMultiplier)

	quote := &models.PriceQuote{
		ZoneID:             zone.ID,
		ZoneBounds:         zone.Bounds,
		ZoneCenter:         zone.Center,
		VehicleType:        vehicle,
		DistanceKM:         req.DistanceKM,
		RatePerKM:          rate,
		RateSource:         source,
		BasePrice:          distancePrice,
		Factors:            factors,
		ZoneAdjustment:     zoneAdjustment,
		SignalMultiplier:   utils.RoundTo(signalMultiplier, 4),
		CombinedMultiplier: combined,
		FinalFare:          utils.RoundCurrency(distancePrice * combined),
		Currency:           s.currency,
		Policy:             s.policy,
		CreatedAt:          now,
	}

	s.metrics.QuotesTotal.WithLabelValues(string(s.policy), string(source)).Inc()
	s.metrics.QuoteMultiplier.Observe(signalMultiplier)

	if err := s.quotes.Create(ctx, quote); err != nil {
		s.logger.WithError(err).WithField("zone_id", zone.ID).Warn("Failed to persist price quote")
	}

	return quote, nil
}

func (s *pricingService) resolveRate(vehicle models.VehicleType, explicit float64) (float64, models.RateSource) {
	if explicit > 0 {
		return explicit, models.RateSourceExplicit
	}
	if vehicle.IsSpecified() {
		if rate, ok := s.config.RatesPerKM[string(vehicle)]; ok && rate > 0 {
			return rate, models.RateSourceTable
		}
	}
	return s.config.FallbackPerKM, models.RateSourceFallback
}

func (s *pricingService) fallbackPrice(req QuoteRequest) float64 {
	base := s.config.FallbackBase
	if req.BaseFare > 0 && utils.IsFinite(req.BaseFare) {
		base = req.BaseFare
	}
	return utils.RoundCurrency(base + req.DistanceKM*s.config.FallbackPerKM)
}

// fallbackQuote is not persisted: its neutral multipliers would drag the
// zone history toward 1.0.
func (s *pricingService) fallbackQuote(req QuoteRequest, vehicle models.VehicleType, zoneID string, now time.Time) *models.PriceQuote {
	price := s.fallbackPrice(req)
	s.metrics.QuotesTotal.WithLabelValues(string(s.policy), string(models.RateSourceFallback)).Inc()

	return &models.PriceQuote{
		ZoneID:             zoneID,
		VehicleType:        vehicle,
		DistanceKM:         req.DistanceKM,
		RatePerKM:          s.config.FallbackPerKM,
		RateSource:         models.RateSourceFallback,
		BasePrice:          price,
		Factors:            models.FallbackFactors(),
		ZoneAdjustment:     1.0,
		SignalMultiplier:   1.0,
		CombinedMultiplier: 1.0,
		FinalFare:          price,
		Currency:           s.currency,
		Policy:             s.policy,
		Fallback:           true,
		CreatedAt:          now,
	}
}

// gatherSignals queries the providers and the zone history in parallel
// under one deadline. Individual providers never fail; only the deadline
// or a cancelled caller does.
func (s *pricingService) gatherSignals(ctx context.Context, zoneID string, lat, lng float64, at time.Time) (models.PricingFactors, float64, error) {
	if s.config.SignalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SignalTimeout)
		defer cancel()
	}

	var (
		factors        models.PricingFactors
		zoneAdjustment = 1.0
	)

	g, gctx := errgroup.WithContext(ctx)

	estimate := func(provider *signals.Guarded, dst *models.Factor) {
		g.Go(func() error {
			reading, _ := provider.Estimate(gctx, lat, lng, at)
			*dst = models.Factor{Label: models.FactorLabel(reading.Label), Multiplier: reading.Multiplier}
			return gctx.Err()
		})
	}
	estimate(s.weather, &factors.Weather)
	estimate(s.traffic, &factors.Traffic)
	estimate(s.demand, &factors.Demand)
	estimate(s.timeOf, &factors.Time)

	g.Go(func() error {
		avg, ok, err := s.quotes.AverageSignalMultiplier(gctx, zoneID, at.Add(-s.config.ZoneWindow))
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.WithError(err).WithField("zone_id", zoneID).Warn("Zone history unavailable")
			return nil
		}
		zoneAdjustment = BandZoneAdjustment(avg, ok)
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.PricingFactors{}, 0, err
	}
	if err := ctx.Err(); err != nil {
		return models.PricingFactors{}, 0, err
	}

	return factors, zoneAdjustment, nil
}

func (s *pricingService) combine(signalMultiplier float64) float64 {
	if s.policy != models.PricingPolicySurge {
		return 1.0
	}
	return math.Min(math.Max(signalMultiplier, s.config.MinSurge), s.config.MaxSurge)
}

// BandZoneAdjustment maps a zone's trailing average multiplier into
// [0.9, 1.3]. No history is neutral.
func BandZoneAdjustment(avg float64, ok bool) float64 {
	if !ok || !utils.IsFinite(avg) {
		return 1.0
	}
	switch {
	case avg >= 1.5:
		return 1.3
	case avg >= 1.3:
		return 1.2
	case avg >= 1.15:
		return 1.1
	case avg < 0.95:
		return 0.9
	default:
		return 1.0
	}
}
