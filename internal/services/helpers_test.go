package services

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"ridematch/internal/config"
	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/repositories/memory"
	"ridematch/internal/utils"
	"ridematch/pkg/events"
	"ridematch/pkg/logger"
	"ridematch/pkg/metrics"
	"ridematch/pkg/signals"

	"github.com/prometheus/client_golang/prometheus"
)

var testNow = time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testPricingConfig(policy string) *config.PricingConfig {
	return &config.PricingConfig{
		Policy: policy,
		RatesPerKM: map[string]float64{
			"bike": 8,
			"auto": 12,
			"car":  15,
		},
		FallbackBase:    30,
		FallbackPerKM:   12,
		MinSurge:        1.0,
		MaxSurge:        2.5,
		ZoneCellSizeDeg: 0.01,
		ZoneWindow:      time.Hour,
		SignalTimeout:   time.Second,
		ProviderTimeout: 500 * time.Millisecond,
	}
}

func neutralSignals() SignalSet {
	return SignalSet{
		Weather: signals.NewStatic(signals.NameWeather, signals.NeutralWeather),
		Traffic: signals.NewStatic(signals.NameTraffic, signals.NeutralTraffic),
		Demand:  signals.NewStatic(signals.NameDemand, signals.NeutralDemand),
		Time:    signals.NewStatic(signals.NameTime, signals.NeutralTime),
	}
}

func fixedSignals(weather, traffic, demand, timeOfDay float64) SignalSet {
	return SignalSet{
		Weather: signals.NewStatic(signals.NameWeather, signals.Reading{Label: signals.WeatherRain, Multiplier: weather}),
		Traffic: signals.NewStatic(signals.NameTraffic, signals.Reading{Label: signals.TrafficHeavy, Multiplier: traffic}),
		Demand:  signals.NewStatic(signals.NameDemand, signals.Reading{Label: signals.DemandHigh, Multiplier: demand}),
		Time:    signals.NewStatic(signals.NameTime, signals.Reading{Label: signals.TimeEveningPeak, Multiplier: timeOfDay}),
	}
}

func testZones(t *testing.T) *utils.ZoneIndex {
	t.Helper()
	zones, err := utils.NewZoneIndex(0.01)
	if err != nil {
		t.Fatalf("NewZoneIndex() error = %v", err)
	}
	return zones
}

func newTestPricing(t *testing.T, cfg *config.PricingConfig, set SignalSet, quotes interfaces.PriceQuoteRepository) *pricingService {
	t.Helper()
	svc := NewPricingService(cfg, "INR", testZones(t), set, quotes, metrics.New(prometheus.NewRegistry()), logger.NewNop()).(*pricingService)
	svc.now = func() time.Time { return testNow }
	return svc
}

// clock is a settable time source shared by the services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type rideFixture struct {
	rides   *memory.RideRepository
	quotes  *memory.PriceQuoteRepository
	demand  DemandTracker
	metrics *metrics.Metrics
	clock   *clock
	service *rideService
}

func newRideFixture(t *testing.T, options RideOptions) *rideFixture {
	t.Helper()

	zones := testZones(t)
	clk := &clock{now: testNow}
	m := metrics.New(prometheus.NewRegistry())
	quotes := memory.NewPriceQuoteRepository(0)
	rides := memory.NewRideRepository()
	demand := NewMemoryDemandTracker(zones, time.Hour)

	pricing := NewPricingService(testPricingConfig("upfront"), "INR", zones, neutralSignals(), quotes, m, logger.NewNop()).(*pricingService)
	pricing.now = clk.Now

	svc := NewRideService(rides, pricing, zones, demand, nil, options, m, logger.NewNop()).(*rideService)
	svc.now = clk.Now

	return &rideFixture{
		rides:   rides,
		quotes:  quotes,
		demand:  demand,
		metrics: m,
		clock:   clk,
		service: svc,
	}
}

var (
	bangalorePickup = models.Location{Lat: 12.9716, Lng: 77.5946, Address: "MG Road"}
	bangaloreDrop   = models.Location{Lat: 12.9352, Lng: 77.6245, Address: "Koramangala"}

	passenger      = models.Principal{ID: "passenger-1", Role: models.RolePassenger}
	otherPassenger = models.Principal{ID: "passenger-2", Role: models.RolePassenger}
	bikeDriver     = models.Principal{ID: "driver-bike-1", Role: models.RoleDriver, VehicleType: models.VehicleTypeBike, Name: "Ravi"}
	bikeDriver2    = models.Principal{ID: "driver-bike-2", Role: models.RoleDriver, VehicleType: models.VehicleTypeBike}
	carDriver      = models.Principal{ID: "driver-car-1", Role: models.RoleDriver, VehicleType: models.VehicleTypeCar}
	system         = models.Principal{ID: "payments", Role: models.RoleSystem}
)

func (f *rideFixture) createBikeRide(t *testing.T) *models.Ride {
	t.Helper()
	ride, err := f.service.Create(context.Background(), passenger, CreateRideInput{
		Pickup:      bangalorePickup,
		Drop:        bangaloreDrop,
		VehicleType: "bike",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return ride
}

// acceptedWithOTP walks a fresh ride to accepted with OTP 1234 set.
func (f *rideFixture) acceptedWithOTP(t *testing.T) *models.Ride {
	t.Helper()
	ctx := context.Background()
	ride := f.createBikeRide(t)
	if _, err := f.service.Accept(ctx, bikeDriver, ride.ID.Hex()); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	ride, err := f.service.SetOTP(ctx, passenger, ride.ID.Hex(), "1234")
	if err != nil {
		t.Fatalf("SetOTP() error = %v", err)
	}
	return ride
}

// recordingBus captures published events in order.
type recordingBus struct {
	mu        sync.Mutex
	published []*models.DispatchEvent
	failWith  error
}

func (b *recordingBus) Publish(ctx context.Context, topic string, event *models.DispatchEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	e := *event
	e.Topic = topic
	b.published = append(b.published, &e)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, patterns ...string) (<-chan *models.DispatchEvent, error) {
	return nil, ErrBusClosed
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

// topics lists "type@topic" for every event published since the last reset.
func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, string(e.Type)+"@"+e.Topic)
	}
	return out
}

func (b *recordingBus) last() *models.DispatchEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		return nil
	}
	return b.published[len(b.published)-1]
}

type recordingPayments struct {
	mu     sync.Mutex
	events []events.PaymentReady
}

func (p *recordingPayments) PublishPaymentReady(ctx context.Context, event events.PaymentReady) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPayments) Close() error { return nil }
