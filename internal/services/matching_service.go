package services

import (
	"context"
	"errors"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/utils"
	"ridematch/pkg/events"
	"ridematch/pkg/logger"
	"ridematch/pkg/metrics"
)

// MatchingService is the entry point used by the HTTP and WebSocket layers.
// It runs each ledger operation and then publishes the resulting events.
type MatchingService interface {
	CreateRide(ctx context.Context, passenger models.Principal, input CreateRideInput) (*models.Ride, error)
	AcceptRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	RejectRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	SetRideOTP(ctx context.Context, passenger models.Principal, rideID, otp string) (*models.Ride, error)
	VerifyRideOTP(ctx context.Context, driver models.Principal, rideID, otp string) (*models.Ride, error)
	CompleteRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	UpdateRideDetails(ctx context.Context, passenger models.Principal, rideID string, input UpdateRideInput) (*models.Ride, error)
	CancelRide(ctx context.Context, principal models.Principal, rideID, reason string) (*models.Ride, error)
	UpdatePaymentStatus(ctx context.Context, principal models.Principal, rideID string, status models.PaymentStatus) (*models.Ride, error)

	GetPendingRides(ctx context.Context, driver models.Principal, limit int) ([]*models.Ride, error)
	GetRideHistory(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	GetRideByID(ctx context.Context, principal models.Principal, rideID string) (*models.Ride, error)
	QuoteFare(ctx context.Context, req QuoteRequest) (*models.PriceQuote, error)
	UpdateDriverAvailability(ctx context.Context, driver models.Principal, availability models.DriverAvailability) error

	// CanJoinRideTopic decides whether principal may subscribe to ride:<id>.
	CanJoinRideTopic(ctx context.Context, principal models.Principal, rideID string) bool
	// RunPendingExpiry sweeps stale pending rides every interval until ctx
	// is done.
	RunPendingExpiry(ctx context.Context, interval time.Duration)
}

type matchingService struct {
	rides          RideService
	pricing        PricingService
	demand         DemandTracker
	bus            DispatchBus
	payments       events.PaymentPublisher
	publishTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *logger.Logger
	now            func() time.Time
}

func NewMatchingService(
	rides RideService,
	pricing PricingService,
	demand DemandTracker,
	bus DispatchBus,
	payments events.PaymentPublisher,
	publishTimeout time.Duration,
	m *metrics.Metrics,
	log *logger.Logger,
) MatchingService {
	if payments == nil {
		payments = events.NopPaymentPublisher{}
	}
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}

	return &matchingService{
		rides:          rides,
		pricing:        pricing,
		demand:         demand,
		bus:            bus,
		payments:       payments,
		publishTimeout: publishTimeout,
		metrics:        m,
		logger:         log.WithComponent("matching"),
		now:            time.Now,
	}
}

func (s *matchingService) CreateRide(ctx context.Context, passenger models.Principal, input CreateRideInput) (*models.Ride, error) {
	ride, err := s.rides.Create(ctx, passenger, input)
	if err != nil {
		return nil, err
	}

	// untyped rides are only discoverable through the pending feed
	if ride.VehicleType.IsSpecified() {
		s.publish(ctx, ride.VehicleType.Topic(), s.rideEvent(models.EventRideRequested, ride))
	}
	return ride, nil
}

func (s *matchingService) AcceptRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	ride, err := s.rides.Accept(ctx, driver, rideID)
	if err != nil {
		return nil, err
	}

	accepted := s.rideEvent(models.EventRideAccepted, ride)
	accepted.Driver = driver.DriverProfile()
	s.publish(ctx, models.UserTopic(ride.PassengerID), accepted)

	if ride.VehicleType.IsSpecified() {
		s.publish(ctx, ride.VehicleType.Topic(), s.idEvent(models.EventRideLocked, ride))
	}
	return ride, nil
}

func (s *matchingService) RejectRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	ride, err := s.rides.Reject(ctx, driver, rideID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.UserTopic(driver.ID), s.idEvent(models.EventRideRejected, ride))
	return ride, nil
}

func (s *matchingService) SetRideOTP(ctx context.Context, passenger models.Principal, rideID, otp string) (*models.Ride, error) {
	ride, err := s.rides.SetOTP(ctx, passenger, rideID, otp)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.RideTopic(rideID), s.rideEvent(models.EventRideUpdated, ride))
	return ride, nil
}

func (s *matchingService) VerifyRideOTP(ctx context.Context, driver models.Principal, rideID, otp string) (*models.Ride, error) {
	ride, err := s.rides.VerifyOTP(ctx, driver, rideID, otp)
	if err != nil {
		return nil, err
	}

	event := s.rideEvent(models.EventRideStarted, ride)
	s.publish(ctx, models.RideTopic(rideID), event)
	s.publish(ctx, models.UserTopic(ride.PassengerID), event)
	return ride, nil
}

func (s *matchingService) CompleteRide(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	ride, err := s.rides.Complete(ctx, driver, rideID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.RideTopic(rideID), s.rideEvent(models.EventRideCompleted, ride))
	s.publish(ctx, models.UserTopic(ride.PassengerID), s.rideEvent(models.EventPaymentReady, ride))
	s.publishPaymentReady(ctx, ride)
	return ride, nil
}

func (s *matchingService) UpdateRideDetails(ctx context.Context, passenger models.Principal, rideID string, input UpdateRideInput) (*models.Ride, error) {
	ride, err := s.rides.UpdateDetails(ctx, passenger, rideID, input)
	if err != nil {
		return nil, err
	}

	event := s.rideEvent(models.EventRideUpdated, ride)
	s.publish(ctx, models.RideTopic(rideID), event)
	if ride.Status == models.RideStatusPending && ride.VehicleType.IsSpecified() {
		s.publish(ctx, ride.VehicleType.Topic(), event)
	}
	return ride, nil
}

func (s *matchingService) CancelRide(ctx context.Context, principal models.Principal, rideID, reason string) (*models.Ride, error) {
	ride, previous, err := s.rides.Cancel(ctx, principal, rideID, reason)
	if err != nil {
		return nil, err
	}

	s.announceCancellation(ctx, ride, previous)
	return ride, nil
}

func (s *matchingService) UpdatePaymentStatus(ctx context.Context, principal models.Principal, rideID string, status models.PaymentStatus) (*models.Ride, error) {
	ride, err := s.rides.UpdatePaymentStatus(ctx, principal, rideID, status)
	if err != nil {
		return nil, err
	}

	event := s.rideEvent(models.EventPaymentStatusChanged, ride)
	s.publish(ctx, models.UserTopic(ride.PassengerID), event)
	if ride.DriverID != nil {
		s.publish(ctx, models.UserTopic(*ride.DriverID), event)
	}
	return ride, nil
}

func (s *matchingService) GetPendingRides(ctx context.Context, driver models.Principal, limit int) ([]*models.Ride, error) {
	return s.rides.GetPending(ctx, driver, limit)
}

func (s *matchingService) GetRideHistory(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return s.rides.GetHistory(ctx, principal, params)
}

func (s *matchingService) GetRideByID(ctx context.Context, principal models.Principal, rideID string) (*models.Ride, error) {
	return s.rides.GetByID(ctx, principal, rideID)
}

func (s *matchingService) QuoteFare(ctx context.Context, req QuoteRequest) (*models.PriceQuote, error) {
	return s.pricing.Quote(ctx, req)
}

func (s *matchingService) UpdateDriverAvailability(ctx context.Context, driver models.Principal, availability models.DriverAvailability) error {
	if !driver.IsDriver() {
		return forbidden("only drivers report availability")
	}
	if availability.Online && !utils.IsValidCoordinates(availability.Lat, availability.Lng) {
		return validationError("location is required when going online")
	}
	if s.demand == nil {
		return nil
	}

	availability.DriverID = driver.ID
	availability.VehicleType = driver.VehicleType
	return s.demand.RecordAvailability(ctx, availability, s.now())
}

func (s *matchingService) CanJoinRideTopic(ctx context.Context, principal models.Principal, rideID string) bool {
	_, err := s.rides.GetByID(ctx, principal, rideID)
	return err == nil
}

func (s *matchingService) RunPendingExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expirePending(ctx)
		}
	}
}

func (s *matchingService) expirePending(ctx context.Context) {
	expired, err := s.rides.ExpirePending(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Error("Pending ride expiry sweep failed")
	}
	for _, ride := range expired {
		s.announceCancellation(ctx, ride, models.RideStatusPending)
	}
	if len(expired) > 0 {
		s.logger.WithField("count", len(expired)).Info("Expired stale pending rides")
	}
}

func (s *matchingService) announceCancellation(ctx context.Context, ride *models.Ride, previous models.RideStatus) {
	event := s.rideEvent(models.EventRideCancelled, ride)
	s.publish(ctx, models.RideTopic(ride.ID.Hex()), event)
	s.publish(ctx, models.UserTopic(ride.PassengerID), event)

	if previous == models.RideStatusPending && ride.VehicleType.IsSpecified() {
		s.publish(ctx, ride.VehicleType.Topic(), s.idEvent(models.EventRideWithdrawn, ride))
	}
}

func (s *matchingService) publishPaymentReady(ctx context.Context, ride *models.Ride) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	event := events.PaymentReady{
		RideID:        ride.ID.Hex(),
		PassengerID:   ride.PassengerID,
		Amount:        ride.FinalFare,
		Currency:      ride.Currency,
		PaymentStatus: string(ride.PaymentStatus),
	}
	if ride.DriverID != nil {
		event.DriverID = *ride.DriverID
	}
	if ride.CompletedAt != nil {
		event.CompletedAt = *ride.CompletedAt
	}

	if err := s.payments.PublishPaymentReady(ctx, event); err != nil {
		s.metrics.DispatchFailures.WithLabelValues("payment_ready_kafka").Inc()
		s.logger.WithError(err).WithRideID(event.RideID).Warn("Failed to emit payment-ready signal")
	}
}

// publish never fails the caller; the ledger write has already happened.
func (s *matchingService) publish(ctx context.Context, topic string, event *models.DispatchEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.bus.Publish(ctx, topic, event); err != nil {
		s.metrics.DispatchFailures.WithLabelValues(string(event.Type)).Inc()
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"topic":   topic,
			"event":   event.Type,
			"ride_id": event.RideID,
		}).Warn("Failed to publish dispatch event")
		return
	}
	s.metrics.DispatchPublished.WithLabelValues(string(event.Type)).Inc()
}

func (s *matchingService) rideEvent(eventType models.DispatchEventType, ride *models.Ride) *models.DispatchEvent {
	event := &models.DispatchEvent{
		Type:      eventType,
		RideID:    ride.ID.Hex(),
		Ride:      ride,
		Timestamp: s.now(),
	}
	if ride.Status == models.RideStatusPending && len(ride.RejectedBy) > 0 {
		event.ExcludedDrivers = append([]string(nil), ride.RejectedBy...)
	}
	return event
}

func (s *matchingService) idEvent(eventType models.DispatchEventType, ride *models.Ride) *models.DispatchEvent {
	return &models.DispatchEvent{
		Type:      eventType,
		RideID:    ride.ID.Hex(),
		Timestamp: s.now(),
	}
}
