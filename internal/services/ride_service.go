package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/utils"
	"ridematch/pkg/logger"
	"ridematch/pkg/maps"
	"ridematch/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateRideInput struct {
	Pickup      models.Location
	Drop        models.Location
	DistanceKM  *float64
	VehicleType string
	RatePerKM   float64
}

// UpdateRideInput holds optional edits. Address-only changes keep the
// stored coordinates and fare.
type UpdateRideInput struct {
	Pickup        *models.Location
	Drop          *models.Location
	PickupAddress *string
	DropAddress   *string
}

type RideOptions struct {
	OTPLength      int
	OTPExpiry      time.Duration
	OTPMaxAttempts int
	PendingTTL     time.Duration
	PendingLimit   int
	Currency       string
}

// Geocoder fills in missing addresses. Optional.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*maps.GeocodeResponse, error)
}

type RideService interface {
	Create(ctx context.Context, passenger models.Principal, input CreateRideInput) (*models.Ride, error)
	Accept(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	Reject(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	SetOTP(ctx context.Context, passenger models.Principal, rideID, otp string) (*models.Ride, error)
	VerifyOTP(ctx context.Context, driver models.Principal, rideID, otp string) (*models.Ride, error)
	Complete(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error)
	UpdateDetails(ctx context.Context, passenger models.Principal, rideID string, input UpdateRideInput) (*models.Ride, error)
	// Cancel also returns the status the ride had before cancellation.
	Cancel(ctx context.Context, principal models.Principal, rideID, reason string) (*models.Ride, models.RideStatus, error)
	ExpirePending(ctx context.Context) ([]*models.Ride, error)
	UpdatePaymentStatus(ctx context.Context, principal models.Principal, rideID string, status models.PaymentStatus) (*models.Ride, error)

	GetPending(ctx context.Context, driver models.Principal, limit int) ([]*models.Ride, error)
	GetHistory(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	GetByID(ctx context.Context, principal models.Principal, rideID string) (*models.Ride, error)
}

type rideService struct {
	rides    interfaces.RideRepository
	pricing  PricingService
	zones    *utils.ZoneIndex
	demand   DemandTracker
	geocoder Geocoder
	options  RideOptions
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewRideService(
	rides interfaces.RideRepository,
	pricing PricingService,
	zones *utils.ZoneIndex,
	demand DemandTracker,
	geocoder Geocoder,
	options RideOptions,
	m *metrics.Metrics,
	log *logger.Logger,
) RideService {
	if options.OTPLength <= 0 {
		options.OTPLength = utils.RideOTPLength
	}
	if options.PendingLimit <= 0 {
		options.PendingLimit = utils.PendingRidesLimit
	}
	if options.Currency == "" {
		options.Currency = utils.DefaultCurrency
	}

	return &rideService{
		rides:    rides,
		pricing:  pricing,
		zones:    zones,
		demand:   demand,
		geocoder: geocoder,
		options:  options,
		metrics:  m,
		logger:   log.WithComponent("ride_ledger"),
		now:      time.Now,
	}
}

func (s *rideService) Create(ctx context.Context, passenger models.Principal, input CreateRideInput) (*models.Ride, error) {
	if !passenger.IsPassenger() {
		return nil, forbidden("only passengers can request rides")
	}
	if passenger.ID == "" {
		return nil, validationError("passenger id is required")
	}
	if !utils.IsValidCoordinates(input.Pickup.Lat, input.Pickup.Lng) {
		return nil, validationError("pickup coordinates are invalid")
	}
	if !utils.IsValidCoordinates(input.Drop.Lat, input.Drop.Lng) {
		return nil, validationError("drop coordinates are invalid")
	}

	vehicle, err := models.ParseVehicleType(input.VehicleType)
	if err != nil {
		return nil, validationError("%v", err)
	}

	distance, err := resolveDistance(input.Pickup, input.Drop, input.DistanceKM)
	if err != nil {
		return nil, err
	}

	quote, err := s.pricing.Quote(ctx, QuoteRequest{
		Lat:               input.Pickup.Lat,
		Lng:               input.Pickup.Lng,
		DistanceKM:        distance,
		VehicleType:       string(vehicle),
		ExplicitRatePerKM: input.RatePerKM,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	pickup := s.withAddress(ctx, input.Pickup)
	drop := s.withAddress(ctx, input.Drop)

	ride := &models.Ride{
		PassengerID:    passenger.ID,
		Pickup:         pickup,
		Drop:           drop,
		PickupZoneID:   s.zones.ZoneOf(pickup.Lat, pickup.Lng),
		DropZoneID:     s.zones.ZoneOf(drop.Lat, drop.Lng),
		DistanceKM:     distance,
		BaseFare:       quote.BasePrice,
		FinalFare:      quote.FinalFare,
		Currency:       quote.Currency,
		PricingPolicy:  quote.Policy,
		PricingFactors: quote.Factors,
		ZoneAdjustment: quote.ZoneAdjustment,
		VehicleType:    vehicle,
		Status:         models.RideStatusPending,
		RejectedBy:     []string{},
		PaymentStatus:  models.PaymentStatusUnpaid,
		RequestedAt:    now,
		Events:         []models.RideEvent{{Type: models.RideEventCreated, ActorID: passenger.ID, At: now}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ride.Currency == "" {
		ride.Currency = s.options.Currency
	}

	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}

	s.metrics.RidesCreated.WithLabelValues(vehicle.String()).Inc()
	s.logger.LogRideEvent(ride.ID.Hex(), models.RideEventCreated, map[string]interface{}{
		"passenger_id": passenger.ID,
		"vehicle_type": vehicle.String(),
		"distance_km":  distance,
		"final_fare":   ride.FinalFare,
	})

	if s.demand != nil {
		if err := s.demand.RecordRequest(ctx, passenger.ID, pickup.Lat, pickup.Lng, now); err != nil {
			s.logger.WithError(err).Warn("Failed to record demand sample")
		}
	}

	return ride, nil
}

func (s *rideService) Accept(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	if !driver.IsDriver() {
		return nil, forbidden("only drivers can accept rides")
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.VehicleType.IsSpecified() && !ride.VehicleType.Matches(driver.VehicleType) {
		return nil, fmt.Errorf("%w: ride requests %s, driver operates %s", ErrVehicleMismatch, ride.VehicleType, driver.VehicleType)
	}

	accepted, err := s.rides.Accept(ctx, id, driver.ID, s.now())
	if err != nil {
		if errors.Is(err, interfaces.ErrPreconditionFailed) || errors.Is(err, interfaces.ErrNotFound) {
			// losing the race is an expected outcome
			s.metrics.AcceptConflicts.Inc()
			s.logger.WithRideID(rideID).WithUserID(driver.ID).Debug("Accept lost to another driver")
			return nil, ErrRideTaken
		}
		return nil, fmt.Errorf("failed to accept ride: %w", err)
	}

	s.recordTransition(accepted, models.RideEventAccepted, driver.ID)
	return accepted, nil
}

func (s *rideService) Reject(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	if !driver.IsDriver() {
		return nil, forbidden("only drivers can reject rides")
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusPending {
		return nil, invalidState("ride is %s, only pending rides can be rejected", ride.Status)
	}

	rejected, err := s.rides.AddRejection(ctx, id, driver.ID, s.now())
	if err != nil {
		return nil, s.mapWriteError(err, "reject")
	}

	s.logger.LogRideEvent(rideID, models.RideEventRejected, map[string]interface{}{"driver_id": driver.ID})
	return rejected, nil
}

func (s *rideService) SetOTP(ctx context.Context, passenger models.Principal, rideID, otp string) (*models.Ride, error) {
	if !passenger.IsPassenger() {
		return nil, forbidden("only the passenger can set the ride OTP")
	}
	otp = strings.TrimSpace(otp)
	if !isNumeric(otp, s.options.OTPLength) {
		return nil, validationError("OTP must be %d digits", s.options.OTPLength)
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.PassengerID != passenger.ID {
		return nil, forbidden("only the ride owner can set the OTP")
	}
	if !ride.Status.IsEditable() {
		return nil, invalidState("ride is %s, OTP can only be set before the trip starts", ride.Status)
	}

	updated, err := s.rides.SetOTP(ctx, id, passenger.ID, otp, s.now())
	if err != nil {
		return nil, s.mapWriteError(err, "set OTP")
	}

	s.logger.LogRideEvent(rideID, models.RideEventOTPSet, nil)
	return updated, nil
}

func (s *rideService) VerifyOTP(ctx context.Context, driver models.Principal, rideID, otp string) (*models.Ride, error) {
	if !driver.IsDriver() {
		return nil, forbidden("only drivers can start rides")
	}
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, validationError("OTP is required")
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusAccepted {
		return nil, invalidState("ride is %s, only accepted rides can start", ride.Status)
	}
	if !ride.HasDriver(driver.ID) {
		return nil, forbidden("ride is assigned to another driver")
	}
	if !ride.HasOTP() {
		return nil, ErrOTPNotSet
	}

	now := s.now()
	if s.options.OTPExpiry > 0 && ride.OTPSetAt != nil && now.Sub(*ride.OTPSetAt) > s.options.OTPExpiry {
		return nil, ErrOTPExpired
	}
	if s.options.OTPMaxAttempts > 0 && ride.OTPAttempts >= s.options.OTPMaxAttempts {
		return nil, ErrOTPLocked
	}

	if subtle.ConstantTimeCompare([]byte(ride.OTP), []byte(otp)) != 1 {
		if _, err := s.rides.RecordOTPFailure(ctx, id, driver.ID, now); err != nil {
			s.logger.WithError(err).WithRideID(rideID).Warn("Failed to record OTP attempt")
		}
		return nil, ErrInvalidOTP
	}

	started, err := s.rides.StartRide(ctx, id, driver.ID, otp, now)
	if err != nil {
		return nil, s.mapWriteError(err, "start")
	}

	s.recordTransition(started, models.RideEventStarted, driver.ID)
	return started, nil
}

func (s *rideService) Complete(ctx context.Context, driver models.Principal, rideID string) (*models.Ride, error) {
	if !driver.IsDriver() {
		return nil, forbidden("only drivers can complete rides")
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusInProgress {
		return nil, invalidState("ride is %s, only in-progress rides can be completed", ride.Status)
	}
	if !ride.HasDriver(driver.ID) {
		return nil, forbidden("ride is assigned to another driver")
	}

	completed, err := s.rides.Complete(ctx, id, driver.ID, s.now())
	if err != nil {
		return nil, s.mapWriteError(err, "complete")
	}

	s.recordTransition(completed, models.RideEventCompleted, driver.ID)
	return completed, nil
}

func (s *rideService) UpdateDetails(ctx context.Context, passenger models.Principal, rideID string, input UpdateRideInput) (*models.Ride, error) {
	if !passenger.IsPassenger() {
		return nil, forbidden("only the passenger can edit a ride")
	}
	if input.Pickup == nil && input.Drop == nil && input.PickupAddress == nil && input.DropAddress == nil {
		return nil, validationError("no changes supplied")
	}
	if input.Pickup != nil && !utils.IsValidCoordinates(input.Pickup.Lat, input.Pickup.Lng) {
		return nil, validationError("pickup coordinates are invalid")
	}
	if input.Drop != nil && !utils.IsValidCoordinates(input.Drop.Lat, input.Drop.Lng) {
		return nil, validationError("drop coordinates are invalid")
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.PassengerID != passenger.ID {
		return nil, forbidden("only the ride owner can edit it")
	}
	if !ride.Status.IsEditable() {
		return nil, invalidState("ride is %s, details are frozen", ride.Status)
	}

	pickup, drop := ride.Pickup, ride.Drop
	moved := false
	if input.Pickup != nil {
		moved = moved || input.Pickup.Lat != pickup.Lat || input.Pickup.Lng != pickup.Lng
		pickup = *input.Pickup
	}
	if input.Drop != nil {
		moved = moved || input.Drop.Lat != drop.Lat || input.Drop.Lng != drop.Lng
		drop = *input.Drop
	}
	if input.PickupAddress != nil {
		pickup.Address = strings.TrimSpace(*input.PickupAddress)
	}
	if input.DropAddress != nil {
		drop.Address = strings.TrimSpace(*input.DropAddress)
	}
	if input.Pickup != nil {
		pickup = s.withAddress(ctx, pickup)
	}
	if input.Drop != nil {
		drop = s.withAddress(ctx, drop)
	}

	change := interfaces.RideDetailsChange{Pickup: &pickup, Drop: &drop}

	if moved {
		distance, err := resolveDistance(pickup, drop, nil)
		if err != nil {
			return nil, err
		}
		quote, err := s.pricing.Quote(ctx, QuoteRequest{
			Lat:         pickup.Lat,
			Lng:         pickup.Lng,
			DistanceKM:  distance,
			VehicleType: string(ride.VehicleType),
		})
		if err != nil {
			return nil, err
		}

		pickupZone := s.zones.ZoneOf(pickup.Lat, pickup.Lng)
		dropZone := s.zones.ZoneOf(drop.Lat, drop.Lng)
		change.PickupZoneID = &pickupZone
		change.DropZoneID = &dropZone
		change.DistanceKM = &distance
		change.BaseFare = &quote.BasePrice
		change.FinalFare = &quote.FinalFare
		change.Factors = &quote.Factors
		change.ZoneAdjustment = &quote.ZoneAdjustment
	}

	updated, err := s.rides.UpdateDetails(ctx, id, passenger.ID, change, s.now())
	if err != nil {
		return nil, s.mapWriteError(err, "update")
	}

	s.logger.LogRideEvent(rideID, models.RideEventDetailsUpdated, map[string]interface{}{"repriced": moved})
	return updated, nil
}

func (s *rideService) Cancel(ctx context.Context, principal models.Principal, rideID, reason string) (*models.Ride, models.RideStatus, error) {
	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, "", err
	}

	switch {
	case principal.IsSystem():
	case principal.IsPassenger() && ride.PassengerID == principal.ID:
	case principal.IsDriver() && ride.HasDriver(principal.ID):
	default:
		return nil, "", forbidden("only the passenger or the assigned driver can cancel")
	}

	if !models.CanTransition(ride.Status, models.RideStatusCancelled) {
		return nil, "", invalidState("ride is %s and can no longer be cancelled", ride.Status)
	}

	event := models.RideEvent{
		Type:    models.RideEventCancelled,
		ActorID: principal.ID,
		Detail:  strings.TrimSpace(reason),
		At:      s.now(),
	}
	cancelled, err := s.rides.Cancel(ctx, id, []models.RideStatus{ride.Status}, event)
	if err != nil {
		return nil, "", s.mapWriteError(err, "cancel")
	}

	s.recordTransition(cancelled, models.RideEventCancelled, principal.ID)
	return cancelled, ride.Status, nil
}

// ExpirePending cancels pending rides older than the configured TTL. Rides
// claimed while the sweep runs are skipped.
func (s *rideService) ExpirePending(ctx context.Context) ([]*models.Ride, error) {
	if s.options.PendingTTL <= 0 {
		return nil, nil
	}

	now := s.now()
	stale, err := s.rides.ListPendingBefore(ctx, now.Add(-s.options.PendingTTL), 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale rides: %w", err)
	}

	expired := make([]*models.Ride, 0, len(stale))
	for _, ride := range stale {
		event := models.RideEvent{
			Type:    models.RideEventExpired,
			ActorID: string(models.RoleSystem),
			Detail:  "no driver accepted in time",
			At:      now,
		}
		cancelled, err := s.rides.Cancel(ctx, ride.ID, []models.RideStatus{models.RideStatusPending}, event)
		if err != nil {
			if errors.Is(err, interfaces.ErrPreconditionFailed) {
				continue
			}
			return expired, fmt.Errorf("failed to expire ride %s: %w", ride.ID.Hex(), err)
		}
		s.metrics.RidesExpired.Inc()
		s.recordTransition(cancelled, models.RideEventExpired, event.ActorID)
		expired = append(expired, cancelled)
	}

	return expired, nil
}

func (s *rideService) UpdatePaymentStatus(ctx context.Context, principal models.Principal, rideID string, status models.PaymentStatus) (*models.Ride, error) {
	if !principal.IsSystem() {
		return nil, forbidden("payment status is written by the payment service")
	}
	if !status.IsValid() {
		return nil, validationError("unknown payment status %q", status)
	}

	id, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusCompleted {
		return nil, invalidState("ride is %s, payment applies to completed rides", ride.Status)
	}

	updated, err := s.rides.UpdatePaymentStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, s.mapWriteError(err, "record payment for")
	}

	s.logger.LogRideEvent(rideID, models.RideEventPaymentUpdated, map[string]interface{}{"payment_status": status})
	return updated, nil
}

func (s *rideService) GetPending(ctx context.Context, driver models.Principal, limit int) ([]*models.Ride, error) {
	if !driver.IsDriver() {
		return nil, forbidden("only drivers can list pending rides")
	}
	if limit <= 0 || limit > s.options.PendingLimit {
		limit = s.options.PendingLimit
	}

	rides, err := s.rides.ListPending(ctx, interfaces.PendingFilter{
		VehicleTypes:  models.EligibleRideTypes(driver.VehicleType),
		ExcludeDriver: driver.ID,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rides: %w", err)
	}
	return rides, nil
}

func (s *rideService) GetHistory(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	if params == nil {
		params = utils.DefaultPagination()
	}
	params.Normalize()

	var (
		rides []*models.Ride
		total int64
		err   error
	)
	switch principal.Role {
	case models.RolePassenger:
		rides, total, err = s.rides.ListByPassenger(ctx, principal.ID, params)
	case models.RoleDriver:
		rides, total, err = s.rides.ListByDriver(ctx, principal.ID, params)
	default:
		return nil, 0, forbidden("ride history is available to passengers and drivers")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ride history: %w", err)
	}
	return rides, total, nil
}

func (s *rideService) GetByID(ctx context.Context, principal models.Principal, rideID string) (*models.Ride, error) {
	_, ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !CanViewRide(principal, ride) {
		return nil, forbidden("ride is not visible to this user")
	}
	return ride, nil
}

// CanViewRide allows the owner, the assigned driver, system callers, and
// any eligible driver who has not rejected the ride while it is pending.
func CanViewRide(principal models.Principal, ride *models.Ride) bool {
	switch {
	case principal.IsSystem():
		return true
	case principal.IsPassenger():
		return ride.PassengerID == principal.ID
	case principal.IsDriver():
		if ride.HasDriver(principal.ID) {
			return true
		}
		return ride.Status == models.RideStatusPending &&
			ride.VehicleType.Matches(principal.VehicleType) &&
			!ride.IsExcluded(principal.ID)
	}
	return false
}

func (s *rideService) load(ctx context.Context, rideID string) (primitive.ObjectID, *models.Ride, error) {
	id, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return id, nil, validationError("invalid ride id %q", rideID)
	}

	ride, err := s.rides.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return id, nil, ErrRideNotFound
		}
		return id, nil, fmt.Errorf("failed to load ride: %w", err)
	}
	return id, ride, nil
}

// mapWriteError translates a conditional update miss that slipped past the
// pre-read, meaning the ride changed concurrently.
func (s *rideService) mapWriteError(err error, action string) error {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return ErrRideNotFound
	case errors.Is(err, interfaces.ErrPreconditionFailed):
		return invalidState("ride changed concurrently (%s)", action)
	default:
		return fmt.Errorf("failed to %s ride: %w", action, err)
	}
}

func (s *rideService) recordTransition(ride *models.Ride, event, actorID string) {
	s.metrics.RideTransitions.WithLabelValues(string(ride.Status)).Inc()
	s.logger.LogRideEvent(ride.ID.Hex(), event, map[string]interface{}{
		"actor_id": actorID,
		"status":   ride.Status,
	})
}

func (s *rideService) withAddress(ctx context.Context, loc models.Location) models.Location {
	loc.Address = strings.TrimSpace(loc.Address)
	if loc.Address != "" || s.geocoder == nil {
		return loc
	}

	resp, err := s.geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lng)
	if err != nil {
		s.logger.WithError(err).Debug("Reverse geocoding failed")
		return loc
	}
	loc.Address = resp.FirstAddress()
	return loc
}

// resolveDistance validates a supplied distance or derives one from the
// great-circle distance between the two points.
func resolveDistance(pickup, drop models.Location, supplied *float64) (float64, error) {
	var distance float64
	if supplied != nil {
		distance = *supplied
	} else {
		distance = utils.RoundTo(utils.CalculateDistance(pickup.Lat, pickup.Lng, drop.Lat, drop.Lng), 2)
	}

	if !utils.IsFinite(distance) || distance <= 0 {
		return 0, validationError("distance must be positive")
	}
	if distance > utils.MaxRideDistance {
		return 0, validationError("distance exceeds %.0f km", utils.MaxRideDistance)
	}
	return distance, nil
}

func isNumeric(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
