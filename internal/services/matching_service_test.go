package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/utils"
	"ridematch/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type matchingFixture struct {
	*rideFixture
	bus      *recordingBus
	payments *recordingPayments
	matching *matchingService
}

func newMatchingFixture(t *testing.T, options RideOptions) *matchingFixture {
	t.Helper()
	rf := newRideFixture(t, options)
	bus := &recordingBus{}
	payments := &recordingPayments{}

	m := NewMatchingService(rf.service, rf.service.pricing, rf.demand, bus, payments, time.Second, rf.metrics, logger.NewNop()).(*matchingService)
	m.now = rf.clock.Now

	return &matchingFixture{rideFixture: rf, bus: bus, payments: payments, matching: m}
}

func assertTopics(t *testing.T, bus *recordingBus, want ...string) {
	t.Helper()
	got := bus.topics()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("published %v, want %v", got, want)
	}
	bus.reset()
}

// TestBangaloreRideLifecycle walks one bike ride from request to payment.
func TestBangaloreRideLifecycle(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	ride, err := f.matching.CreateRide(ctx, passenger, CreateRideInput{
		Pickup:      bangalorePickup,
		Drop:        bangaloreDrop,
		VehicleType: "bike",
	})
	if err != nil {
		t.Fatalf("CreateRide() error = %v", err)
	}
	id := ride.ID.Hex()

	distance := utils.RoundTo(utils.CalculateDistance(12.9716, 77.5946, 12.9352, 77.6245), 2)
	if ride.DistanceKM != distance || ride.FinalFare != utils.RoundCurrency(distance*8) {
		t.Fatalf("ride distance=%v fare=%v, want %v and %v", ride.DistanceKM, ride.FinalFare, distance, utils.RoundCurrency(distance*8))
	}
	if ride.DistanceKM < 5 || ride.DistanceKM > 5.5 {
		t.Errorf("DistanceKM = %v, want roughly 5.2", ride.DistanceKM)
	}
	assertTopics(t, f.bus, "ride_requested@vehicle:bike")

	if _, err := f.matching.AcceptRide(ctx, carDriver, id); !errors.Is(err, ErrVehicleMismatch) {
		t.Fatalf("car driver AcceptRide() error = %v, want ErrVehicleMismatch", err)
	}
	assertTopics(t, f.bus)

	if _, err := f.matching.RejectRide(ctx, bikeDriver, id); err != nil {
		t.Fatalf("RejectRide() error = %v", err)
	}
	assertTopics(t, f.bus, "ride_rejected@user:"+bikeDriver.ID)

	pending, err := f.matching.GetPendingRides(ctx, bikeDriver2, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("GetPendingRides() = %d, %v", len(pending), err)
	}

	if _, err := f.matching.AcceptRide(ctx, bikeDriver2, id); err != nil {
		t.Fatalf("AcceptRide() error = %v", err)
	}
	accepted := f.bus.published[0]
	if accepted.Driver == nil || accepted.Driver.ID != bikeDriver2.ID || accepted.Ride == nil {
		t.Errorf("ride_accepted payload = %+v", accepted)
	}
	locked := f.bus.published[1]
	if locked.Ride != nil || locked.RideID != id {
		t.Errorf("ride_locked should carry only the ride id, got %+v", locked)
	}
	assertTopics(t, f.bus, "ride_accepted@user:"+passenger.ID, "ride_locked@vehicle:bike")

	if _, err := f.matching.AcceptRide(ctx, bikeDriver, id); !errors.Is(err, ErrRideTaken) {
		t.Fatalf("second AcceptRide() error = %v, want ErrRideTaken", err)
	}

	if _, err := f.matching.SetRideOTP(ctx, passenger, id, "4821"); err != nil {
		t.Fatalf("SetRideOTP() error = %v", err)
	}
	payload, err := json.Marshal(f.bus.last())
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if strings.Contains(string(payload), "4821") {
		t.Errorf("ride_updated leaks the OTP: %s", payload)
	}
	assertTopics(t, f.bus, "ride_updated@ride:"+id)

	if _, err := f.matching.VerifyRideOTP(ctx, bikeDriver2, id, "4821"); err != nil {
		t.Fatalf("VerifyRideOTP() error = %v", err)
	}
	assertTopics(t, f.bus, "ride_started@ride:"+id, "ride_started@user:"+passenger.ID)

	completed, err := f.matching.CompleteRide(ctx, bikeDriver2, id)
	if err != nil {
		t.Fatalf("CompleteRide() error = %v", err)
	}
	assertTopics(t, f.bus, "ride_completed@ride:"+id, "payment_ready@user:"+passenger.ID)

	if len(f.payments.events) != 1 {
		t.Fatalf("payment-ready events = %d, want 1", len(f.payments.events))
	}
	pay := f.payments.events[0]
	if pay.RideID != id || pay.DriverID != bikeDriver2.ID || pay.Amount != completed.FinalFare || pay.Currency != "INR" {
		t.Errorf("payment-ready = %+v", pay)
	}

	paid, err := f.matching.UpdatePaymentStatus(ctx, system, id, models.PaymentStatusPaid)
	if err != nil {
		t.Fatalf("UpdatePaymentStatus() error = %v", err)
	}
	if paid.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("PaymentStatus = %s", paid.PaymentStatus)
	}
	assertTopics(t, f.bus, "payment_status_changed@user:"+passenger.ID, "payment_status_changed@user:"+bikeDriver2.ID)

	history, total, err := f.matching.GetRideHistory(ctx, bikeDriver2, nil)
	if err != nil || total != 1 || history[0].Status != models.RideStatusCompleted {
		t.Errorf("driver history = %d, %v", total, err)
	}
}

func TestUntypedRideIsNotBroadcast(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	ride, err := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop})
	if err != nil {
		t.Fatalf("CreateRide() error = %v", err)
	}
	assertTopics(t, f.bus)

	if _, err := f.matching.AcceptRide(ctx, carDriver, ride.ID.Hex()); err != nil {
		t.Fatalf("AcceptRide() error = %v", err)
	}
	assertTopics(t, f.bus, "ride_accepted@user:"+passenger.ID)
}

func TestUpdateRideDetailsRebroadcastsWhilePending(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	ride, err := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	if err != nil {
		t.Fatalf("CreateRide() error = %v", err)
	}
	id := ride.ID.Hex()
	if _, err := f.matching.RejectRide(ctx, bikeDriver, id); err != nil {
		t.Fatalf("RejectRide() error = %v", err)
	}
	f.bus.reset()

	drop := models.Location{Lat: 12.9141, Lng: 77.6411}
	if _, err := f.matching.UpdateRideDetails(ctx, passenger, id, UpdateRideInput{Drop: &drop}); err != nil {
		t.Fatalf("UpdateRideDetails() error = %v", err)
	}
	broadcast := f.bus.last()
	if !reflect.DeepEqual(broadcast.ExcludedDrivers, []string{bikeDriver.ID}) {
		t.Errorf("ExcludedDrivers = %v, want the rejecting driver", broadcast.ExcludedDrivers)
	}
	assertTopics(t, f.bus, "ride_updated@ride:"+id, "ride_updated@vehicle:bike")

	if _, err := f.matching.AcceptRide(ctx, bikeDriver2, id); err != nil {
		t.Fatalf("AcceptRide() error = %v", err)
	}
	f.bus.reset()

	if _, err := f.matching.UpdateRideDetails(ctx, passenger, id, UpdateRideInput{Drop: &bangaloreDrop}); err != nil {
		t.Fatalf("UpdateRideDetails() error = %v", err)
	}
	assertTopics(t, f.bus, "ride_updated@ride:"+id)
}

func TestCancelRideWithdrawsPendingBroadcast(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	pending, _ := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	f.bus.reset()

	if _, err := f.matching.CancelRide(ctx, passenger, pending.ID.Hex(), "no longer needed"); err != nil {
		t.Fatalf("CancelRide() error = %v", err)
	}
	id := pending.ID.Hex()
	assertTopics(t, f.bus, "ride_cancelled@ride:"+id, "ride_cancelled@user:"+passenger.ID, "ride_withdrawn@vehicle:bike")

	accepted, _ := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	if _, err := f.matching.AcceptRide(ctx, bikeDriver, accepted.ID.Hex()); err != nil {
		t.Fatalf("AcceptRide() error = %v", err)
	}
	f.bus.reset()

	if _, err := f.matching.CancelRide(ctx, bikeDriver, accepted.ID.Hex(), ""); err != nil {
		t.Fatalf("CancelRide() error = %v", err)
	}
	id = accepted.ID.Hex()
	assertTopics(t, f.bus, "ride_cancelled@ride:"+id, "ride_cancelled@user:"+passenger.ID)
}

func TestPendingExpirySweep(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{PendingTTL: 15 * time.Minute})
	ctx := context.Background()

	ride, _ := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	f.bus.reset()

	f.clock.Advance(20 * time.Minute)
	f.matching.expirePending(ctx)

	id := ride.ID.Hex()
	assertTopics(t, f.bus, "ride_cancelled@ride:"+id, "ride_cancelled@user:"+passenger.ID, "ride_withdrawn@vehicle:bike")

	got, err := f.matching.GetRideByID(ctx, passenger, id)
	if err != nil || got.Status != models.RideStatusCancelled {
		t.Errorf("ride after sweep = %v, %v", got, err)
	}
}

func TestRunPendingExpiryStopsWithContext(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{PendingTTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.matching.RunPendingExpiry(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPendingExpiry did not return after cancel")
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	f.bus.failWith = errors.New("redis unavailable")

	ride, err := f.matching.CreateRide(context.Background(), passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	if err != nil {
		t.Fatalf("CreateRide() error = %v", err)
	}
	if ride.Status != models.RideStatusPending {
		t.Errorf("Status = %s", ride.Status)
	}
	if got := testutil.ToFloat64(f.metrics.DispatchFailures.WithLabelValues(string(models.EventRideRequested))); got != 1 {
		t.Errorf("dispatch_failures_total = %v, want 1", got)
	}
}

func TestUpdateDriverAvailability(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	online := models.DriverAvailability{Online: true, Lat: bangalorePickup.Lat, Lng: bangalorePickup.Lng}
	if err := f.matching.UpdateDriverAvailability(ctx, passenger, online); !errors.Is(err, ErrForbidden) {
		t.Errorf("passenger UpdateDriverAvailability() error = %v, want ErrForbidden", err)
	}
	if err := f.matching.UpdateDriverAvailability(ctx, bikeDriver, models.DriverAvailability{Online: true, Lat: 100}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad location error = %v, want ErrValidation", err)
	}
	if err := f.matching.UpdateDriverAvailability(ctx, bikeDriver, online); err != nil {
		t.Fatalf("UpdateDriverAvailability() error = %v", err)
	}

	_, capacity, err := f.demand.DemandSupply(ctx, bangalorePickup.Lat, bangalorePickup.Lng, testNow.Add(-time.Minute))
	if err != nil || capacity != 1 {
		t.Errorf("capacity = %d, %v; want 1", capacity, err)
	}
}

func TestCanJoinRideTopic(t *testing.T) {
	f := newMatchingFixture(t, RideOptions{})
	ctx := context.Background()

	ride, _ := f.matching.CreateRide(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "bike"})
	id := ride.ID.Hex()

	if !f.matching.CanJoinRideTopic(ctx, passenger, id) {
		t.Error("owner cannot join ride topic")
	}
	if f.matching.CanJoinRideTopic(ctx, otherPassenger, id) {
		t.Error("stranger joined ride topic")
	}
	if f.matching.CanJoinRideTopic(ctx, passenger, "garbage") {
		t.Error("malformed id accepted")
	}
}
