package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCreateRide(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ride := f.createBikeRide(t)

	distance := utils.RoundTo(utils.CalculateDistance(bangalorePickup.Lat, bangalorePickup.Lng, bangaloreDrop.Lat, bangaloreDrop.Lng), 2)
	if ride.DistanceKM != distance {
		t.Errorf("DistanceKM = %v, want %v", ride.DistanceKM, distance)
	}
	if want := utils.RoundCurrency(distance * 8); ride.FinalFare != want {
		t.Errorf("FinalFare = %v, want %v", ride.FinalFare, want)
	}
	if ride.Status != models.RideStatusPending || ride.DriverID != nil {
		t.Errorf("Status = %s DriverID = %v", ride.Status, ride.DriverID)
	}
	if ride.PickupZoneID != "1297_7759" || ride.DropZoneID != "1293_7762" {
		t.Errorf("zones = %s -> %s", ride.PickupZoneID, ride.DropZoneID)
	}
	if ride.PaymentStatus != models.PaymentStatusUnpaid || ride.Currency != "INR" {
		t.Errorf("PaymentStatus = %s Currency = %s", ride.PaymentStatus, ride.Currency)
	}
	if len(ride.Events) != 1 || ride.Events[0].Type != models.RideEventCreated {
		t.Errorf("Events = %+v", ride.Events)
	}

	requesters, _, err := f.demand.DemandSupply(context.Background(), bangalorePickup.Lat, bangalorePickup.Lng, testNow.Add(-time.Minute))
	if err != nil || requesters != 1 {
		t.Errorf("DemandSupply() = %d, %v; want 1 requester", requesters, err)
	}
	if got := testutil.ToFloat64(f.metrics.RidesCreated.WithLabelValues("bike")); got != 1 {
		t.Errorf("rides_created_total = %v, want 1", got)
	}
}

func TestCreateRideValidation(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	zero := 0.0
	supplied := 12.5

	tests := []struct {
		name    string
		caller  models.Principal
		input   CreateRideInput
		wantErr error
	}{
		{"driver cannot request", bikeDriver, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop}, ErrForbidden},
		{"unknown vehicle", passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, VehicleType: "boat"}, ErrValidation},
		{"bad pickup", passenger, CreateRideInput{Pickup: models.Location{Lat: 91, Lng: 0}, Drop: bangaloreDrop}, ErrValidation},
		{"same point", passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangalorePickup}, ErrValidation},
		{"zero distance supplied", passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, DistanceKM: &zero}, ErrValidation},
		{"supplied distance", passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop, DistanceKM: &supplied}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ride, err := f.service.Create(ctx, tt.caller, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && ride.DistanceKM != supplied {
				t.Errorf("DistanceKM = %v, want %v", ride.DistanceKM, supplied)
			}
		})
	}
}

func TestAcceptAtMostOnce(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ride := f.createBikeRide(t)

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		taken   int
	)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		driver := models.Principal{ID: fmt.Sprintf("driver-%d", i), Role: models.RoleDriver, VehicleType: models.VehicleTypeBike}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Accept(context.Background(), driver, ride.ID.Hex())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, driver.ID)
			case errors.Is(err, ErrRideTaken):
				taken++
			default:
				t.Errorf("Accept() unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 || taken != n-1 {
		t.Fatalf("winners=%v taken=%d, want exactly one winner", winners, taken)
	}

	stored, err := f.service.GetByID(context.Background(), system, ride.ID.Hex())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != models.RideStatusAccepted || !stored.HasDriver(winners[0]) {
		t.Errorf("stored = %s %v, want accepted by %s", stored.Status, stored.DriverID, winners[0])
	}
	if got := testutil.ToFloat64(f.metrics.AcceptConflicts); got != n-1 {
		t.Errorf("accept_conflicts_total = %v, want %d", got, n-1)
	}
}

func TestAcceptVehicleMatching(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()

	bike := f.createBikeRide(t)
	if _, err := f.service.Accept(ctx, carDriver, bike.ID.Hex()); !errors.Is(err, ErrVehicleMismatch) {
		t.Fatalf("car driver Accept() error = %v, want ErrVehicleMismatch", err)
	}
	if _, err := f.service.Accept(ctx, passenger, bike.ID.Hex()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("passenger Accept() error = %v, want ErrForbidden", err)
	}

	open, err := f.service.Create(ctx, passenger, CreateRideInput{Pickup: bangalorePickup, Drop: bangaloreDrop})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if open.VehicleType.IsSpecified() {
		t.Fatalf("VehicleType = %q, want unspecified", open.VehicleType)
	}
	if _, err := f.service.Accept(ctx, carDriver, open.ID.Hex()); err != nil {
		t.Fatalf("untyped ride Accept() error = %v", err)
	}
}

func TestRejectExcludesDriver(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	ride := f.createBikeRide(t)

	rejected, err := f.service.Reject(ctx, bikeDriver, ride.ID.Hex())
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if !rejected.IsExcluded(bikeDriver.ID) || rejected.Status != models.RideStatusPending {
		t.Fatalf("after reject: excluded=%v status=%s", rejected.IsExcluded(bikeDriver.ID), rejected.Status)
	}

	// rejecting twice keeps a single entry
	again, err := f.service.Reject(ctx, bikeDriver, ride.ID.Hex())
	if err != nil {
		t.Fatalf("second Reject() error = %v", err)
	}
	if len(again.RejectedBy) != 1 {
		t.Errorf("RejectedBy = %v, want one entry", again.RejectedBy)
	}

	pending, err := f.service.GetPending(ctx, bikeDriver, 0)
	if err != nil {
		t.Fatalf("GetPending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("rejecting driver still sees %d rides", len(pending))
	}
	if _, err := f.service.GetByID(ctx, bikeDriver, ride.ID.Hex()); !errors.Is(err, ErrForbidden) {
		t.Errorf("rejecting driver GetByID() error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.Accept(ctx, bikeDriver, ride.ID.Hex()); !errors.Is(err, ErrRideTaken) {
		t.Errorf("rejecting driver Accept() error = %v, want ErrRideTaken", err)
	}

	pending, err = f.service.GetPending(ctx, bikeDriver2, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("other driver GetPending() = %d rides, %v", len(pending), err)
	}
	if _, err := f.service.Accept(ctx, bikeDriver2, ride.ID.Hex()); err != nil {
		t.Fatalf("other driver Accept() error = %v", err)
	}

	if _, err := f.service.Reject(ctx, bikeDriver, ride.ID.Hex()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Reject() after accept error = %v, want ErrInvalidState", err)
	}
}

func TestOTPGating(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	ride := f.createBikeRide(t)
	id := ride.ID.Hex()

	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("VerifyOTP() on pending error = %v, want ErrInvalidState", err)
	}
	if _, err := f.service.Accept(ctx, bikeDriver, id); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); !errors.Is(err, ErrOTPNotSet) {
		t.Fatalf("VerifyOTP() without OTP error = %v, want ErrOTPNotSet", err)
	}
	if _, err := f.service.Complete(ctx, bikeDriver, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Complete() before start error = %v, want ErrInvalidState", err)
	}

	if _, err := f.service.SetOTP(ctx, passenger, id, "12a4"); !errors.Is(err, ErrValidation) {
		t.Errorf("SetOTP(12a4) error = %v, want ErrValidation", err)
	}
	if _, err := f.service.SetOTP(ctx, otherPassenger, id, "1234"); !errors.Is(err, ErrForbidden) {
		t.Errorf("SetOTP() by stranger error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.SetOTP(ctx, passenger, id, "1234"); err != nil {
		t.Fatalf("SetOTP() error = %v", err)
	}

	if _, err := f.service.VerifyOTP(ctx, bikeDriver2, id, "1234"); !errors.Is(err, ErrForbidden) {
		t.Errorf("VerifyOTP() by other driver error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "9999"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("VerifyOTP(wrong) error = %v, want ErrInvalidOTP", err)
	}
	still, _ := f.service.GetByID(ctx, system, id)
	if still.Status != models.RideStatusAccepted {
		t.Fatalf("wrong OTP moved ride to %s", still.Status)
	}

	started, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234")
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if started.Status != models.RideStatusInProgress || started.HasOTP() || started.StartedAt == nil {
		t.Errorf("started = %s otp=%v startedAt=%v", started.Status, started.HasOTP(), started.StartedAt)
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second VerifyOTP() error = %v, want ErrInvalidState", err)
	}
	if _, err := f.service.SetOTP(ctx, passenger, id, "5678"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetOTP() after start error = %v, want ErrInvalidState", err)
	}

	if _, err := f.service.Complete(ctx, bikeDriver2, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("Complete() by other driver error = %v, want ErrForbidden", err)
	}
	completed, err := f.service.Complete(ctx, bikeDriver, id)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != models.RideStatusCompleted || completed.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("completed = %s payment=%s", completed.Status, completed.PaymentStatus)
	}
	if _, err := f.service.Complete(ctx, bikeDriver, id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Complete() error = %v, want ErrInvalidState", err)
	}
}

func TestOTPAttemptLimit(t *testing.T) {
	f := newRideFixture(t, RideOptions{OTPMaxAttempts: 2})
	ctx := context.Background()
	ride := f.acceptedWithOTP(t)
	id := ride.ID.Hex()

	for i := 0; i < 2; i++ {
		if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "0000"); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidOTP", i, err)
		}
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); !errors.Is(err, ErrOTPLocked) {
		t.Fatalf("locked VerifyOTP() error = %v, want ErrOTPLocked", err)
	}

	// a fresh OTP resets the counter
	if _, err := f.service.SetOTP(ctx, passenger, id, "4321"); err != nil {
		t.Fatalf("SetOTP() error = %v", err)
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "4321"); err != nil {
		t.Fatalf("VerifyOTP() after reset error = %v", err)
	}
}

func TestOTPExpiry(t *testing.T) {
	f := newRideFixture(t, RideOptions{OTPExpiry: 5 * time.Minute})
	ctx := context.Background()
	ride := f.acceptedWithOTP(t)

	f.clock.Advance(6 * time.Minute)
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, ride.ID.Hex(), "1234"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("VerifyOTP() error = %v, want ErrOTPExpired", err)
	}
}

func TestUpdateDetails(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	ride := f.createBikeRide(t)
	id := ride.ID.Hex()

	address := "  Forum Mall  "
	renamed, err := f.service.UpdateDetails(ctx, passenger, id, UpdateRideInput{DropAddress: &address})
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if renamed.Drop.Address != "Forum Mall" || renamed.FinalFare != ride.FinalFare {
		t.Errorf("address-only edit: address=%q fare=%v (was %v)", renamed.Drop.Address, renamed.FinalFare, ride.FinalFare)
	}

	farther := models.Location{Lat: 12.9141, Lng: 77.6411}
	moved, err := f.service.UpdateDetails(ctx, passenger, id, UpdateRideInput{Drop: &farther})
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if moved.DistanceKM <= ride.DistanceKM || moved.FinalFare <= ride.FinalFare {
		t.Errorf("repriced ride: distance %v fare %v, want more than %v / %v", moved.DistanceKM, moved.FinalFare, ride.DistanceKM, ride.FinalFare)
	}
	if moved.DropZoneID != "1291_7764" {
		t.Errorf("DropZoneID = %s", moved.DropZoneID)
	}

	if _, err := f.service.UpdateDetails(ctx, otherPassenger, id, UpdateRideInput{Drop: &farther}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger UpdateDetails() error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.UpdateDetails(ctx, passenger, id, UpdateRideInput{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty UpdateDetails() error = %v, want ErrValidation", err)
	}

	if _, err := f.service.Accept(ctx, bikeDriver, id); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := f.service.UpdateDetails(ctx, passenger, id, UpdateRideInput{DropAddress: &address}); err != nil {
		t.Errorf("UpdateDetails() while accepted error = %v", err)
	}
	if _, err := f.service.SetOTP(ctx, passenger, id, "1234"); err != nil {
		t.Fatalf("SetOTP() error = %v", err)
	}
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if _, err := f.service.UpdateDetails(ctx, passenger, id, UpdateRideInput{DropAddress: &address}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("UpdateDetails() in progress error = %v, want ErrInvalidState", err)
	}
}

func TestCancelRide(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()

	ride := f.createBikeRide(t)
	if _, _, err := f.service.Cancel(ctx, bikeDriver, ride.ID.Hex(), ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("unattached driver Cancel() error = %v, want ErrForbidden", err)
	}

	cancelled, previous, err := f.service.Cancel(ctx, passenger, ride.ID.Hex(), "changed plans")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if previous != models.RideStatusPending || cancelled.Status != models.RideStatusCancelled {
		t.Errorf("previous=%s status=%s", previous, cancelled.Status)
	}
	if cancelled.CancelledBy != passenger.ID || cancelled.CancellationReason != "changed plans" {
		t.Errorf("CancelledBy=%q reason=%q", cancelled.CancelledBy, cancelled.CancellationReason)
	}
	if _, _, err := f.service.Cancel(ctx, passenger, ride.ID.Hex(), ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Cancel() error = %v, want ErrInvalidState", err)
	}

	// the attached driver may back out before the trip starts
	accepted := f.acceptedWithOTP(t)
	_, previous, err = f.service.Cancel(ctx, bikeDriver, accepted.ID.Hex(), "")
	if err != nil || previous != models.RideStatusAccepted {
		t.Fatalf("driver Cancel() = %s, %v", previous, err)
	}

	started := f.acceptedWithOTP(t)
	if _, err := f.service.VerifyOTP(ctx, bikeDriver, started.ID.Hex(), "1234"); err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if _, _, err := f.service.Cancel(ctx, system, started.ID.Hex(), ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel() in progress error = %v, want ErrInvalidState", err)
	}
}

func TestExpirePending(t *testing.T) {
	f := newRideFixture(t, RideOptions{PendingTTL: 15 * time.Minute})
	ctx := context.Background()

	stale := f.createBikeRide(t)
	claimed := f.createBikeRide(t)
	if _, err := f.service.Accept(ctx, bikeDriver, claimed.ID.Hex()); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	fresh := f.createBikeRide(t)

	expired, err := f.service.ExpirePending(ctx)
	if err != nil || len(expired) != 0 {
		t.Fatalf("early sweep = %d rides, %v", len(expired), err)
	}

	f.clock.Advance(6 * time.Minute)
	expired, err = f.service.ExpirePending(ctx)
	if err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expired = %v, want only %s", expired, stale.ID.Hex())
	}
	last := expired[0].Events[len(expired[0].Events)-1]
	if last.Type != models.RideEventExpired || expired[0].Status != models.RideStatusCancelled {
		t.Errorf("expired ride status=%s last event=%s", expired[0].Status, last.Type)
	}

	for _, r := range []*models.Ride{claimed, fresh} {
		got, _ := f.service.GetByID(ctx, system, r.ID.Hex())
		if got.Status == models.RideStatusCancelled {
			t.Errorf("ride %s should not expire", r.ID.Hex())
		}
	}
	if got := testutil.ToFloat64(f.metrics.RidesExpired); got != 1 {
		t.Errorf("rides_expired_total = %v, want 1", got)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	ride := f.acceptedWithOTP(t)
	id := ride.ID.Hex()

	if _, err := f.service.UpdatePaymentStatus(ctx, passenger, id, models.PaymentStatusPaid); !errors.Is(err, ErrForbidden) {
		t.Errorf("passenger UpdatePaymentStatus() error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.UpdatePaymentStatus(ctx, system, id, models.PaymentStatusPaid); !errors.Is(err, ErrInvalidState) {
		t.Errorf("UpdatePaymentStatus() before completion error = %v, want ErrInvalidState", err)
	}

	if _, err := f.service.VerifyOTP(ctx, bikeDriver, id, "1234"); err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if _, err := f.service.Complete(ctx, bikeDriver, id); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if _, err := f.service.UpdatePaymentStatus(ctx, system, id, "bounced"); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdatePaymentStatus(bounced) error = %v, want ErrValidation", err)
	}
	paid, err := f.service.UpdatePaymentStatus(ctx, system, id, models.PaymentStatusPaid)
	if err != nil {
		t.Fatalf("UpdatePaymentStatus() error = %v", err)
	}
	if paid.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("PaymentStatus = %s, want paid", paid.PaymentStatus)
	}
}

func TestGetByIDAccess(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()
	ride := f.createBikeRide(t)
	id := ride.ID.Hex()

	tests := []struct {
		name    string
		caller  models.Principal
		rideID  string
		wantErr error
	}{
		{"owner", passenger, id, nil},
		{"system", system, id, nil},
		{"eligible driver", bikeDriver, id, nil},
		{"other passenger", otherPassenger, id, ErrForbidden},
		{"mismatched driver", carDriver, id, ErrForbidden},
		{"malformed id", passenger, "not-an-id", ErrValidation},
		{"unknown id", passenger, "0123456789abcdef01234567", ErrRideNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.GetByID(ctx, tt.caller, tt.rideID); !errors.Is(err, tt.wantErr) {
				t.Errorf("GetByID() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.service.Accept(ctx, bikeDriver, id); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := f.service.GetByID(ctx, bikeDriver2, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-assigned driver GetByID() after accept error = %v, want ErrForbidden", err)
	}
	if _, err := f.service.GetByID(ctx, bikeDriver, id); err != nil {
		t.Errorf("assigned driver GetByID() error = %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	f := newRideFixture(t, RideOptions{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		f.createBikeRide(t)
	}
	accepted := f.createBikeRide(t)
	if _, err := f.service.Accept(ctx, bikeDriver, accepted.ID.Hex()); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	rides, total, err := f.service.GetHistory(ctx, passenger, &utils.PaginationParams{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if total != 4 || len(rides) != 2 {
		t.Errorf("passenger history = %d of %d, want 2 of 4", len(rides), total)
	}

	rides, total, err = f.service.GetHistory(ctx, bikeDriver, nil)
	if err != nil || total != 1 || rides[0].ID != accepted.ID {
		t.Errorf("driver history = %d rides, total %d, err %v", len(rides), total, err)
	}

	if _, _, err := f.service.GetHistory(ctx, system, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("system GetHistory() error = %v, want ErrForbidden", err)
	}
}
