package interfaces

import (
	"context"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RideDetailsChange carries the fields a passenger may edit before start.
// Nil pointers leave the stored value alone.
type RideDetailsChange struct {
	Pickup         *models.Location
	Drop           *models.Location
	PickupZoneID   *string
	DropZoneID     *string
	DistanceKM     *float64
	BaseFare       *float64
	FinalFare      *float64
	Factors        *models.PricingFactors
	ZoneAdjustment *float64
}

type PendingFilter struct {
	VehicleTypes  []models.VehicleType
	ExcludeDriver string
	Limit         int
}

// RideRepository persists rides. Every mutating method is a single
// conditional update: when the ride exists but the guard does not hold it
// returns ErrPreconditionFailed, and when the id is unknown ErrNotFound.
type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error)

	// Accept attaches driverID if the ride is still pending and the driver
	// has not rejected it.
	Accept(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error)
	AddRejection(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error)
	SetOTP(ctx context.Context, id primitive.ObjectID, passengerID, otp string, at time.Time) (*models.Ride, error)
	// StartRide moves an accepted ride to in_progress when otp matches the
	// stored value and driverID is attached.
	StartRide(ctx context.Context, id primitive.ObjectID, driverID, otp string, at time.Time) (*models.Ride, error)
	RecordOTPFailure(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error)
	Complete(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error)
	UpdateDetails(ctx context.Context, id primitive.ObjectID, passengerID string, change RideDetailsChange, at time.Time) (*models.Ride, error)
	// Cancel moves the ride to cancelled if its status is one of from.
	Cancel(ctx context.Context, id primitive.ObjectID, from []models.RideStatus, event models.RideEvent) (*models.Ride, error)
	UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, at time.Time) (*models.Ride, error)

	ListPending(ctx context.Context, filter PendingFilter) ([]*models.Ride, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ride, error)
	ListByPassenger(ctx context.Context, passengerID string, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	ListByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Ride, int64, error)
}
