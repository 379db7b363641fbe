// Package memory keeps rides and quotes in process memory. It backs
// single-node deployments and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RideRepository serializes every write behind one mutex, which gives the
// same single-document atomicity as the Mongo conditional updates.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[primitive.ObjectID]*models.Ride
}

func NewRideRepository() *RideRepository {
	return &RideRepository{rides: make(map[primitive.ObjectID]*models.Ride)}
}

var _ interfaces.RideRepository = (*RideRepository)(nil)

func (r *RideRepository) Create(ctx context.Context, ride *models.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	r.rides[ride.ID] = ride.Clone()
	return nil
}

func (r *RideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ride, ok := r.rides[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return ride.Clone(), nil
}

// mutate runs fn on the stored ride when guard holds and returns a copy of
// the result.
func (r *RideRepository) mutate(id primitive.ObjectID, guard func(*models.Ride) bool, fn func(*models.Ride)) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ride, ok := r.rides[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if !guard(ride) {
		return nil, interfaces.ErrPreconditionFailed
	}
	fn(ride)
	return ride.Clone(), nil
}

func statusIn(status models.RideStatus, allowed ...models.RideStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

func (r *RideRepository) Accept(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool {
			return ride.Status == models.RideStatusPending && ride.DriverID == nil && !ride.IsExcluded(driverID)
		},
		func(ride *models.Ride) {
			d := driverID
			ride.DriverID = &d
			ride.Status = models.RideStatusAccepted
			ride.AcceptedAt = &at
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventAccepted, ActorID: driverID, At: at})
		},
	)
}

func (r *RideRepository) AddRejection(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool { return ride.Status == models.RideStatusPending },
		func(ride *models.Ride) {
			if !ride.IsExcluded(driverID) {
				ride.RejectedBy = append(ride.RejectedBy, driverID)
			}
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventRejected, ActorID: driverID, At: at})
		},
	)
}

func (r *RideRepository) SetOTP(ctx context.Context, id primitive.ObjectID, passengerID, otp string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool {
			return ride.PassengerID == passengerID && ride.Status.IsEditable()
		},
		func(ride *models.Ride) {
			ride.OTP = otp
			ride.OTPSetAt = &at
			ride.OTPAttempts = 0
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventOTPSet, ActorID: passengerID, At: at})
		},
	)
}

func (r *RideRepository) StartRide(ctx context.Context, id primitive.ObjectID, driverID, otp string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool {
			return ride.Status == models.RideStatusAccepted && ride.HasDriver(driverID) && ride.HasOTP() && ride.OTP == otp
		},
		func(ride *models.Ride) {
			ride.Status = models.RideStatusInProgress
			ride.StartedAt = &at
			ride.OTP = ""
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventStarted, ActorID: driverID, At: at})
		},
	)
}

func (r *RideRepository) RecordOTPFailure(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool { return ride.Status == models.RideStatusAccepted },
		func(ride *models.Ride) {
			ride.OTPAttempts++
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventOTPFailed, ActorID: driverID, At: at})
		},
	)
}

func (r *RideRepository) Complete(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool {
			return ride.Status == models.RideStatusInProgress && ride.HasDriver(driverID)
		},
		func(ride *models.Ride) {
			ride.Status = models.RideStatusCompleted
			ride.CompletedAt = &at
			ride.PaymentStatus = models.PaymentStatusPending
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventCompleted, ActorID: driverID, At: at})
		},
	)
}

func (r *RideRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, passengerID string, change interfaces.RideDetailsChange, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool {
			return ride.PassengerID == passengerID && ride.Status.IsEditable()
		},
		func(ride *models.Ride) {
			if change.Pickup != nil {
				ride.Pickup = *change.Pickup
			}
			if change.Drop != nil {
				ride.Drop = *change.Drop
			}
			if change.PickupZoneID != nil {
				ride.PickupZoneID = *change.PickupZoneID
			}
			if change.DropZoneID != nil {
				ride.DropZoneID = *change.DropZoneID
			}
			if change.DistanceKM != nil {
				ride.DistanceKM = *change.DistanceKM
			}
			if change.BaseFare != nil {
				ride.BaseFare = *change.BaseFare
			}
			if change.FinalFare != nil {
				ride.FinalFare = *change.FinalFare
			}
			if change.Factors != nil {
				ride.PricingFactors = *change.Factors
			}
			if change.ZoneAdjustment != nil {
				ride.ZoneAdjustment = *change.ZoneAdjustment
			}
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{Type: models.RideEventDetailsUpdated, ActorID: passengerID, At: at})
		},
	)
}

func (r *RideRepository) Cancel(ctx context.Context, id primitive.ObjectID, from []models.RideStatus, event models.RideEvent) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool { return statusIn(ride.Status, from...) },
		func(ride *models.Ride) {
			at := event.At
			ride.Status = models.RideStatusCancelled
			ride.CancelledAt = &at
			ride.CancelledBy = event.ActorID
			ride.CancellationReason = event.Detail
			ride.OTP = ""
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, event)
		},
	)
}

func (r *RideRepository) UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, at time.Time) (*models.Ride, error) {
	return r.mutate(id,
		func(ride *models.Ride) bool { return ride.Status == models.RideStatusCompleted },
		func(ride *models.Ride) {
			ride.PaymentStatus = status
			ride.UpdatedAt = at
			ride.Events = append(ride.Events, models.RideEvent{
				Type:    models.RideEventPaymentUpdated,
				ActorID: string(models.RoleSystem),
				Detail:  string(status),
				At:      at,
			})
		},
	)
}

func (r *RideRepository) ListPending(ctx context.Context, filter interfaces.PendingFilter) ([]*models.Ride, error) {
	rides := r.collect(func(ride *models.Ride) bool {
		if ride.Status != models.RideStatusPending {
			return false
		}
		if len(filter.VehicleTypes) > 0 && !vehicleIn(ride.VehicleType, filter.VehicleTypes) {
			return false
		}
		return filter.ExcludeDriver == "" || !ride.IsExcluded(filter.ExcludeDriver)
	})

	sortRides(rides, "requested_at", false)
	if filter.Limit > 0 && len(rides) > filter.Limit {
		rides = rides[:filter.Limit]
	}
	return rides, nil
}

func (r *RideRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ride, error) {
	rides := r.collect(func(ride *models.Ride) bool {
		return ride.Status == models.RideStatusPending && ride.RequestedAt.Before(cutoff)
	})

	sortRides(rides, "requested_at", true)
	if limit > 0 && len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

func (r *RideRepository) ListByPassenger(ctx context.Context, passengerID string, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.page(func(ride *models.Ride) bool { return ride.PassengerID == passengerID }, params)
}

func (r *RideRepository) ListByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.page(func(ride *models.Ride) bool { return ride.HasDriver(driverID) }, params)
}

func (r *RideRepository) page(match func(*models.Ride) bool, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	if params == nil {
		params = utils.DefaultPagination()
	}

	rides := r.collect(match)
	total := int64(len(rides))
	sortRides(rides, params.Sort, params.Order == "asc")

	skip := params.GetSkip()
	if skip >= len(rides) {
		return []*models.Ride{}, total, nil
	}
	end := skip + params.GetLimit()
	if end > len(rides) {
		end = len(rides)
	}
	return rides[skip:end], total, nil
}

func (r *RideRepository) collect(match func(*models.Ride) bool) []*models.Ride {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Ride, 0)
	for _, ride := range r.rides {
		if match(ride) {
			out = append(out, ride.Clone())
		}
	}
	return out
}

func vehicleIn(v models.VehicleType, set []models.VehicleType) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

// sortRides orders by field with the object id as a tiebreak, matching the
// Mongo sort options.
func sortRides(rides []*models.Ride, field string, asc bool) {
	key := func(r *models.Ride) float64 {
		switch field {
		case "created_at":
			return float64(r.CreatedAt.UnixNano())
		case "updated_at":
			return float64(r.UpdatedAt.UnixNano())
		case "final_fare":
			return r.FinalFare
		default:
			return float64(r.RequestedAt.UnixNano())
		}
	}

	sort.SliceStable(rides, func(i, j int) bool {
		ki, kj := key(rides[i]), key(rides[j])
		if ki == kj {
			if asc {
				return rides[i].ID.Hex() < rides[j].ID.Hex()
			}
			return rides[i].ID.Hex() > rides[j].ID.Hex()
		}
		if asc {
			return ki < kj
		}
		return ki > kj
	})
}
