package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/utils"
	"ridematch/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type rideRepository struct {
	collection *mongo.Collection
}

func NewRideRepository(db *mongo.Database) interfaces.RideRepository {
	return &rideRepository{
		collection: db.Collection(database.RidesCollection),
	}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	if ride.RejectedBy == nil {
		ride.RejectedBy = []string{}
	}
	// $push on a null array fails, so both lists start empty
	if ride.Events == nil {
		ride.Events = []models.RideEvent{}
	}

	_, err := r.collection.InsertOne(ctx, ride)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	var ride models.Ride
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ride)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return &ride, nil
}

// Accept is the only write racing drivers contend on. The status and
// exclusion checks live in the filter so the check-and-set is one
// document-level operation.
func (r *rideRepository) Accept(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	filter := bson.M{
		"_id":         id,
		"status":      models.RideStatusPending,
		"driver_id":   nil,
		"rejected_by": bson.M{"$ne": driverID},
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.RideStatusAccepted,
			"driver_id":   driverID,
			"accepted_at": at,
			"updated_at":  at,
		},
		"$push": bson.M{"events": models.RideEvent{Type: models.RideEventAccepted, ActorID: driverID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) AddRejection(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	filter := bson.M{"_id": id, "status": models.RideStatusPending}
	update := bson.M{
		"$addToSet": bson.M{"rejected_by": driverID},
		"$set":      bson.M{"updated_at": at},
		"$push":     bson.M{"events": models.RideEvent{Type: models.RideEventRejected, ActorID: driverID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) SetOTP(ctx context.Context, id primitive.ObjectID, passengerID, otp string, at time.Time) (*models.Ride, error) {
	filter := bson.M{
		"_id":          id,
		"passenger_id": passengerID,
		"status":       bson.M{"$in": []models.RideStatus{models.RideStatusPending, models.RideStatusAccepted}},
	}
	update := bson.M{
		"$set": bson.M{
			"otp":          otp,
			"otp_set_at":   at,
			"otp_attempts": 0,
			"updated_at":   at,
		},
		"$push": bson.M{"events": models.RideEvent{Type: models.RideEventOTPSet, ActorID: passengerID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) StartRide(ctx context.Context, id primitive.ObjectID, driverID, otp string, at time.Time) (*models.Ride, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.RideStatusAccepted,
		"driver_id": driverID,
		"otp":       otp,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.RideStatusInProgress,
			"started_at": at,
			"updated_at": at,
		},
		"$unset": bson.M{"otp": ""},
		"$push":  bson.M{"events": models.RideEvent{Type: models.RideEventStarted, ActorID: driverID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) RecordOTPFailure(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	filter := bson.M{"_id": id, "status": models.RideStatusAccepted}
	update := bson.M{
		"$inc":  bson.M{"otp_attempts": 1},
		"$set":  bson.M{"updated_at": at},
		"$push": bson.M{"events": models.RideEvent{Type: models.RideEventOTPFailed, ActorID: driverID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) Complete(ctx context.Context, id primitive.ObjectID, driverID string, at time.Time) (*models.Ride, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.RideStatusInProgress,
		"driver_id": driverID,
	}
	update := bson.M{
		"$set": bson.M{
			"status":         models.RideStatusCompleted,
			"completed_at":   at,
			"payment_status": models.PaymentStatusPending,
			"updated_at":     at,
		},
		"$push": bson.M{"events": models.RideEvent{Type: models.RideEventCompleted, ActorID: driverID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, passengerID string, change interfaces.RideDetailsChange, at time.Time) (*models.Ride, error) {
	set := bson.M{"updated_at": at}
	if change.Pickup != nil {
		set["pickup"] = change.Pickup
	}
	if change.Drop != nil {
		set["drop"] = change.Drop
	}
	if change.PickupZoneID != nil {
		set["pickup_zone_id"] = *change.PickupZoneID
	}
	if change.DropZoneID != nil {
		set["drop_zone_id"] = *change.DropZoneID
	}
	if change.DistanceKM != nil {
		set["distance_km"] = *change.DistanceKM
	}
	if change.BaseFare != nil {
		set["base_fare"] = *change.BaseFare
	}
	if change.FinalFare != nil {
		set["final_fare"] = *change.FinalFare
	}
	if change.Factors != nil {
		set["pricing_factors"] = change.Factors
	}
	if change.ZoneAdjustment != nil {
		set["zone_adjustment"] = *change.ZoneAdjustment
	}

	filter := bson.M{
		"_id":          id,
		"passenger_id": passengerID,
		"status":       bson.M{"$in": []models.RideStatus{models.RideStatusPending, models.RideStatusAccepted}},
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"events": models.RideEvent{Type: models.RideEventDetailsUpdated, ActorID: passengerID, At: at}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) Cancel(ctx context.Context, id primitive.ObjectID, from []models.RideStatus, event models.RideEvent) (*models.Ride, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	update := bson.M{
		"$set": bson.M{
			"status":              models.RideStatusCancelled,
			"cancelled_at":        event.At,
			"cancelled_by":        event.ActorID,
			"cancellation_reason": event.Detail,
			"updated_at":          event.At,
		},
		"$unset": bson.M{"otp": ""},
		"$push":  bson.M{"events": event},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, at time.Time) (*models.Ride, error) {
	filter := bson.M{"_id": id, "status": models.RideStatusCompleted}
	update := bson.M{
		"$set": bson.M{
			"payment_status": status,
			"updated_at":     at,
		},
		"$push": bson.M{"events": models.RideEvent{
			Type:    models.RideEventPaymentUpdated,
			ActorID: string(models.RoleSystem),
			Detail:  string(status),
			At:      at,
		}},
	}

	return r.conditionalUpdate(ctx, id, filter, update)
}

func (r *rideRepository) ListPending(ctx context.Context, filter interfaces.PendingFilter) ([]*models.Ride, error) {
	query := bson.M{"status": models.RideStatusPending}
	if len(filter.VehicleTypes) > 0 {
		query["vehicle_type"] = bson.M{"$in": filter.VehicleTypes}
	}
	if filter.ExcludeDriver != "" {
		query["rejected_by"] = bson.M{"$ne": filter.ExcludeDriver}
	}

	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	return r.find(ctx, query, opts)
}

func (r *rideRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ride, error) {
	query := bson.M{
		"status":       models.RideStatusPending,
		"requested_at": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	return r.find(ctx, query, opts)
}

func (r *rideRepository) ListByPassenger(ctx context.Context, passengerID string, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.findRidesWithFilter(ctx, bson.M{"passenger_id": passengerID}, params)
}

func (r *rideRepository) ListByDriver(ctx context.Context, driverID string, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.findRidesWithFilter(ctx, bson.M{"driver_id": driverID}, params)
}

// conditionalUpdate applies update when filter matches and returns the
// document after the write. A miss is classified by probing the id alone.
func (r *rideRepository) conditionalUpdate(ctx context.Context, id primitive.ObjectID, filter, update bson.M) (*models.Ride, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var ride models.Ride
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&ride)
	if err == nil {
		return &ride, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update ride: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to check ride: %w", err)
	}
	if count == 0 {
		return nil, interfaces.ErrNotFound
	}
	return nil, interfaces.ErrPreconditionFailed
}

func (r *rideRepository) findRidesWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	if params == nil {
		params = utils.DefaultPagination()
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	rides, err := r.find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, err
	}

	return rides, total, nil
}

func (r *rideRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Ride, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rides: %w", err)
	}
	defer cursor.Close(ctx)

	rides := make([]*models.Ride, 0)
	for cursor.Next(ctx) {
		var ride models.Ride
		if err := cursor.Decode(&ride); err != nil {
			return nil, fmt.Errorf("failed to decode ride: %w", err)
		}
		rides = append(rides, &ride)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rides: %w", err)
	}

	return rides, nil
}
