package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideStatus string
type PaymentStatus string

const (
	RideStatusPending    RideStatus = "pending"
	RideStatusAccepted   RideStatus = "accepted"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"

	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// allowedTransitions is the ride lifecycle. Terminal states have no entry.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:    {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
}

func CanTransition(from, to RideStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsEditable reports whether pickup, drop and the OTP may still change.
func (s RideStatus) IsEditable() bool {
	return s == RideStatusPending || s == RideStatusAccepted
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

type Ride struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PassengerID        string             `json:"passenger_id" bson:"passenger_id"`
	DriverID           *string            `json:"driver_id" bson:"driver_id"`
	Pickup             Location           `json:"pickup" bson:"pickup"`
	Drop               Location           `json:"drop" bson:"drop"`
	PickupZoneID       string             `json:"pickup_zone_id" bson:"pickup_zone_id"`
	DropZoneID         string             `json:"drop_zone_id" bson:"drop_zone_id"`
	DistanceKM         float64            `json:"distance_km" bson:"distance_km"`
	BaseFare           float64            `json:"base_fare" bson:"base_fare"`
	FinalFare          float64            `json:"final_fare" bson:"final_fare"`
	Currency           string             `json:"currency" bson:"currency"`
	PricingPolicy      PricingPolicy      `json:"pricing_policy" bson:"pricing_policy"`
	PricingFactors     PricingFactors     `json:"pricing_factors" bson:"pricing_factors"`
	ZoneAdjustment     float64            `json:"zone_adjustment" bson:"zone_adjustment"`
	VehicleType        VehicleType        `json:"vehicle_type" bson:"vehicle_type"`
	Status             RideStatus         `json:"status" bson:"status"`
	OTP                string             `json:"-" bson:"otp,omitempty"`
	OTPSetAt           *time.Time         `json:"-" bson:"otp_set_at,omitempty"`
	OTPAttempts        int                `json:"-" bson:"otp_attempts"`
	RejectedBy         []string           `json:"-" bson:"rejected_by"`
	PaymentStatus      PaymentStatus      `json:"payment_status" bson:"payment_status"`
	RequestedAt        time.Time          `json:"requested_at" bson:"requested_at"`
	AcceptedAt         *time.Time         `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	StartedAt          *time.Time         `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelledBy        string             `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	Events             []RideEvent        `json:"events,omitempty" bson:"events"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
}

// RideEvent is one entry in a ride's audit trail.
type RideEvent struct {
	Type    string    `json:"type" bson:"type"`
	ActorID string    `json:"actor_id" bson:"actor_id"`
	Detail  string    `json:"detail,omitempty" bson:"detail,omitempty"`
	At      time.Time `json:"at" bson:"at"`
}

const (
	RideEventCreated        = "created"
	RideEventAccepted       = "accepted"
	RideEventRejected       = "rejected"
	RideEventOTPSet         = "otp_set"
	RideEventOTPFailed      = "otp_failed"
	RideEventStarted        = "started"
	RideEventCompleted      = "completed"
	RideEventDetailsUpdated = "details_updated"
	RideEventCancelled      = "cancelled"
	RideEventExpired        = "expired"
	RideEventPaymentUpdated = "payment_updated"
)

func (r *Ride) HasDriver(driverID string) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

func (r *Ride) IsExcluded(driverID string) bool {
	for _, id := range r.RejectedBy {
		if id == driverID {
			return true
		}
	}
	return false
}

func (r *Ride) HasOTP() bool {
	return r.OTP != ""
}

// Clone returns a deep copy so callers cannot alias slices or pointers.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.DriverID != nil {
		id := *r.DriverID
		c.DriverID = &id
	}
	c.OTPSetAt = cloneTime(r.OTPSetAt)
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	c.RejectedBy = append([]string(nil), r.RejectedBy...)
	c.Events = append([]RideEvent(nil), r.Events...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
