package models

import "time"

type DispatchEventType string

const (
	EventRideRequested        DispatchEventType = "ride_requested"
	EventRideLocked           DispatchEventType = "ride_locked"
	EventRideAccepted         DispatchEventType = "ride_accepted"
	EventRideRejected         DispatchEventType = "ride_rejected"
	EventRideUpdated          DispatchEventType = "ride_updated"
	EventRideStarted          DispatchEventType = "ride_started"
	EventRideWithdrawn        DispatchEventType = "ride_withdrawn"
	EventRideCancelled        DispatchEventType = "ride_cancelled"
	EventRideCompleted        DispatchEventType = "ride_completed"
	EventPaymentReady         DispatchEventType = "payment_ready"
	EventPaymentStatusChanged DispatchEventType = "payment_status_changed"
)

// DispatchEvent is the payload carried on every dispatch topic. Ride holds
// the full projection; locked and withdrawn events only carry RideID.
type DispatchEvent struct {
	Type            DispatchEventType `json:"type"`
	Topic           string            `json:"topic"`
	RideID          string            `json:"ride_id"`
	Ride            *Ride             `json:"ride,omitempty"`
	Driver          *DriverProfile    `json:"driver,omitempty"`
	ExcludedDrivers []string          `json:"excluded_drivers,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

func RideTopic(rideID string) string {
	return "ride:" + rideID
}

func UserTopic(userID string) string {
	return "user:" + userID
}
