package utils

import "time"

// Application Constants
const (
	AppName    = "RideMatch"
	AppVersion = "1.0.0"

	DefaultCurrency = "INR"
	DefaultTimeZone = "Asia/Kolkata"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Ride Constants
	RideOTPLength          = 4
	DefaultPendingRideTTL  = 15 * time.Minute
	PendingRidesLimit      = 50
	MaxRideDistance        = 500.0 // kilometers
	DefaultZoneCellSizeDeg = 0.01

	// Surge Pricing
	MinSurgeMultiplier = 1.0
	MaxSurgeMultiplier = 2.5
	MinZoneAdjustment  = 0.9
	MaxZoneAdjustment  = 1.3
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
	ErrRideNotFound     = "ride not found"
	ErrRideTaken        = "ride not found or already taken"
)

// Context keys set by the auth and request-id middleware
const (
	ContextUserID      = "user_id"
	ContextUserType    = "user_type"
	ContextVehicleType = "vehicle_type"
	ContextPrincipal   = "principal"
	ContextRequestID   = "request_id"
)

// Geographic Constants
const (
	EarthRadiusKM = 6371.0
)
