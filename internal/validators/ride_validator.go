package validators

import (
	"ridematch/internal/models"
	"ridematch/internal/services"
)

type LocationRequest struct {
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
	Address string   `json:"address" validate:"omitempty,max=255"`
}

func (l LocationRequest) toLocation() models.Location {
	return models.Location{Lat: *l.Lat, Lng: *l.Lng, Address: l.Address}
}

type CreateRideRequest struct {
	Pickup      LocationRequest `json:"pickup" validate:"required"`
	Drop        LocationRequest `json:"drop" validate:"required"`
	DistanceKM  *float64        `json:"distance_km" validate:"omitempty,distance"`
	VehicleType string          `json:"vehicle_type" validate:"omitempty,vehicle_type"`
	RatePerKM   float64         `json:"rate_per_km" validate:"omitempty,gt=0"`
}

type QuoteFareRequest struct {
	Lat         *float64 `json:"lat" validate:"required,latitude"`
	Lng         *float64 `json:"lng" validate:"required,longitude"`
	DistanceKM  float64  `json:"distance_km" validate:"required,distance"`
	VehicleType string   `json:"vehicle_type" validate:"omitempty,max=20"`
	RatePerKM   float64  `json:"rate_per_km" validate:"omitempty,gt=0"`
}

// UpdateRideRequest edits pickup and/or drop. At least one must be present.
type UpdateRideRequest struct {
	Pickup *LocationRequest `json:"pickup" validate:"required_without=Drop"`
	Drop   *LocationRequest `json:"drop" validate:"required_without=Pickup"`
}

type SetOTPRequest struct {
	OTP string `json:"otp" validate:"required,otp,max=8"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,otp,max=8"`
}

type CancelRideRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

type PaymentStatusRequest struct {
	Status string `json:"status" validate:"required,payment_status"`
}

type AvailabilityRequest struct {
	Online bool    `json:"online"`
	Lat    float64 `json:"lat" validate:"latitude"`
	Lng    float64 `json:"lng" validate:"longitude"`
}

func ValidateCreateRide(req *CreateRideRequest) (services.CreateRideInput, ValidationErrors) {
	if errs := ValidateStruct(req); len(errs) > 0 {
		return services.CreateRideInput{}, errs
	}
	return services.CreateRideInput{
		Pickup:      req.Pickup.toLocation(),
		Drop:        req.Drop.toLocation(),
		DistanceKM:  req.DistanceKM,
		VehicleType: req.VehicleType,
		RatePerKM:   req.RatePerKM,
	}, nil
}

func ValidateQuoteFare(req *QuoteFareRequest) (services.QuoteRequest, ValidationErrors) {
	if errs := ValidateStruct(req); len(errs) > 0 {
		return services.QuoteRequest{}, errs
	}
	return services.QuoteRequest{
		Lat:               *req.Lat,
		Lng:               *req.Lng,
		DistanceKM:        req.DistanceKM,
		VehicleType:       req.VehicleType,
		ExplicitRatePerKM: req.RatePerKM,
	}, nil
}

// ValidateUpdateRide keeps addresses only when the client sent them, so an
// omitted address is filled in by reverse geocoding.
func ValidateUpdateRide(req *UpdateRideRequest) (services.UpdateRideInput, ValidationErrors) {
	if errs := ValidateStruct(req); len(errs) > 0 {
		return services.UpdateRideInput{}, errs
	}

	var input services.UpdateRideInput
	if req.Pickup != nil {
		pickup := req.Pickup.toLocation()
		input.Pickup = &pickup
		if req.Pickup.Address != "" {
			input.PickupAddress = &req.Pickup.Address
		}
	}
	if req.Drop != nil {
		drop := req.Drop.toLocation()
		input.Drop = &drop
		if req.Drop.Address != "" {
			input.DropAddress = &req.Drop.Address
		}
	}
	return input, nil
}
