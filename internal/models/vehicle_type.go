package models

import (
	"fmt"
	"strings"
)

// VehicleType is the vehicle class a ride asks for or a driver operates.
// The zero value is VehicleTypeUnspecified.
type VehicleType string

const (
	VehicleTypeUnspecified VehicleType = ""
	VehicleTypeBike        VehicleType = "bike"
	VehicleTypeAuto        VehicleType = "auto"
	VehicleTypeCar         VehicleType = "car"
	VehicleTypeSUV         VehicleType = "suv"
	VehicleTypeParcel      VehicleType = "parcel"
)

var knownVehicleTypes = map[VehicleType]bool{
	VehicleTypeBike:   true,
	VehicleTypeAuto:   true,
	VehicleTypeCar:    true,
	VehicleTypeSUV:    true,
	VehicleTypeParcel: true,
}

// driverEligibility lists the driver vehicle types allowed to claim a ride
// requesting the key type. Unspecified rides are open to every type.
var driverEligibility = map[VehicleType][]VehicleType{
	VehicleTypeBike:   {VehicleTypeBike},
	VehicleTypeAuto:   {VehicleTypeAuto},
	VehicleTypeCar:    {VehicleTypeCar},
	VehicleTypeSUV:    {VehicleTypeSUV},
	VehicleTypeParcel: {VehicleTypeParcel},
}

func AllVehicleTypes() []VehicleType {
	return []VehicleType{VehicleTypeBike, VehicleTypeAuto, VehicleTypeCar, VehicleTypeSUV, VehicleTypeParcel}
}

// ParseVehicleType trims and lowercases s. Empty input is Unspecified;
// anything else unknown is an error.
func ParseVehicleType(s string) (VehicleType, error) {
	v := VehicleType(strings.ToLower(strings.TrimSpace(s)))
	if v == VehicleTypeUnspecified || knownVehicleTypes[v] {
		return v, nil
	}
	return VehicleTypeUnspecified, fmt.Errorf("unknown vehicle type %q", s)
}

// NormalizeVehicleType is the lenient form used by pricing: unknown strings
// become Unspecified.
func NormalizeVehicleType(s string) VehicleType {
	v, err := ParseVehicleType(s)
	if err != nil {
		return VehicleTypeUnspecified
	}
	return v
}

func (v VehicleType) IsSpecified() bool {
	return v != VehicleTypeUnspecified
}

func (v VehicleType) IsValid() bool {
	return v == VehicleTypeUnspecified || knownVehicleTypes[v]
}

// Matches reports whether a driver operating driverType may claim a ride
// that requested v.
func (v VehicleType) Matches(driverType VehicleType) bool {
	if !v.IsSpecified() {
		return true
	}
	for _, allowed := range driverEligibility[v] {
		if allowed == driverType {
			return true
		}
	}
	return false
}

// Topic is the dispatch topic for rides requesting this type.
func (v VehicleType) Topic() string {
	return "vehicle:" + string(v)
}

func (v VehicleType) String() string {
	if v == VehicleTypeUnspecified {
		return "unspecified"
	}
	return string(v)
}

// EligibleRideTypes is the inverse of Matches: every requested type a driver
// of driverType may see, including Unspecified.
func EligibleRideTypes(driverType VehicleType) []VehicleType {
	eligible := []VehicleType{VehicleTypeUnspecified}
	for _, v := range AllVehicleTypes() {
		if v.Matches(driverType) {
			eligible = append(eligible, v)
		}
	}
	return eligible
}
