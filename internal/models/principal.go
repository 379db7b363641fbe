package models

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	// RoleSystem is used by trusted collaborators such as the payment service.
	RoleSystem Role = "system"
)

func (r Role) IsValid() bool {
	return r == RolePassenger || r == RoleDriver || r == RoleSystem
}

// Principal is the authenticated caller as asserted by the identity layer.
type Principal struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	VehicleType VehicleType `json:"vehicle_type,omitempty"`
	Name        string      `json:"name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	VehicleNo   string      `json:"vehicle_number,omitempty"`
}

func (p Principal) IsPassenger() bool { return p.Role == RolePassenger }
func (p Principal) IsDriver() bool    { return p.Role == RoleDriver }
func (p Principal) IsSystem() bool    { return p.Role == RoleSystem }

// DriverProfile is the contact card sent to a passenger once a driver accepts.
type DriverProfile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	VehicleType VehicleType `json:"vehicle_type"`
	VehicleNo   string      `json:"vehicle_number,omitempty"`
}

func (p Principal) DriverProfile() *DriverProfile {
	return &DriverProfile{
		ID:          p.ID,
		Name:        p.Name,
		Phone:       p.Phone,
		VehicleType: p.VehicleType,
		VehicleNo:   p.VehicleNo,
	}
}

// DriverAvailability is reported by drivers going on or off duty.
type DriverAvailability struct {
	DriverID    string      `json:"driver_id"`
	VehicleType VehicleType `json:"vehicle_type"`
	Online      bool        `json:"online"`
	Lat         float64     `json:"lat"`
	Lng         float64     `json:"lng"`
}
