package models

// Location is a coordinate with optional human readable address.
type Location struct {
	Lat     float64 `json:"lat" bson:"lat"`
	Lng     float64 `json:"lng" bson:"lng"`
	Address string  `json:"address" bson:"address"`
}

func (l Location) Latitude() float64 {
	return l.Lat
}

func (l Location) Longitude() float64 {
	return l.Lng
}
