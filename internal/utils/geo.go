package utils

import (
	"fmt"
	"math"
)

type Point struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Bounds is an axis-aligned rectangle. Both edges are inclusive.
type Bounds struct {
	MinLat float64 `json:"min_lat" bson:"min_lat"`
	MinLng float64 `json:"min_lng" bson:"min_lng"`
	MaxLat float64 `json:"max_lat" bson:"max_lat"`
	MaxLng float64 `json:"max_lng" bson:"max_lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

func (b Bounds) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func IsValidCoordinates(lat, lng float64) bool {
	return IsFinite(lat, lng) && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
