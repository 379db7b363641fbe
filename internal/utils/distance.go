package utils

import (
	"math"
)

// CalculateDistance returns the great-circle distance in kilometers.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineDistance(lat1, lon1, lat2, lon2)
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	dLat := lat2Rad - lat1Rad
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// DestinationPoint walks distanceKM from the origin along bearing (degrees).
func DestinationPoint(lat, lng, bearing, distanceKM float64) Point {
	latRad := toRadians(lat)
	lngRad := toRadians(lng)
	brng := toRadians(bearing)
	angular := distanceKM / EarthRadiusKM

	destLat := math.Asin(math.Sin(latRad)*math.Cos(angular) + math.Cos(latRad)*math.Sin(angular)*math.Cos(brng))
	destLng := lngRad + math.Atan2(
		math.Sin(brng)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(destLat),
	)

	return Point{
		Lat: toDegrees(destLat),
		Lng: math.Mod(toDegrees(destLng)+540, 360) - 180,
	}
}

func RoundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// RoundCurrency rounds to two decimal places.
func RoundCurrency(amount float64) float64 {
	return RoundTo(amount, 2)
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
