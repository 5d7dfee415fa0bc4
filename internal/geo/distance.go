package geo

import (
	"math"

	"convoy/internal/domain/entities"
)

// EarthRadiusKm is the mean Earth radius used by every distance in this
// service, so partitioning and filtering agree on what "inside" means.
const EarthRadiusKm = 6371.0

// DistanceKm calculates the great-circle distance between two points in
// kilometers using the haversine formula. It is symmetric and returns 0 for
// identical points.
func DistanceKm(a, b entities.GeoPoint) float64 {
	lat1Rad := toRadians(a.Latitude)
	lat2Rad := toRadians(b.Latitude)
	deltaLat := toRadians(b.Latitude - a.Latitude)
	deltaLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	// Rounding can push h a hair outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
