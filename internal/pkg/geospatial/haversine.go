package geospatial

import "math"

const (
	// EarthRadiusMeters is the mean earth radius used for great-circle distance.
	EarthRadiusMeters = 6371000.0

	// KmPerDegree is the flat-earth conversion used for padding and local boxes.
	KmPerDegree = 111.0

	// MetersPerDegree is the planar approximation used by refinement dedup.
	MetersPerDegree = 111000.0
)

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// KmToLatDegrees converts a north-south distance to degrees of latitude.
func KmToLatDegrees(km float64) float64 {
	return km / KmPerDegree
}

// KmToLonDegrees converts an east-west distance to degrees of longitude at the
// given latitude.
func KmToLonDegrees(km, atLat float64) float64 {
	return km / (KmPerDegree * math.Cos(toRad(atLat)))
}

// QuantizeDegrees snaps a coordinate value onto a grid of the given step in
// meters. Used for cache keys.
func QuantizeDegrees(deg, stepMeters float64) int64 {
	step := stepMeters / MetersPerDegree
	return int64(math.Round(deg / step))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
