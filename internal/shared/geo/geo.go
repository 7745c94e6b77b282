package geo

import (
	"math"
	"strconv"
)

const (
	EarthRadiusKm = 6371.0
	deg2rad       = math.Pi / 180.0
)

// HaversineKm returns the great-circle distance in kilometres between two
// points. Non-finite results collapse to 0.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad

	sinDLat := math.Sin(dLat * 0.5)
	sinDLon := math.Sin(dLon * 0.5)
	a := sinDLat*sinDLat + sinDLon*sinDLon*math.Cos(lat1*deg2rad)*math.Cos(lat2*deg2rad)
	c := 2.0 * math.Atan2(math.Sqrt(a), math.Sqrt(1.0-a))

	d := math.Abs(EarthRadiusKm * c)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Distance is HaversineKm over optional coordinates. A missing fix yields 0.
func Distance(lat1, lon1, lat2, lon2 *float64) float64 {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return 0
	}
	return HaversineKm(*lat1, *lon1, *lat2, *lon2)
}

// FormatDistance renders km with a fixed number of decimals.
func FormatDistance(km float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(km, 'f', decimals, 64)
}
