// README: Pure geographic helpers: great-circle distance and straight-line interpolation.
package location

import (
	"math"

	"bridgetalk/internal/types"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance in metres between two
// points specified in decimal degrees.
func HaversineMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// Interpolate returns the point a fraction f of the way from a to b along a
// straight line in degree space. Good enough for the short hops between fixes.
func Interpolate(a, b types.Point, f float64) types.Point {
	return types.Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
