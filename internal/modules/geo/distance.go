// Package geo holds the pure geographic helpers used by dispatch.
package geo

import (
	"math"

	"cabdispatch/internal/types"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// EtaMinutes converts a straight-line distance to whole minutes at speedKmh, never less than one.
func EtaMinutes(distanceMeters, speedKmh float64) int {
	if speedKmh <= 0 {
		return 1
	}
	m := int(math.Round(distanceMeters / 1000 / speedKmh * 60))
	if m < 1 {
		return 1
	}
	return m
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
