// README: Shared identifiers and coordinate value objects.
package types

import "math"

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p holds finite coordinates inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// UnknownPoint stands in for a coordinate that was never supplied; it never passes Valid.
func UnknownPoint() Point { return Point{Lat: math.NaN(), Lng: math.NaN()} }

// Equal compares coordinates exactly; location updates are deduplicated on identical values only.
func (p Point) Equal(o Point) bool {
	return p.Lat == o.Lat && p.Lng == o.Lng
}

// SamePosition treats two optional positions as equal when both are nil or both hold the same coordinates.
func SamePosition(a, b *Point) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Place is a point with a human readable address.
type Place struct {
	Point
	Address string `json:"address"`
}
