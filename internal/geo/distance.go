// Package geo measures route geometry on the sphere.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// PointDistance returns the great-circle distance in meters between two
// points (X = lon, Y = lat).
func PointDistance(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b)
}

// PathLength sums the great-circle length of every segment of a path, in meters.
func PathLength(ls orb.LineString) float64 {
	if len(ls) < 2 {
		return 0
	}
	return orbgeo.LengthHaversine(ls)
}

// FormatKm renders meters as kilometres with one decimal, e.g. "4.2 km".
func FormatKm(m float64) string {
	return fmt.Sprintf("%.1f km", m/1000)
}
