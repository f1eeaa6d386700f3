// README: Nearest-driver selection by great-circle distance.
package geo

import (
	"math"

	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/types"
)

// FindNearest returns the candidate closest to pickup and its distance in meters.
// Candidates without a valid location are skipped. Equal distances resolve to the
// lower driver ID so the choice is stable across runs. It returns nil when no
// candidate has a usable location.
func FindNearest(pickup types.Point, candidates []driver.Driver) (*driver.Driver, float64) {
	var best *driver.Driver
	bestDist := math.Inf(1)
	for i := range candidates {
		c := &candidates[i]
		if c.Location == nil || !c.Location.Valid() {
			continue
		}
		d := DistanceMeters(pickup, *c.Location)
		if d < bestDist || (d == bestDist && best != nil && c.ID < best.ID) {
			best = c
			bestDist = d
		}
	}
	if best == nil {
		return nil, 0
	}
	out := *best
	return &out, bestDist
}
