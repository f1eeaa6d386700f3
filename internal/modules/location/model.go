// README: Driver position change and the outcome of mirroring it onto bookings.
package location

import "cabdispatch/internal/types"

type DriverChange struct {
	DriverID types.ID
	Before   *types.Point
	After    *types.Point
}

// Result counts what happened to each active booking of the driver.
type Result struct {
	Matched int
	Updated int
	// Skipped bookings changed status between the read and the write.
	Skipped int
	Failed  int
}
