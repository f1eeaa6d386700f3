// README: Driver persistence contract.
package driver

import (
	"context"
	"time"

	"cabdispatch/internal/types"
)

// Store is implemented by the Firestore document store and the in-memory store.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	// Upsert creates the profile or merges the mutable fields of an existing one.
	Upsert(ctx context.Context, d *Driver) error
	// SetAvailability toggles availability; going offline clears the location.
	SetAvailability(ctx context.Context, id types.ID, a Availability, loc *types.Point, at time.Time) error
	// UpdateLocation writes the new position and returns the previous one.
	UpdateLocation(ctx context.Context, id types.ID, loc types.Point, at time.Time) (*types.Point, error)
	SetPaused(ctx context.Context, id types.ID, paused bool, at time.Time) error
	// ListActive returns administratively Active drivers of one operator, regardless of availability.
	ListActive(ctx context.Context, operatorCode string) ([]Driver, error)
}
