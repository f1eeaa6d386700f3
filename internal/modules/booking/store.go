// README: Booking persistence contract.
package booking

import (
	"context"

	"cabdispatch/internal/types"
)

// Store is the subset the booking service needs; concrete stores also serve the
// location propagator, the sweeper and the wait estimator through their own interfaces.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	// Transition returns ErrConflict when the booking left t.From before the write.
	Transition(ctx context.Context, t Transition) (*Booking, error)
}

// EventLog records status changes for audit.
type EventLog interface {
	Append(ctx context.Context, e *Event) error
}
