// README: Offer persistence contract; booking and offer always change together.
package offer

import (
	"context"
	"time"

	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/types"
)

// BuildFunc inspects and mutates the booking being assigned and returns the offer to create.
// Returning an error aborts without writing anything.
type BuildFunc func(b *booking.Booking) (*Offer, error)

// ResolveFunc mutates an offer and its booking; both are written only when it returns nil.
type ResolveFunc func(o *Offer, b *booking.Booking) error

type Store interface {
	Get(ctx context.Context, id types.ID) (*Offer, error)
	// Assign reads the booking, runs build and commits the booking update plus the new offer atomically.
	Assign(ctx context.Context, bookingID types.ID, build BuildFunc) (*Offer, error)
	// Resolve reads the offer and its booking and commits fn's changes atomically.
	Resolve(ctx context.Context, offerID types.ID, fn ResolveFunc) (*Offer, error)
	// ListDue returns pending offers whose window closed at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Offer, error)
}
