// README: Booking state-event audit log backed by PostgreSQL.
package booking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cabdispatch/internal/types"
)

type PGEventLog struct {
	db *pgxpool.Pool
}

func NewPGEventLog(db *pgxpool.Pool) *PGEventLog {
	return &PGEventLog{db: db}
}

func (l *PGEventLog) Append(ctx context.Context, e *Event) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO booking_state_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// History returns the recorded transitions of one booking, oldest first.
func (l *PGEventLog) History(ctx context.Context, bookingID types.ID) ([]Event, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_type, actor_id, created_at
		FROM booking_state_events
		WHERE booking_id = $1
		ORDER BY id`, string(bookingID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.BookingID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &createdAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
