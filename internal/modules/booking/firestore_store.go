// README: Booking store backed by Firestore; every conditional write runs in a transaction.
package booking

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"cabdispatch/internal/infra"
	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/types"
)

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) ref(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(Collection).Doc(string(id))
}

func (s *FirestoreStore) Create(ctx context.Context, b *Booking) error {
	_, err := s.ref(b.ID).Create(ctx, NewDocument(b))
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	snap, err := s.ref(id).Get(ctx)
	if infra.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return FromSnapshot(snap)
}

func (s *FirestoreStore) Transition(ctx context.Context, t Transition) (*Booking, error) {
	return s.mutate(ctx, t.BookingID, t.Apply)
}

func (s *FirestoreStore) UpdateDriverPosition(ctx context.Context, u PositionUpdate) error {
	_, err := s.mutate(ctx, u.BookingID, u.Apply)
	return err
}

func (s *FirestoreStore) ListActiveByDriver(ctx context.Context, driverID types.ID) ([]Booking, error) {
	statuses := make([]string, 0, len(ActiveStatuses))
	for _, st := range ActiveStatuses {
		statuses = append(statuses, string(st))
	}
	q := s.client.Collection(Collection).
		Where("driverId", "==", string(driverID)).
		Where("status", "in", statuses)
	return s.list(ctx, q)
}

func (s *FirestoreStore) ListTimedOut(ctx context.Context, now time.Time, limit int) ([]Booking, error) {
	q := s.client.Collection(Collection).
		Where("status", "==", string(StatusPendingAssignment)).
		Where("timeoutAt", "<", now).
		OrderBy("timeoutAt", firestore.Asc).
		Limit(limit)
	return s.list(ctx, q)
}

// Reclaim cancels the given bookings and writes their notifications in one transaction.
// Bookings that are no longer pending or not yet due are left untouched and omitted from the result.
func (s *FirestoreStore) Reclaim(ctx context.Context, reclaims []Reclaim, now time.Time) ([]Reclaim, error) {
	if len(reclaims) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, len(reclaims))
	for i, r := range reclaims {
		refs[i] = s.ref(r.BookingID)
	}
	var applied []Reclaim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = applied[:0]
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		notifications := s.client.Collection(notification.Collection)
		for i, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			b, err := FromSnapshot(snap)
			if err != nil {
				return err
			}
			if !TimeOut(b, now) {
				continue
			}
			if err := tx.Set(refs[i], NewDocument(b)); err != nil {
				return err
			}
			if n := reclaims[i].Notification; n != nil {
				if err := tx.Create(notifications.Doc(string(n.ID)), notification.NewDocument(*n)); err != nil {
					return err
				}
			}
			applied = append(applied, reclaims[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// OldestPending returns the creation time of the operator's longest waiting booking, or nil when none wait.
func (s *FirestoreStore) OldestPending(ctx context.Context, operatorID string) (*time.Time, error) {
	snaps, err := s.client.Collection(Collection).
		Where("status", "==", string(StatusPendingAssignment)).
		Where("operatorId", "==", operatorID).
		OrderBy("createdAt", firestore.Asc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	b, err := FromSnapshot(snaps[0])
	if err != nil {
		return nil, err
	}
	created := b.CreatedAt
	return &created, nil
}

func (s *FirestoreStore) mutate(ctx context.Context, id types.ID, fn func(*Booking) error) (*Booking, error) {
	ref := s.ref(id)
	var out *Booking
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if infra.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		b, err := FromSnapshot(snap)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		out = b
		return tx.Set(ref, NewDocument(b))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FirestoreStore) list(ctx context.Context, q firestore.Query) ([]Booking, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(snaps))
	for _, snap := range snaps {
		b, err := FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}
