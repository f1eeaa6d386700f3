// README: Offer store backed by the Firestore "rideOffers" collection.
package offer

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"cabdispatch/internal/infra"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/types"
)

const Collection = "rideOffers"

type moneyDoc struct {
	Amount   int64  `firestore:"amount"`
	Currency string `firestore:"currency"`
}

type detailsDoc struct {
	BookingDisplayID       string           `firestore:"displayBookingId"`
	Pickup                 infra.PlaceDoc   `firestore:"pickupLocation"`
	Dropoff                infra.PlaceDoc   `firestore:"dropoffLocation"`
	Stops                  []infra.PlaceDoc `firestore:"stops"`
	FareEstimate           moneyDoc         `firestore:"fareEstimate"`
	PaymentMethod          string           `firestore:"paymentMethod"`
	PassengerName          string           `firestore:"passengerName"`
	PassengerPhone         string           `firestore:"passengerPhone"`
	IsPriority             bool             `firestore:"isPriorityPickup"`
	IsAccountJob           bool             `firestore:"isAccountJob"`
	AccountJobPIN          string           `firestore:"accountJobPin,omitempty"`
	DistanceToPickupMeters float64          `firestore:"distanceToPickupMeters"`
	PickupEtaMinutes       int64            `firestore:"pickupEtaMinutes"`
}

type Document struct {
	BookingID   string     `firestore:"bookingId"`
	DriverID    string     `firestore:"driverId"`
	Details     detailsDoc `firestore:"offerDetails"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ExpiresAt   time.Time  `firestore:"expiresAt"`
	RespondedAt *time.Time `firestore:"respondedAt"`
}

func NewDocument(o *Offer) Document {
	d := o.Details
	return Document{
		BookingID: string(o.BookingID),
		DriverID:  string(o.DriverID),
		Details: detailsDoc{
			BookingDisplayID:       d.BookingDisplayID,
			Pickup:                 infra.NewPlaceDoc(d.Pickup),
			Dropoff:                infra.NewPlaceDoc(d.Dropoff),
			Stops:                  infra.NewPlaceDocs(d.Stops),
			FareEstimate:           moneyDoc{Amount: d.FareEstimate.Amount, Currency: d.FareEstimate.Currency},
			PaymentMethod:          d.PaymentMethod,
			PassengerName:          d.PassengerName,
			PassengerPhone:         d.PassengerPhone,
			IsPriority:             d.IsPriority,
			IsAccountJob:           d.IsAccountJob,
			AccountJobPIN:          d.AccountJobPIN,
			DistanceToPickupMeters: d.DistanceToPickupMeters,
			PickupEtaMinutes:       int64(d.PickupEtaMinutes),
		},
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		ExpiresAt:   o.ExpiresAt,
		RespondedAt: o.RespondedAt,
	}
}

func (doc Document) Offer(id types.ID) Offer {
	d := doc.Details
	return Offer{
		ID:        id,
		BookingID: types.ID(doc.BookingID),
		DriverID:  types.ID(doc.DriverID),
		Details: Details{
			BookingDisplayID:       d.BookingDisplayID,
			Pickup:                 d.Pickup.Place(),
			Dropoff:                d.Dropoff.Place(),
			Stops:                  infra.PlacesFromDocs(d.Stops),
			FareEstimate:           types.Money{Amount: d.FareEstimate.Amount, Currency: d.FareEstimate.Currency},
			PaymentMethod:          d.PaymentMethod,
			PassengerName:          d.PassengerName,
			PassengerPhone:         d.PassengerPhone,
			IsPriority:             d.IsPriority,
			IsAccountJob:           d.IsAccountJob,
			AccountJobPIN:          d.AccountJobPIN,
			DistanceToPickupMeters: d.DistanceToPickupMeters,
			PickupEtaMinutes:       int(d.PickupEtaMinutes),
		},
		Status:      Status(doc.Status),
		CreatedAt:   doc.CreatedAt,
		ExpiresAt:   doc.ExpiresAt,
		RespondedAt: doc.RespondedAt,
	}
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*Offer, error) {
	var doc Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	o := doc.Offer(types.ID(snap.Ref.ID))
	return &o, nil
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) offerRef(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(Collection).Doc(string(id))
}

func (s *FirestoreStore) bookingRef(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(booking.Collection).Doc(string(id))
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (*Offer, error) {
	snap, err := s.offerRef(id).Get(ctx)
	if infra.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSnapshot(snap)
}

func (s *FirestoreStore) Assign(ctx context.Context, bookingID types.ID, build BuildFunc) (*Offer, error) {
	bref := s.bookingRef(bookingID)
	var out *Offer
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(bref)
		if infra.IsNotFound(err) {
			return booking.ErrNotFound
		}
		if err != nil {
			return err
		}
		b, err := booking.FromSnapshot(snap)
		if err != nil {
			return err
		}
		o, err := build(b)
		if err != nil {
			return err
		}
		if err := tx.Set(bref, booking.NewDocument(b)); err != nil {
			return err
		}
		if err := tx.Create(s.offerRef(o.ID), NewDocument(o)); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FirestoreStore) Resolve(ctx context.Context, offerID types.ID, fn ResolveFunc) (*Offer, error) {
	oref := s.offerRef(offerID)
	var out *Offer
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		osnap, err := tx.Get(oref)
		if infra.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		o, err := fromSnapshot(osnap)
		if err != nil {
			return err
		}
		bref := s.bookingRef(o.BookingID)
		bsnap, err := tx.Get(bref)
		if infra.IsNotFound(err) {
			return booking.ErrNotFound
		}
		if err != nil {
			return err
		}
		b, err := booking.FromSnapshot(bsnap)
		if err != nil {
			return err
		}
		if err := fn(o, b); err != nil {
			return err
		}
		if err := tx.Set(oref, NewDocument(o)); err != nil {
			return err
		}
		if err := tx.Set(bref, booking.NewDocument(b)); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FirestoreStore) ListDue(ctx context.Context, now time.Time, limit int) ([]Offer, error) {
	snaps, err := s.client.Collection(Collection).
		Where("status", "==", string(StatusPending)).
		Where("expiresAt", "<=", now).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Offer, 0, len(snaps))
	for _, snap := range snaps {
		o, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}
