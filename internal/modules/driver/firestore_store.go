// README: Driver store backed by the Firestore "drivers" collection.
package driver

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	"cabdispatch/internal/infra"
	"cabdispatch/internal/types"
)

const Collection = "drivers"

// Document is the Firestore shape of a driver profile.
type Document struct {
	Name            string         `firestore:"name"`
	OperatorCode    string         `firestore:"operatorCode"`
	VehicleCategory string         `firestore:"vehicleCategory"`
	VehicleDetails  string         `firestore:"vehicleDetails"`
	Phone           string         `firestore:"phone,omitempty"`
	Status          string         `firestore:"status"`
	Availability    string         `firestore:"availability"`
	Location        *latlng.LatLng `firestore:"location"`
	Paused          bool           `firestore:"paused"`
	CreatedAt       time.Time      `firestore:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

func NewDocument(d *Driver) Document {
	return Document{
		Name:            d.Name,
		OperatorCode:    d.OperatorCode,
		VehicleCategory: d.VehicleCategory,
		VehicleDetails:  d.VehicleDetails,
		Phone:           d.Phone,
		Status:          string(d.Status),
		Availability:    string(d.Availability),
		Location:        infra.GeoPoint(d.Location),
		Paused:          d.Paused,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (doc Document) Driver(id types.ID) Driver {
	return Driver{
		ID:              id,
		Name:            doc.Name,
		OperatorCode:    doc.OperatorCode,
		VehicleCategory: doc.VehicleCategory,
		VehicleDetails:  doc.VehicleDetails,
		Phone:           doc.Phone,
		Status:          Status(doc.Status),
		Availability:    Availability(doc.Availability),
		Location:        infra.PointFromGeo(doc.Location),
		Paused:          doc.Paused,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// FromSnapshot decodes a driver document snapshot.
func FromSnapshot(snap *firestore.DocumentSnapshot) (Driver, error) {
	var doc Document
	if err := snap.DataTo(&doc); err != nil {
		return Driver{}, err
	}
	return doc.Driver(types.ID(snap.Ref.ID)), nil
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) ref(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(Collection).Doc(string(id))
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	snap, err := s.ref(id).Get(ctx)
	if infra.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *FirestoreStore) Upsert(ctx context.Context, d *Driver) error {
	_, err := s.ref(d.ID).Set(ctx, NewDocument(d))
	return err
}

func (s *FirestoreStore) SetAvailability(ctx context.Context, id types.ID, a Availability, loc *types.Point, at time.Time) error {
	updates := []firestore.Update{
		{Path: "availability", Value: string(a)},
		{Path: "updatedAt", Value: at},
	}
	if a == AvailabilityOffline {
		updates = append(updates,
			firestore.Update{Path: "location", Value: firestore.Delete},
			firestore.Update{Path: "paused", Value: false},
		)
	} else if loc != nil {
		updates = append(updates, firestore.Update{Path: "location", Value: infra.GeoPoint(loc)})
	}
	return s.update(ctx, id, updates)
}

func (s *FirestoreStore) UpdateLocation(ctx context.Context, id types.ID, loc types.Point, at time.Time) (*types.Point, error) {
	var before *types.Point
	ref := s.ref(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if infra.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		d, err := FromSnapshot(snap)
		if err != nil {
			return err
		}
		before = d.Location
		return tx.Update(ref, []firestore.Update{
			{Path: "location", Value: infra.GeoPoint(&loc)},
			{Path: "updatedAt", Value: at},
		})
	})
	if err != nil {
		return nil, err
	}
	return before, nil
}

func (s *FirestoreStore) SetPaused(ctx context.Context, id types.ID, paused bool, at time.Time) error {
	return s.update(ctx, id, []firestore.Update{
		{Path: "paused", Value: paused},
		{Path: "updatedAt", Value: at},
	})
}

func (s *FirestoreStore) ListActive(ctx context.Context, operatorCode string) ([]Driver, error) {
	snaps, err := s.client.Collection(Collection).
		Where("status", "==", string(StatusActive)).
		Where("operatorCode", "==", operatorCode).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Driver, 0, len(snaps))
	for _, snap := range snaps {
		d, err := FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *FirestoreStore) update(ctx context.Context, id types.ID, updates []firestore.Update) error {
	_, err := s.ref(id).Update(ctx, updates)
	if infra.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
