// README: Firestore shape of the "bookings" collection.
package booking

import (
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	"cabdispatch/internal/infra"
	"cabdispatch/internal/types"
)

const Collection = "bookings"

type moneyDoc struct {
	Amount   int64  `firestore:"amount"`
	Currency string `firestore:"currency"`
}

// Document is the stored form of a Booking. OperatorID is the resolved dispatch
// operator, kept denormalized for the pending-per-operator query.
type Document struct {
	DisplayID             string           `firestore:"displayBookingId"`
	PassengerID           string           `firestore:"passengerId"`
	PassengerName         string           `firestore:"passengerName"`
	PassengerPhone        string           `firestore:"passengerPhone"`
	OriginatingOperatorID string           `firestore:"originatingOperatorId"`
	PreferredOperatorID   string           `firestore:"preferredOperatorId"`
	OperatorID            string           `firestore:"operatorId"`
	Pickup                infra.PlaceDoc   `firestore:"pickupLocation"`
	Dropoff               infra.PlaceDoc   `firestore:"dropoffLocation"`
	Stops                 []infra.PlaceDoc `firestore:"stops"`
	FareEstimate          moneyDoc         `firestore:"fareEstimate"`
	PaymentMethod         string           `firestore:"paymentMethod"`
	IsPriority            bool             `firestore:"isPriorityPickup"`
	IsAccountJob          bool             `firestore:"isAccountJob"`
	AccountJobPIN         string           `firestore:"accountJobPin,omitempty"`
	Status                string           `firestore:"status"`

	DriverID              string         `firestore:"driverId"`
	DriverName            string         `firestore:"driverName"`
	DriverVehicleDetails  string         `firestore:"driverVehicleDetails"`
	DriverCurrentLocation *latlng.LatLng `firestore:"driverCurrentLocation"`
	DriverEtaMinutes      *int64         `firestore:"driverEtaMinutes"`
	DispatchMethod        string         `firestore:"dispatchMethod"`
	CurrentOfferID        string         `firestore:"currentOfferId"`
	DeclinedDriverIDs     []string       `firestore:"declinedDriverIds"`

	CancellationReason string     `firestore:"cancellationReason,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
	TimeoutAt          time.Time  `firestore:"timeoutAt"`
	AcceptedAt         *time.Time `firestore:"acceptedAt"`
	ArrivedAt          *time.Time `firestore:"arrivedAt"`
	StartedAt          *time.Time `firestore:"startedAt"`
	CompletedAt        *time.Time `firestore:"completedAt"`
	CancelledAt        *time.Time `firestore:"cancelledAt"`
}

func NewDocument(b *Booking) Document {
	doc := Document{
		DisplayID:             b.DisplayID,
		PassengerID:           string(b.PassengerID),
		PassengerName:         b.PassengerName,
		PassengerPhone:        b.PassengerPhone,
		OriginatingOperatorID: b.OriginatingOperatorID,
		PreferredOperatorID:   b.PreferredOperatorID,
		OperatorID:            b.OperatorID(),
		Pickup:                infra.NewPlaceDoc(b.Pickup),
		Dropoff:               infra.NewPlaceDoc(b.Dropoff),
		Stops:                 infra.NewPlaceDocs(b.Stops),
		FareEstimate:          moneyDoc{Amount: b.FareEstimate.Amount, Currency: b.FareEstimate.Currency},
		PaymentMethod:         b.PaymentMethod,
		IsPriority:            b.IsPriority,
		IsAccountJob:          b.IsAccountJob,
		AccountJobPIN:         b.AccountJobPIN,
		Status:                string(b.Status),
		DriverID:              string(b.DriverID),
		DriverName:            b.DriverName,
		DriverVehicleDetails:  b.DriverVehicleDetails,
		DriverCurrentLocation: infra.GeoPoint(b.DriverCurrentLocation),
		DispatchMethod:        string(b.DispatchMethod),
		CurrentOfferID:        string(b.CurrentOfferID),
		CancellationReason:    b.CancellationReason,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
		TimeoutAt:             b.TimeoutAt,
		AcceptedAt:            b.AcceptedAt,
		ArrivedAt:             b.ArrivedAt,
		StartedAt:             b.StartedAt,
		CompletedAt:           b.CompletedAt,
		CancelledAt:           b.CancelledAt,
	}
	for _, id := range b.DeclinedDriverIDs {
		doc.DeclinedDriverIDs = append(doc.DeclinedDriverIDs, string(id))
	}
	if b.DriverEtaMinutes != nil {
		eta := int64(*b.DriverEtaMinutes)
		doc.DriverEtaMinutes = &eta
	}
	return doc
}

func (doc Document) Booking(id types.ID) Booking {
	b := Booking{
		ID:                    id,
		DisplayID:             doc.DisplayID,
		PassengerID:           types.ID(doc.PassengerID),
		PassengerName:         doc.PassengerName,
		PassengerPhone:        doc.PassengerPhone,
		OriginatingOperatorID: doc.OriginatingOperatorID,
		PreferredOperatorID:   doc.PreferredOperatorID,
		Pickup:                doc.Pickup.Place(),
		Dropoff:               doc.Dropoff.Place(),
		Stops:                 infra.PlacesFromDocs(doc.Stops),
		FareEstimate:          types.Money{Amount: doc.FareEstimate.Amount, Currency: doc.FareEstimate.Currency},
		PaymentMethod:         doc.PaymentMethod,
		IsPriority:            doc.IsPriority,
		IsAccountJob:          doc.IsAccountJob,
		AccountJobPIN:         doc.AccountJobPIN,
		Status:                Status(doc.Status),
		DriverID:              types.ID(doc.DriverID),
		DriverName:            doc.DriverName,
		DriverVehicleDetails:  doc.DriverVehicleDetails,
		DriverCurrentLocation: infra.PointFromGeo(doc.DriverCurrentLocation),
		DispatchMethod:        DispatchMethod(doc.DispatchMethod),
		CurrentOfferID:        types.ID(doc.CurrentOfferID),
		CancellationReason:    doc.CancellationReason,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
		TimeoutAt:             doc.TimeoutAt,
		AcceptedAt:            doc.AcceptedAt,
		ArrivedAt:             doc.ArrivedAt,
		StartedAt:             doc.StartedAt,
		CompletedAt:           doc.CompletedAt,
		CancelledAt:           doc.CancelledAt,
	}
	for _, id := range doc.DeclinedDriverIDs {
		b.DeclinedDriverIDs = append(b.DeclinedDriverIDs, types.ID(id))
	}
	if doc.DriverEtaMinutes != nil {
		eta := int(*doc.DriverEtaMinutes)
		b.DriverEtaMinutes = &eta
	}
	return b
}

// FromSnapshot decodes a booking document snapshot.
func FromSnapshot(snap *firestore.DocumentSnapshot) (*Booking, error) {
	var doc Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	b := doc.Booking(types.ID(snap.Ref.ID))
	return &b, nil
}
