// README: Operator profiles and dispatch settings in Firestore.
package operator

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"cabdispatch/internal/infra"
)

const (
	OperatorsCollection = "operators"
	SettingsCollection  = "operatorSettings"
)

type settingsDoc struct {
	DispatchMode                 string    `firestore:"dispatchMode"`
	AutoDispatchEnabled          bool      `firestore:"autoDispatchEnabled"`
	MaxAutoAcceptWaitTimeMinutes int64     `firestore:"maxAutoAcceptWaitTimeMinutes"`
	EnableSurgePricing           bool      `firestore:"enableSurgePricing"`
	OperatorSurgePercentage      float64   `firestore:"operatorSurgePercentage"`
	UpdatedAt                    time.Time `firestore:"updatedAt"`
}

type operatorDoc struct {
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) GetSettings(ctx context.Context, operatorID string) (*Settings, error) {
	snap, err := s.client.Collection(SettingsCollection).Doc(operatorID).Get(ctx)
	if infra.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc settingsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &Settings{
		OperatorID:                   operatorID,
		DispatchMode:                 DispatchMode(doc.DispatchMode),
		AutoDispatchEnabled:          doc.AutoDispatchEnabled,
		MaxAutoAcceptWaitTimeMinutes: int(doc.MaxAutoAcceptWaitTimeMinutes),
		EnableSurgePricing:           doc.EnableSurgePricing,
		OperatorSurgePercentage:      doc.OperatorSurgePercentage,
		UpdatedAt:                    doc.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) PutSettings(ctx context.Context, st Settings) error {
	_, err := s.client.Collection(SettingsCollection).Doc(st.OperatorID).Set(ctx, settingsDoc{
		DispatchMode:                 string(st.DispatchMode),
		AutoDispatchEnabled:          st.AutoDispatchEnabled,
		MaxAutoAcceptWaitTimeMinutes: int64(st.MaxAutoAcceptWaitTimeMinutes),
		EnableSurgePricing:           st.EnableSurgePricing,
		OperatorSurgePercentage:      st.OperatorSurgePercentage,
		UpdatedAt:                    st.UpdatedAt,
	})
	return err
}

func (s *FirestoreStore) CreateOperator(ctx context.Context, o Operator) error {
	_, err := s.client.Collection(OperatorsCollection).Doc(o.ID).Create(ctx, operatorDoc{
		Name:      o.Name,
		CreatedAt: o.CreatedAt,
	})
	return err
}
