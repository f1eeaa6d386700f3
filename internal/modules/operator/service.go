// README: Operator onboarding and dispatch settings maintenance.
package operator

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("operator settings not found")
	ErrBadRequest = errors.New("bad request")
)

type Store interface {
	SettingsReader
	PutSettings(ctx context.Context, s Settings) error
	CreateOperator(ctx context.Context, o Operator) error
}

// OperatorIDs issues sequential operator codes.
type OperatorIDs interface {
	NextOperatorID(ctx context.Context) (string, error)
}

type Service struct {
	store Store
	ids   OperatorIDs
	now   func() time.Time
}

func NewService(store Store, ids OperatorIDs) *Service {
	return &Service{store: store, ids: ids, now: time.Now}
}

// Onboard registers an operator under the next code and stores the default dispatch settings.
func (s *Service) Onboard(ctx context.Context, name string) (*Operator, error) {
	if name == "" {
		return nil, ErrBadRequest
	}
	id, err := s.ids.NextOperatorID(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	o := Operator{ID: id, Name: name, CreatedAt: now}
	if err := s.store.CreateOperator(ctx, o); err != nil {
		return nil, err
	}
	settings := DefaultSettings(id)
	settings.UpdatedAt = now
	if err := s.store.PutSettings(ctx, settings); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) Settings(ctx context.Context, operatorID string) (*Settings, error) {
	return s.store.GetSettings(ctx, operatorID)
}

func (s *Service) UpdateSettings(ctx context.Context, settings Settings) (*Settings, error) {
	if settings.OperatorID == "" || settings.MaxAutoAcceptWaitTimeMinutes < 0 {
		return nil, ErrBadRequest
	}
	if settings.DispatchMode != ModeAuto && settings.DispatchMode != ModeManual {
		return nil, ErrBadRequest
	}
	if _, err := s.store.GetSettings(ctx, settings.OperatorID); err != nil {
		return nil, err
	}
	settings.UpdatedAt = s.now()
	if err := s.store.PutSettings(ctx, settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
