// README: Driver service handles the online toggle, pause flag and position reports.
package driver

import (
	"context"
	"errors"
	"time"

	"cabdispatch/internal/types"
)

var (
	ErrNotFound     = errors.New("driver not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("driver not online")
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

type GoOnlineCommand struct {
	DriverID        types.ID
	Name            string
	OperatorCode    string
	VehicleCategory string
	VehicleDetails  string
	Phone           string
	Location        types.Point
}

// Move describes one accepted position report.
type Move struct {
	DriverID types.ID
	Before   *types.Point
	After    types.Point
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

// GoOnline creates the profile on first use and marks the driver online at the reported position.
func (s *Service) GoOnline(ctx context.Context, cmd GoOnlineCommand) (*Driver, error) {
	if cmd.DriverID == "" || !cmd.Location.Valid() {
		return nil, ErrBadRequest
	}
	now := s.now()
	existing, err := s.store.Get(ctx, cmd.DriverID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing == nil && cmd.OperatorCode == "" {
		return nil, ErrBadRequest
	}
	loc := cmd.Location
	d := &Driver{
		ID:              cmd.DriverID,
		Name:            cmd.Name,
		OperatorCode:    cmd.OperatorCode,
		VehicleCategory: cmd.VehicleCategory,
		VehicleDetails:  cmd.VehicleDetails,
		Phone:           cmd.Phone,
		Status:          StatusActive,
		Availability:    AvailabilityOnline,
		Location:        &loc,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if existing != nil {
		// operator membership, approval state and creation time belong to the operator, not the driver
		d.OperatorCode = existing.OperatorCode
		d.Status = existing.Status
		d.CreatedAt = existing.CreatedAt
		d.Paused = existing.Paused
		if d.Name == "" {
			d.Name = existing.Name
		}
		if d.VehicleCategory == "" {
			d.VehicleCategory = existing.VehicleCategory
		}
		if d.VehicleDetails == "" {
			d.VehicleDetails = existing.VehicleDetails
		}
		if d.Phone == "" {
			d.Phone = existing.Phone
		}
	}
	if err := s.store.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GoOffline(ctx context.Context, id types.ID) error {
	if id == "" {
		return ErrBadRequest
	}
	return s.store.SetAvailability(ctx, id, AvailabilityOffline, nil, s.now())
}

// UpdateLocation records a position report from an online driver.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, loc types.Point) (*Move, error) {
	if id == "" || !loc.Valid() {
		return nil, ErrBadRequest
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Availability != AvailabilityOnline {
		return nil, ErrInvalidState
	}
	before, err := s.store.UpdateLocation(ctx, id, loc, s.now())
	if err != nil {
		return nil, err
	}
	return &Move{DriverID: id, Before: before, After: loc}, nil
}

// SetPaused excludes or re-includes the driver from automatic offers without going offline.
func (s *Service) SetPaused(ctx context.Context, id types.ID, paused bool) error {
	if id == "" {
		return ErrBadRequest
	}
	return s.store.SetPaused(ctx, id, paused, s.now())
}
