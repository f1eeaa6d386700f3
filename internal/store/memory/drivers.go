package memory

import (
	"context"
	"sort"
	"time"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/types"
)

type DriverStore struct {
	db *DB
}

func cloneDriver(d *driver.Driver) *driver.Driver {
	c := *d
	c.Location = clonePoint(d.Location)
	return &c
}

func movedEvent(id types.ID, before, after *types.Point) []events.Event {
	if types.SamePosition(before, after) {
		return nil
	}
	return []events.Event{{
		Topic:    events.TopicDriverUpdated,
		DriverID: id,
		Before:   clonePoint(before),
		After:    clonePoint(after),
	}}
}

func (s *DriverStore) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return cloneDriver(d), nil
}

func (s *DriverStore) Upsert(_ context.Context, d *driver.Driver) error {
	s.db.mu.Lock()
	var before *types.Point
	if cur, ok := s.db.drivers[d.ID]; ok {
		before = clonePoint(cur.Location)
	}
	s.db.drivers[d.ID] = cloneDriver(d)
	s.db.mu.Unlock()
	s.db.emit(movedEvent(d.ID, before, d.Location))
	return nil
}

func (s *DriverStore) SetAvailability(_ context.Context, id types.ID, a driver.Availability, loc *types.Point, at time.Time) error {
	s.db.mu.Lock()
	cur, ok := s.db.drivers[id]
	if !ok {
		s.db.mu.Unlock()
		return driver.ErrNotFound
	}
	before := clonePoint(cur.Location)
	d := cloneDriver(cur)
	d.Availability = a
	d.UpdatedAt = at
	if a == driver.AvailabilityOffline {
		d.Location = nil
		d.Paused = false
	} else if loc != nil {
		d.Location = clonePoint(loc)
	}
	s.db.drivers[id] = d
	after := clonePoint(d.Location)
	s.db.mu.Unlock()
	s.db.emit(movedEvent(id, before, after))
	return nil
}

func (s *DriverStore) UpdateLocation(_ context.Context, id types.ID, loc types.Point, at time.Time) (*types.Point, error) {
	s.db.mu.Lock()
	cur, ok := s.db.drivers[id]
	if !ok {
		s.db.mu.Unlock()
		return nil, driver.ErrNotFound
	}
	before := clonePoint(cur.Location)
	d := cloneDriver(cur)
	d.Location = &loc
	d.UpdatedAt = at
	s.db.drivers[id] = d
	s.db.mu.Unlock()
	s.db.emit(movedEvent(id, before, &loc))
	return before, nil
}

func (s *DriverStore) SetPaused(_ context.Context, id types.ID, paused bool, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	d := cloneDriver(cur)
	d.Paused = paused
	d.UpdatedAt = at
	s.db.drivers[id] = d
	return nil
}

func (s *DriverStore) ListActive(_ context.Context, operatorCode string) ([]driver.Driver, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []driver.Driver
	for _, d := range s.db.drivers {
		if d.Status == driver.StatusActive && d.OperatorCode == operatorCode {
			out = append(out, *cloneDriver(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
