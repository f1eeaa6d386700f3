// Package memory is an in-process implementation of every dispatch store, used by
// tests and by local runs without Firebase. All stores share one lock so the
// multi-document writes (assign, resolve, reclaim) are atomic like their Firestore
// transaction counterparts.
package memory

import (
	"sync"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/types"
)

type DB struct {
	mu            sync.Mutex
	bookings      map[types.ID]*booking.Booking
	drivers       map[types.ID]*driver.Driver
	offers        map[types.ID]*offer.Offer
	settings      map[string]operator.Settings
	operators     map[string]operator.Operator
	counters      map[string]int64
	notifications []notification.Notification

	hookMu sync.RWMutex
	hook   func(events.Event)
}

func New() *DB {
	return &DB{
		bookings:  make(map[types.ID]*booking.Booking),
		drivers:   make(map[types.ID]*driver.Driver),
		offers:    make(map[types.ID]*offer.Offer),
		settings:  make(map[string]operator.Settings),
		operators: make(map[string]operator.Operator),
		counters:  make(map[string]int64),
	}
}

// OnChange registers fn to receive the change feed: bookings entering
// pending_assignment and driver position changes. It plays the role of the
// Firestore snapshot watchers.
func (db *DB) OnChange(fn func(events.Event)) {
	db.hookMu.Lock()
	defer db.hookMu.Unlock()
	db.hook = fn
}

func (db *DB) emit(evts []events.Event) {
	db.hookMu.RLock()
	fn := db.hook
	db.hookMu.RUnlock()
	if fn == nil {
		return
	}
	for _, e := range evts {
		fn(e)
	}
}

func (db *DB) Bookings() *BookingStore   { return &BookingStore{db: db} }
func (db *DB) Drivers() *DriverStore     { return &DriverStore{db: db} }
func (db *DB) Offers() *OfferStore       { return &OfferStore{db: db} }
func (db *DB) Operators() *OperatorStore { return &OperatorStore{db: db} }
func (db *DB) Counters() *CounterStore   { return &CounterStore{db: db} }
func (db *DB) Notifications() []notification.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]notification.Notification, len(db.notifications))
	copy(out, db.notifications)
	return out
}

func clonePoint(p *types.Point) *types.Point {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
