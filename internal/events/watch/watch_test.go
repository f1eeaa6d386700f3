package watch

import (
	"context"
	"errors"
	"testing"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/location"
	"cabdispatch/internal/types"
)

func TestBookingEvent(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{Added, true},
		{Modified, false},
		{Removed, false},
	}
	for _, tc := range cases {
		e, ok := BookingEvent(Change{Kind: tc.kind, ID: "b1"})
		if ok != tc.want {
			t.Fatalf("kind %d: ok = %v", tc.kind, ok)
		}
		if ok && (e.Topic != events.TopicBookingPending || e.BookingID != "b1") {
			t.Fatalf("event = %+v", e)
		}
	}
}

func TestDriverEventSequence(t *testing.T) {
	cache := location.NewMemoryPositionCache()
	ctx := context.Background()
	a := &types.Point{Lat: 51.5, Lng: -0.1}
	b := &types.Point{Lat: 51.6, Lng: -0.1}

	steps := []struct {
		name       string
		ch         Change
		wantEvent  bool
		wantBefore *types.Point
	}{
		{"comes online", Change{Kind: Added, ID: "DR1", Location: a}, true, nil},
		{"same fix", Change{Kind: Modified, ID: "DR1", Location: a}, false, nil},
		{"moves", Change{Kind: Modified, ID: "DR1", Location: b}, true, a},
		{"no location", Change{Kind: Modified, ID: "DR1"}, false, nil},
		{"back with fix", Change{Kind: Modified, ID: "DR1", Location: b}, true, nil},
		{"goes offline", Change{Kind: Removed, ID: "DR1", Location: b}, false, nil},
		{"online again", Change{Kind: Added, ID: "DR1", Location: b}, true, nil},
	}
	for _, st := range steps {
		e, ok, err := DriverEvent(ctx, cache, st.ch)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if ok != st.wantEvent {
			t.Fatalf("%s: event = %v", st.name, ok)
		}
		if !ok {
			continue
		}
		if e.Topic != events.TopicDriverUpdated || e.DriverID != "DR1" {
			t.Fatalf("%s: event = %+v", st.name, e)
		}
		if !types.SamePosition(e.Before, st.wantBefore) || !types.SamePosition(e.After, st.ch.Location) {
			t.Fatalf("%s: before %v after %v", st.name, e.Before, e.After)
		}
	}
}

type brokenCache struct{}

func (brokenCache) Swap(context.Context, types.ID, *types.Point) (*types.Point, error) {
	return nil, errors.New("redis down")
}

func TestDriverEventCacheError(t *testing.T) {
	_, ok, err := DriverEvent(context.Background(), brokenCache{}, Change{Kind: Added, ID: "DR1", Location: &types.Point{Lat: 1, Lng: 1}})
	if err == nil || ok {
		t.Fatalf("ok = %v, err = %v", ok, err)
	}
}
