package booking

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingAssignment, StatusDriverAssigned, true},
		{StatusPendingAssignment, StatusCancelledNoDriver, true},
		{StatusDriverAssigned, StatusPendingAssignment, true},
		{StatusDriverAssigned, StatusArrivedAtPickup, true},
		{StatusArrivedAtPickup, StatusInProgressWaitAndReturn, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusPendingAssignment, StatusCompleted, false},
		{StatusDriverAssigned, StatusCancelledNoDriver, false},
		{StatusInProgress, StatusCancelledByPassenger, false},
		{StatusCompleted, StatusPendingAssignment, false},
		{StatusCancelledNoDriver, StatusDriverAssigned, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestActiveAndTerminal(t *testing.T) {
	for _, s := range ActiveStatuses {
		if !s.Active() || s.Terminal() {
			t.Errorf("%s should be active and not terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelledNoDriver, StatusCancelledByPassenger, StatusCancelledByOperator} {
		if s.Active() || !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusPendingAssignment.Active() || StatusPendingAssignment.Terminal() {
		t.Error("pending should be neither active nor terminal")
	}
}

func TestOperatorID(t *testing.T) {
	b := Booking{PreferredOperatorID: "OP002"}
	if b.OperatorID() != "OP002" {
		t.Fatalf("got %q", b.OperatorID())
	}
	b.OriginatingOperatorID = "OP001"
	if b.OperatorID() != "OP001" {
		t.Fatalf("originating should win, got %q", b.OperatorID())
	}
}

func TestReleaseDriver(t *testing.T) {
	eta := 4
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	b := Booking{
		Status:               StatusDriverAssigned,
		DriverID:             "OP001/DR0001",
		DriverName:           "Sam",
		DriverVehicleDetails: "Blue Prius",
		DriverEtaMinutes:     &eta,
		DispatchMethod:       DispatchAutoSystem,
		CurrentOfferID:       "offer-1",
	}
	b.ReleaseDriver(now)
	b.DriverID = "OP001/DR0001"
	b.ReleaseDriver(now)

	if b.Status != StatusPendingAssignment {
		t.Fatalf("status = %s", b.Status)
	}
	if b.DriverID != "" || b.DriverName != "" || b.DriverVehicleDetails != "" || b.CurrentOfferID != "" || b.DriverEtaMinutes != nil {
		t.Fatalf("driver fields not cleared: %+v", b)
	}
	if len(b.DeclinedDriverIDs) != 1 || b.DeclinedDriverIDs[0] != "OP001/DR0001" {
		t.Fatalf("declined = %v", b.DeclinedDriverIDs)
	}
	if !b.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %s", b.UpdatedAt)
	}
}
