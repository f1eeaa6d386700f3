// README: Dispatch policy gate; decides whether automatic assignment may run for an operator.
package operator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ReasonAllowed         = "allowed"
	ReasonNoSettings      = "no_settings"
	ReasonDisabled        = "auto_dispatch_disabled"
	ReasonManualMode      = "manual_mode"
	ReasonWaitTooLong     = "wait_time_exceeded"
	ReasonSettingsUnknown = "settings_unavailable"
)

type Decision struct {
	Allowed bool
	Reason  string
}

type SettingsReader interface {
	GetSettings(ctx context.Context, operatorID string) (*Settings, error)
}

// WaitEstimator reports how long passengers of an operator are currently waiting for a driver.
type WaitEstimator interface {
	EstimateWait(ctx context.Context, operatorID string, now time.Time) (time.Duration, error)
}

type Policy struct {
	settings SettingsReader
	wait     WaitEstimator
	now      func() time.Time
}

func NewPolicy(settings SettingsReader, wait WaitEstimator) *Policy {
	return &Policy{settings: settings, wait: wait, now: time.Now}
}

// MayAutoAssign evaluates the rules in order; the first failing rule decides. Errors mean "blocked" to callers.
func (p *Policy) MayAutoAssign(ctx context.Context, operatorID string) (Decision, error) {
	s, err := p.settings.GetSettings(ctx, operatorID)
	if errors.Is(err, ErrNotFound) {
		return Decision{Reason: ReasonNoSettings}, nil
	}
	if err != nil {
		return Decision{Reason: ReasonSettingsUnknown}, fmt.Errorf("load dispatch settings %s: %w", operatorID, err)
	}
	if !s.AutoDispatchEnabled {
		return Decision{Reason: ReasonDisabled}, nil
	}
	if s.DispatchMode != ModeAuto {
		return Decision{Reason: ReasonManualMode}, nil
	}
	if s.MaxAutoAcceptWaitTimeMinutes > 0 && p.wait != nil {
		waited, err := p.wait.EstimateWait(ctx, operatorID, p.now())
		if err != nil {
			return Decision{Reason: ReasonSettingsUnknown}, fmt.Errorf("estimate wait %s: %w", operatorID, err)
		}
		if waited > time.Duration(s.MaxAutoAcceptWaitTimeMinutes)*time.Minute {
			return Decision{Reason: ReasonWaitTooLong}, nil
		}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}, nil
}

// PendingQuery finds the creation time of an operator's longest waiting booking.
type PendingQuery interface {
	OldestPending(ctx context.Context, operatorID string) (*time.Time, error)
}

// PendingWaitEstimator measures wait as the age of the oldest booking still looking for a driver.
type PendingWaitEstimator struct {
	bookings PendingQuery
}

func NewPendingWaitEstimator(bookings PendingQuery) *PendingWaitEstimator {
	return &PendingWaitEstimator{bookings: bookings}
}

func (e *PendingWaitEstimator) EstimateWait(ctx context.Context, operatorID string, now time.Time) (time.Duration, error) {
	oldest, err := e.bookings.OldestPending(ctx, operatorID)
	if err != nil {
		return 0, err
	}
	if oldest == nil || oldest.After(now) {
		return 0, nil
	}
	return now.Sub(*oldest), nil
}
