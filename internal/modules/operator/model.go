// README: Operator dispatch settings and their onboarding defaults.
package operator

import "time"

type DispatchMode string

const (
	ModeAuto   DispatchMode = "auto"
	ModeManual DispatchMode = "manual"
)

type Settings struct {
	OperatorID                   string
	DispatchMode                 DispatchMode
	AutoDispatchEnabled          bool
	MaxAutoAcceptWaitTimeMinutes int
	EnableSurgePricing           bool
	OperatorSurgePercentage      float64
	UpdatedAt                    time.Time
}

// DefaultSettings is what a newly onboarded operator starts with: manual dispatch, automation off.
func DefaultSettings(operatorID string) Settings {
	return Settings{
		OperatorID:                   operatorID,
		DispatchMode:                 ModeManual,
		AutoDispatchEnabled:          false,
		MaxAutoAcceptWaitTimeMinutes: 15,
	}
}

type Operator struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
