package models

import "github.com/shopspring/decimal"

// Lock holds the staked principal of one account. A zero Amount means the
// lock does not exist; no separate deleted marker is stored.
type Lock struct {
	Amount           uint64 `json:"amount"`             // staked principal, token units
	Start            uint64 `json:"start"`              // period the lock began
	End              uint64 `json:"end"`                // period decay reaches zero
	LastExtendPeriod uint64 `json:"last_extend_period"` // period of the latest amount/time extension
}

// Exists reports whether the lock record represents a live lock.
func (l *Lock) Exists() bool {
	return l != nil && l.Amount > 0
}

// Point is one entry in an entity's checkpoint history. Voting power at any
// period p >= Start before the next checkpoint is max(Power - Slope*(p-Start), 0).
type Point struct {
	Power decimal.Decimal `json:"power"` // voting power at Start
	Slope decimal.Decimal `json:"slope"` // per-period decay rate from Start
	Start uint64          `json:"start"` // period this point becomes authoritative
	End   uint64          `json:"end"`   // period decay naturally reaches zero; 0 = no expiry
}

// SlopeChange is a scheduled decay-rate reduction taking effect at Period.
type SlopeChange struct {
	Period uint64          `json:"period"`
	Slope  decimal.Decimal `json:"slope"`
}

// LockedBalance is a point-in-time principal record, independent of decay.
type LockedBalance struct {
	Period uint64 `json:"period"`
	Amount uint64 `json:"amount"`
}
