package ledger

import "github.com/shopspring/decimal"

// Boost grows linearly from 1.0 at zero remaining duration to 2.5 at the
// maximum lock duration.
var (
	maxBoost   = decimal.RequireFromString("2.5")
	boostScale = decimal.RequireFromString("1.5")
	one        = decimal.NewFromInt(1)
)

// Coefficient maps the remaining lock duration in periods to the multiplier
// applied to newly locked principal. The multiplier applies to the increment
// being added at that moment only, never retroactively.
func Coefficient(remaining uint64) decimal.Decimal {
	if remaining >= MaxLockPeriods {
		return maxBoost
	}
	scaled := boostScale.
		Mul(decimal.NewFromUint64(remaining)).
		Div(decimal.NewFromInt(MaxLockPeriods))
	return one.Add(scaled)
}
