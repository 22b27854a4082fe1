package ledger

// PeriodSeconds is the width of one decay period. All decay math runs in
// period units, not raw timestamps.
const PeriodSeconds = 7 * 24 * 3600

const (
	// MinLockPeriods is the shortest accepted lock duration.
	MinLockPeriods = 1
	// MaxLockPeriods is the longest accepted lock duration (~2 years).
	MaxLockPeriods = 104
)

// Clock converts wall-clock timestamps into discrete period indexes relative
// to a configured epoch start.
type Clock struct {
	EpochStart int64
}

// ToPeriod returns the period containing the given unix timestamp.
// Timestamps before the epoch start map to period 0.
func (c Clock) ToPeriod(ts int64) uint64 {
	if ts <= c.EpochStart {
		return 0
	}
	return uint64(ts-c.EpochStart) / PeriodSeconds
}

// PeriodStart returns the unix timestamp at which the given period begins
func (c Clock) PeriodStart(period uint64) int64 {
	return c.EpochStart + int64(period)*PeriodSeconds
}

// PeriodsIn converts a duration in seconds into whole periods, truncating
// any remainder
func PeriodsIn(seconds uint64) uint64 {
	return seconds / PeriodSeconds
}
