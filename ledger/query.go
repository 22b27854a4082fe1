package ledger

import (
	"github.com/shopspring/decimal"

	"ve-ledger/models"
)

const (
	// DefaultBlacklistLimit is the page size when none is requested.
	DefaultBlacklistLimit = 30
	// MaxBlacklistLimit caps a requested page size.
	MaxBlacklistLimit = 100
)

// VotingPowerAtPeriod returns the account's voting power at the given
// period, past, present or future. Accounts with no checkpoint history have
// zero power.
func (l *Ledger) VotingPowerAtPeriod(account string, period uint64) (decimal.Decimal, error) {
	if account == TotalEntity {
		return l.TotalVotingPowerAtPeriod(period)
	}
	point, err := l.repo.LastPoint(account, period)
	if err != nil {
		return decimal.Zero, err
	}
	if point == nil {
		return decimal.Zero, nil
	}
	if point.Start == period {
		return point.Power, nil
	}
	return pointPowerAt(point, period), nil
}

// VotingPower returns the account's voting power at the given unix time
func (l *Ledger) VotingPower(account string, at int64) (decimal.Decimal, error) {
	return l.VotingPowerAtPeriod(account, l.clock.ToPeriod(at))
}

// VotingPowerNow returns the account's voting power at the current period
func (l *Ledger) VotingPowerNow(account string) (decimal.Decimal, error) {
	return l.VotingPowerAtPeriod(account, l.currentPeriod())
}

// TotalVotingPowerAtPeriod returns aggregate voting power at the given
// period. Scheduled slope reductions between the last aggregate checkpoint
// and the period are folded in, since they change the decay rate
// mid-interval.
func (l *Ledger) TotalVotingPowerAtPeriod(period uint64) (decimal.Decimal, error) {
	point, err := l.repo.LastPoint(TotalEntity, period)
	if err != nil {
		return decimal.Zero, err
	}
	if point == nil {
		return decimal.Zero, nil
	}
	if point.Start == period {
		return point.Power, nil
	}
	changes, err := l.repo.SlopeChangesIn(point.Start, period, 0)
	if err != nil {
		return decimal.Zero, err
	}
	for _, sc := range changes {
		power := pointPowerAt(point, sc.Period)
		slope := point.Slope.Sub(sc.Slope)
		if slope.IsNegative() {
			slope = decimal.Zero
		}
		point = &models.Point{Power: power, Slope: slope, Start: sc.Period}
	}
	return pointPowerAt(point, period), nil
}

// TotalVotingPower returns aggregate voting power at the given unix time
func (l *Ledger) TotalVotingPower(at int64) (decimal.Decimal, error) {
	return l.TotalVotingPowerAtPeriod(l.clock.ToPeriod(at))
}

// TotalVotingPowerNow returns aggregate voting power at the current period
func (l *Ledger) TotalVotingPowerNow() (decimal.Decimal, error) {
	return l.TotalVotingPowerAtPeriod(l.currentPeriod())
}

// LockInfo returns the account's lock record
func (l *Ledger) LockInfo(account string) (*models.Lock, error) {
	lock, err := l.repo.GetLock(account)
	if err != nil {
		return nil, err
	}
	if !lock.Exists() {
		return nil, ErrLockDoesNotExist
	}
	return lock, nil
}

// LockedBalanceAt returns the account's staked principal at the given
// period, independent of voting-power decay
func (l *Ledger) LockedBalanceAt(account string, period uint64) (uint64, error) {
	return l.repo.LockedBalanceAt(account, period)
}

// LockedBalanceAtTime returns the staked principal at the given unix time
func (l *Ledger) LockedBalanceAtTime(account string, at int64) (uint64, error) {
	return l.repo.LockedBalanceAt(account, l.clock.ToPeriod(at))
}

// IsBlacklisted reports blacklist membership for each queried account
func (l *Ledger) IsBlacklisted(accounts []string) (map[string]bool, error) {
	result := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		member, err := l.repo.IsBlacklisted(account)
		if err != nil {
			return nil, err
		}
		result[account] = member
	}
	return result, nil
}

// BlacklistedAccounts returns a page of blacklist members after startAfter
func (l *Ledger) BlacklistedAccounts(startAfter string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultBlacklistLimit
	}
	if limit > MaxBlacklistLimit {
		limit = MaxBlacklistLimit
	}
	return l.repo.BlacklistedAccounts(startAfter, limit)
}
