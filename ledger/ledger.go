package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ve-ledger/logger"
	"ve-ledger/metrics"
	"ve-ledger/models"
	"ve-ledger/repository"
)

// TotalEntity is the reserved checkpoint-history entity holding aggregate
// voting power across all accounts.
const TotalEntity = "total"

// slopeReplayLimit caps how many scheduled slope changes one mutating call
// folds into the aggregate. If no account interacts with the ledger for
// longer than this many scheduled expiries, the catch-up under-replays and
// totals drift until corrected by later activity.
const slopeReplayLimit = 20

// TokenBank is the token-custody collaborator. The ledger requests
// transfers and treats non-error completion as success; it never moves
// tokens itself.
type TokenBank interface {
	TransferIn(account string, amount uint64) error
	TransferOut(account string, amount uint64) error
}

// Ledger converts locked principal into linearly-decaying voting power and
// keeps per-account and aggregate checkpoint histories current. Mutating
// operations are serialized by a mutex and commit all storage writes
// atomically or not at all.
type Ledger struct {
	repo  repository.LedgerRepositoryInterface
	bank  TokenBank
	clock Clock
	now   func() int64
	mux   sync.Mutex
}

// NewLedger creates a ledger over the given repository and token bank
func NewLedger(repo repository.LedgerRepositoryInterface, bank TokenBank, epochStart int64) *Ledger {
	return &Ledger{
		repo:  repo,
		bank:  bank,
		clock: Clock{EpochStart: epochStart},
		now:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall-clock source, used by tests to pin periods
func (l *Ledger) SetNowFunc(now func() int64) {
	l.now = now
}

// Clock returns the ledger's period clock
func (l *Ledger) Clock() Clock {
	return l.clock
}

func (l *Ledger) currentPeriod() uint64 {
	return l.clock.ToPeriod(l.now())
}

// CreateLock stakes amount for the given duration in seconds and starts
// voting-power accrual for the account
func (l *Ledger) CreateLock(account string, amount, durationSeconds uint64) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if account == TotalEntity {
		return ErrReservedAccount
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	blacklisted, err := l.repo.IsBlacklisted(account)
	if err != nil {
		return err
	}
	if blacklisted {
		return ErrAccountBlacklisted
	}
	periods := PeriodsIn(durationSeconds)
	if periods < MinLockPeriods || periods > MaxLockPeriods {
		return ErrInvalidDuration
	}
	lock, err := l.repo.GetLock(account)
	if err != nil {
		return err
	}
	if lock.Exists() {
		return ErrLockAlreadyExists
	}

	cur := l.currentPeriod()
	newLock := &models.Lock{
		Amount:           amount,
		Start:            cur,
		End:              cur + periods,
		LastExtendPeriod: cur,
	}

	u := l.repo.NewUnit()
	u.PutLock(account, newLock)
	u.PutLockedBalance(account, cur, amount)
	// the new end must be passed explicitly: after a withdrawal the account
	// still has a terminal point carrying the old end period
	if err := l.checkpoint(u, account, cur, newLock, &amount, &newLock.End); err != nil {
		return err
	}
	if err := l.bank.TransferIn(account, amount); err != nil {
		return err
	}
	if err := u.Commit(); err != nil {
		return err
	}

	metrics.OpDone("create_lock")
	logger.Logger.Info("lock created",
		zap.String("account", account),
		zap.Uint64("amount", amount),
		zap.Uint64("end", newLock.End))
	return nil
}

// ExtendLockAmount adds principal to a live lock. Only the added amount is
// boosted, at the coefficient for the remaining duration.
func (l *Ledger) ExtendLockAmount(account string, amount uint64) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if account == TotalEntity {
		return ErrReservedAccount
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	blacklisted, err := l.repo.IsBlacklisted(account)
	if err != nil {
		return err
	}
	if blacklisted {
		return ErrAccountBlacklisted
	}
	lock, err := l.repo.GetLock(account)
	if err != nil {
		return err
	}
	if !lock.Exists() {
		return ErrLockDoesNotExist
	}
	cur := l.currentPeriod()
	if lock.End <= cur {
		return ErrLockExpired
	}
	if lock.Amount+amount < lock.Amount {
		return ErrAmountOverflow
	}

	lock.Amount += amount
	lock.LastExtendPeriod = cur

	u := l.repo.NewUnit()
	u.PutLock(account, lock)
	u.PutLockedBalance(account, cur, lock.Amount)
	if err := l.checkpoint(u, account, cur, lock, &amount, nil); err != nil {
		return err
	}
	if err := l.bank.TransferIn(account, amount); err != nil {
		return err
	}
	if err := u.Commit(); err != nil {
		return err
	}

	metrics.OpDone("extend_lock_amount")
	logger.Logger.Info("lock amount extended",
		zap.String("account", account),
		zap.Uint64("added", amount),
		zap.Uint64("total", lock.Amount))
	return nil
}

// ExtendLockTime pushes a live lock's end period further out. The whole
// principal is re-boosted at the coefficient for the new remaining duration.
func (l *Ledger) ExtendLockTime(account string, deltaSeconds uint64) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if account == TotalEntity {
		return ErrReservedAccount
	}
	blacklisted, err := l.repo.IsBlacklisted(account)
	if err != nil {
		return err
	}
	if blacklisted {
		return ErrAccountBlacklisted
	}
	lock, err := l.repo.GetLock(account)
	if err != nil {
		return err
	}
	if !lock.Exists() {
		return ErrLockDoesNotExist
	}
	cur := l.currentPeriod()
	if lock.End <= cur {
		return ErrLockExpired
	}
	delta := PeriodsIn(deltaSeconds)
	if delta == 0 {
		return ErrInvalidDuration
	}
	newEnd := lock.End + delta
	if newEnd-cur > MaxLockPeriods {
		return ErrInvalidDuration
	}

	lock.End = newEnd
	lock.LastExtendPeriod = cur

	u := l.repo.NewUnit()
	u.PutLock(account, lock)
	if err := l.checkpoint(u, account, cur, lock, nil, &newEnd); err != nil {
		return err
	}
	if err := u.Commit(); err != nil {
		return err
	}

	metrics.OpDone("extend_lock_time")
	logger.Logger.Info("lock time extended",
		zap.String("account", account),
		zap.Uint64("new_end", newEnd))
	return nil
}

// Withdraw returns the principal of a fully decayed lock and resets the
// account to the no-lock state. Blacklisted accounts may withdraw once the
// lock end period has passed.
func (l *Ledger) Withdraw(account string) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if account == TotalEntity {
		return ErrReservedAccount
	}
	lock, err := l.repo.GetLock(account)
	if err != nil {
		return err
	}
	if !lock.Exists() {
		return ErrLockDoesNotExist
	}
	cur := l.currentPeriod()
	if lock.End > cur {
		return ErrLockNotExpired
	}

	u := l.repo.NewUnit()
	u.PutLock(account, &models.Lock{})
	u.PutLockedBalance(account, cur, 0)
	u.PutPoint(account, &models.Point{
		Power: decimal.Zero,
		Slope: decimal.Zero,
		Start: cur,
		End:   cur,
	})
	// power decayed to zero at the lock end; catch the aggregate up with no deltas
	if err := l.checkpointTotal(u, cur, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero); err != nil {
		return err
	}
	if err := l.bank.TransferOut(account, lock.Amount); err != nil {
		return err
	}
	if err := u.Commit(); err != nil {
		return err
	}

	metrics.OpDone("withdraw")
	logger.Logger.Info("lock withdrawn",
		zap.String("account", account),
		zap.Uint64("amount", lock.Amount))
	return nil
}

// UpdateBlacklist adds and removes blacklist members. Newly blacklisted
// accounts lose their voting power immediately; removed accounts with a
// live lock resume accrual from the current period at the coefficient for
// their remaining duration, with no retroactive restoration.
func (l *Ledger) UpdateBlacklist(add, remove []string) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if len(add) == 0 && len(remove) == 0 {
		return ErrEmptyBatch
	}
	adding := make(map[string]struct{}, len(add))
	for _, account := range add {
		if account == TotalEntity {
			return ErrReservedAccount
		}
		adding[account] = struct{}{}
	}
	for _, account := range remove {
		if account == TotalEntity {
			return ErrReservedAccount
		}
		if _, ok := adding[account]; ok {
			return ErrBothLists
		}
	}

	cur := l.currentPeriod()
	u := l.repo.NewUnit()

	reducePower := decimal.Zero
	oldSlopes := decimal.Zero
	for _, account := range add {
		u.SetBlacklisted(account, true)
		point, err := u.LastPoint(account, cur)
		if err != nil {
			return err
		}
		if point == nil {
			continue
		}
		power := pointPowerAt(point, cur)
		if power.IsZero() && point.Slope.IsZero() {
			continue
		}
		if point.End > cur && point.Slope.IsPositive() {
			if err := l.cancelScheduledSlope(u, point.Slope, point.End); err != nil {
				return err
			}
			oldSlopes = oldSlopes.Add(point.Slope)
		}
		reducePower = reducePower.Add(power)
		u.PutPoint(account, &models.Point{
			Power: decimal.Zero,
			Slope: decimal.Zero,
			Start: cur,
			End:   cur,
		})
	}
	if err := l.checkpointTotal(u, cur, decimal.Zero, reducePower, oldSlopes, decimal.Zero); err != nil {
		return err
	}

	for _, account := range remove {
		u.SetBlacklisted(account, false)
		lock, err := u.GetLock(account)
		if err != nil {
			return err
		}
		if !lock.Exists() || lock.End <= cur {
			continue
		}
		end := lock.End
		if err := l.checkpoint(u, account, cur, lock, nil, &end); err != nil {
			return err
		}
	}

	if err := u.Commit(); err != nil {
		return err
	}

	metrics.OpDone("update_blacklist")
	logger.Logger.Info("blacklist updated",
		zap.Strings("added", add),
		zap.Strings("removed", remove))
	return nil
}

// pointPowerAt evaluates a point's decay at the given period, saturating at
// zero and clamping at the point's own end
func pointPowerAt(point *models.Point, period uint64) decimal.Decimal {
	if period <= point.Start {
		return point.Power
	}
	if point.End != 0 && period >= point.End {
		return decimal.Zero
	}
	elapsed := decimal.NewFromUint64(period - point.Start)
	power := point.Power.Sub(point.Slope.Mul(elapsed))
	if power.IsNegative() {
		return decimal.Zero
	}
	return power
}

// checkpoint brings the account's point current, applies the amount or end
// change, reschedules the slope event, writes the new point and propagates
// the deltas to the aggregate.
func (l *Ledger) checkpoint(u repository.UnitInterface, account string, cur uint64, lock *models.Lock, addAmount, newEnd *uint64) error {
	point, err := u.LastPoint(account, cur)
	if err != nil {
		return err
	}

	var newPoint models.Point
	addPower := decimal.Zero
	oldSlope := decimal.Zero

	if point == nil {
		// first checkpoint for this account
		dt := lock.End - cur
		power := Coefficient(dt).Mul(decimal.NewFromUint64(*addAmount))
		slope := decimal.Zero
		if dt > 0 {
			slope = power.Div(decimal.NewFromUint64(dt))
		}
		newPoint = models.Point{Power: power, Slope: slope, Start: cur, End: lock.End}
		addPower = power
	} else {
		end := point.End
		if newEnd != nil {
			end = *newEnd
		}
		var dt uint64
		if end > cur {
			dt = end - cur
		}
		current := pointPowerAt(point, cur)

		var newPower decimal.Decimal
		switch {
		case addAmount == nil && newEnd != nil:
			// time extension: the whole principal is re-boosted at the
			// coefficient for the new remaining duration
			newPower = Coefficient(dt).Mul(decimal.NewFromUint64(lock.Amount))
			addPower = newPower.Sub(current)
			if addPower.IsNegative() {
				addPower = decimal.Zero
			}
		case addAmount != nil:
			raw := Coefficient(dt).Mul(decimal.NewFromUint64(*addAmount))
			newPower = current.Add(raw)
			addPower = raw
		default:
			newPower = current
		}

		slope := decimal.Zero
		if dt > 0 {
			slope = newPower.Div(decimal.NewFromUint64(dt))
		}

		// cancel the old scheduled event before scheduling the new one so an
		// unchanged end period is not double-counted
		if point.End > cur && point.Slope.IsPositive() {
			if err := l.cancelScheduledSlope(u, point.Slope, point.End); err != nil {
				return err
			}
			oldSlope = point.Slope
		}
		newPoint = models.Point{Power: newPower, Slope: slope, Start: cur, End: end}
	}

	if newPoint.Slope.IsPositive() && newPoint.End > cur {
		if err := l.scheduleSlope(u, newPoint.Slope, newPoint.End); err != nil {
			return err
		}
	}
	u.PutPoint(account, &newPoint)
	return l.checkpointTotal(u, cur, addPower, decimal.Zero, oldSlope, newPoint.Slope)
}

// checkpointTotal replays missed slope-schedule events up to the replay
// limit, applies the per-account deltas and writes a fresh aggregate point
func (l *Ledger) checkpointTotal(u repository.UnitInterface, cur uint64, addPower, reducePower, oldSlope, newSlope decimal.Decimal) error {
	point, err := u.LastPoint(TotalEntity, cur)
	if err != nil {
		return err
	}
	if point == nil {
		point = &models.Point{Power: decimal.Zero, Slope: decimal.Zero, Start: cur}
	}

	marker, err := u.LastSlopePeriod()
	if err != nil {
		return err
	}
	if marker < cur {
		changes, err := u.SlopeChangesIn(marker, cur, slopeReplayLimit)
		if err != nil {
			return err
		}
		for _, sc := range changes {
			power := pointPowerAt(point, sc.Period)
			slope := point.Slope.Sub(sc.Slope)
			if slope.IsNegative() {
				slope = decimal.Zero
			}
			point = &models.Point{Power: power, Slope: slope, Start: sc.Period}
			u.PutPoint(TotalEntity, point)
		}
		u.PutLastSlopePeriod(cur)
	}

	power := pointPowerAt(point, cur).Add(addPower).Sub(reducePower)
	if power.IsNegative() {
		power = decimal.Zero
	}
	slope := point.Slope.Sub(oldSlope).Add(newSlope)
	if slope.IsNegative() {
		slope = decimal.Zero
	}
	u.PutPoint(TotalEntity, &models.Point{Power: power, Slope: slope, Start: cur})
	metrics.SetTotalPower(power.InexactFloat64())
	return nil
}

// scheduleSlope adds slope to the scheduled reduction at the end period
func (l *Ledger) scheduleSlope(u repository.UnitInterface, slope decimal.Decimal, end uint64) error {
	scheduled, err := u.SlopeChange(end)
	if err != nil {
		return err
	}
	u.PutSlopeChange(end, scheduled.Add(slope))
	return nil
}

// cancelScheduledSlope removes a previously scheduled reduction, saturating
// at zero
func (l *Ledger) cancelScheduledSlope(u repository.UnitInterface, slope decimal.Decimal, end uint64) error {
	scheduled, err := u.SlopeChange(end)
	if err != nil {
		return err
	}
	remaining := scheduled.Sub(slope)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	u.PutSlopeChange(end, remaining)
	return nil
}
