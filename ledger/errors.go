package ledger

import "errors"

var (
	// ErrInvalidDuration rejects lock durations outside [MinLockPeriods, MaxLockPeriods].
	ErrInvalidDuration = errors.New("lock duration must be between 1 and 104 periods")
	// ErrLockAlreadyExists rejects create_lock on an account with a live lock.
	ErrLockAlreadyExists = errors.New("lock already exists")
	// ErrLockDoesNotExist rejects mutating calls on an account without a lock.
	ErrLockDoesNotExist = errors.New("lock does not exist")
	// ErrLockExpired rejects extensions once the lock has fully decayed.
	ErrLockExpired = errors.New("lock expired, withdraw and create a new lock")
	// ErrLockNotExpired rejects withdrawal before the lock end period.
	ErrLockNotExpired = errors.New("lock has not expired yet")
	// ErrAccountBlacklisted rejects lock mutations from blacklisted accounts.
	ErrAccountBlacklisted = errors.New("account is blacklisted")
	// ErrEmptyBatch rejects a blacklist update with nothing to do.
	ErrEmptyBatch = errors.New("blacklist add and remove lists are both empty")
	// ErrBothLists rejects an account appearing in both blacklist lists.
	ErrBothLists = errors.New("account appears in both add and remove lists")
	// ErrReservedAccount rejects the aggregate entity name as an account.
	ErrReservedAccount = errors.New("account name is reserved")
	// ErrZeroAmount rejects zero-amount deposits.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrAmountOverflow rejects principal additions that would overflow.
	ErrAmountOverflow = errors.New("lock amount overflow")
)
