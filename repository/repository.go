package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb/util"

	"ve-ledger/db"
	"ve-ledger/models"
)

// Key layout. Periods are zero-padded to fixed width so lexicographic key
// order matches numeric period order.
const (
	lockPrefix      = "lock:"
	lockHistPrefix  = "lockhist:"
	pointPrefix     = "point:"
	slopePrefix     = "slope:"
	blacklistPrefix = "blacklist:"
	lastSlopeKey    = "meta:last_slope_period"
)

func lockKey(account string) []byte {
	return []byte(lockPrefix + account)
}

func lockHistKey(account string, period uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", lockHistPrefix, account, period))
}

func pointKey(entity string, period uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", pointPrefix, entity, period))
}

func slopeKey(period uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", slopePrefix, period))
}

func blacklistKey(account string) []byte {
	return []byte(blacklistPrefix + account)
}

// ReaderInterface is the view of ledger state shared by the committed store
// and by an in-flight Unit (which overlays its staged writes on top).
type ReaderInterface interface {
	GetLock(account string) (*models.Lock, error)
	LastPoint(entity string, period uint64) (*models.Point, error)
	SlopeChange(period uint64) (decimal.Decimal, error)
	SlopeChangesIn(from, to uint64, limit int) ([]models.SlopeChange, error)
	LastSlopePeriod() (uint64, error)
	IsBlacklisted(account string) (bool, error)
}

// It abstracts the storage layer from the business logic
type LedgerRepositoryInterface interface {
	ReaderInterface
	BlacklistedAccounts(startAfter string, limit int) ([]string, error)
	LockedBalanceAt(account string, period uint64) (uint64, error)
	NewUnit() UnitInterface
}

// LedgerRepository implements the LedgerRepositoryInterface using LevelDB as
// the storage backend
type LedgerRepository struct {
	db *db.LevelDB
}

// NewLedgerRepository creates and returns a new LedgerRepository instance
func NewLedgerRepository(db *db.LevelDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// getFunc reads one key; the bool reports presence.
type getFunc func(key []byte) ([]byte, bool, error)

func (r *LedgerRepository) dbGet(key []byte) ([]byte, bool, error) {
	data, err := r.db.Get(key)
	if err == db.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get "+string(key))
	}
	return data, true, nil
}

func getLock(get getFunc, account string) (*models.Lock, error) {
	data, ok, err := get(lockKey(account))
	if err != nil || !ok {
		return nil, err
	}
	var lock models.Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(err, "decode lock")
	}
	return &lock, nil
}

func getSlopeChange(get getFunc, period uint64) (decimal.Decimal, error) {
	data, ok, err := get(slopeKey(period))
	if err != nil || !ok {
		return decimal.Zero, err
	}
	var sc models.SlopeChange
	if err := json.Unmarshal(data, &sc); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode slope change")
	}
	return sc.Slope, nil
}

func getLastSlopePeriod(get getFunc) (uint64, error) {
	data, ok, err := get([]byte(lastSlopeKey))
	if err != nil || !ok {
		return 0, err
	}
	p, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "decode slope marker")
	}
	return p, nil
}

// GetLock retrieves an account's lock record; a nil result means no record
// was ever written
func (r *LedgerRepository) GetLock(account string) (*models.Lock, error) {
	return getLock(r.dbGet, account)
}

// LastPoint retrieves the latest checkpoint for the entity whose start
// period is at or before the given period, or nil when none exists
func (r *LedgerRepository) LastPoint(entity string, period uint64) (*models.Point, error) {
	prefix := []byte(pointPrefix + entity + ":")
	// limit is the period key plus one trailing byte, making the bound
	// inclusive of the period itself
	limit := append(pointKey(entity, period), 0)
	iter := r.db.NewIterator(&util.Range{Start: prefix, Limit: limit})
	defer iter.Release()

	if !iter.Last() {
		return nil, iter.Error()
	}
	var point models.Point
	if err := json.Unmarshal(iter.Value(), &point); err != nil {
		return nil, errors.Wrap(err, "decode point")
	}
	return &point, iter.Error()
}

// SlopeChange returns the scheduled slope reduction at the given period,
// zero when nothing is scheduled
func (r *LedgerRepository) SlopeChange(period uint64) (decimal.Decimal, error) {
	return getSlopeChange(r.dbGet, period)
}

// SlopeChangesIn returns the non-zero scheduled slope reductions in the
// half-open period range (from, to], in ascending order. A limit <= 0 means
// no cap.
func (r *LedgerRepository) SlopeChangesIn(from, to uint64, limit int) ([]models.SlopeChange, error) {
	if to <= from {
		return nil, nil
	}
	slice := &util.Range{
		Start: slopeKey(from + 1),
		Limit: append(slopeKey(to), 0),
	}
	iter := r.db.NewIterator(slice)
	defer iter.Release()

	var changes []models.SlopeChange
	for iter.Next() {
		var sc models.SlopeChange
		if err := json.Unmarshal(iter.Value(), &sc); err != nil {
			return nil, errors.Wrap(err, "decode slope change")
		}
		if sc.Slope.IsZero() {
			continue
		}
		changes = append(changes, sc)
		if limit > 0 && len(changes) >= limit {
			break
		}
	}
	return changes, iter.Error()
}

// LastSlopePeriod returns the aggregate replay marker, zero when unset
func (r *LedgerRepository) LastSlopePeriod() (uint64, error) {
	return getLastSlopePeriod(r.dbGet)
}

// IsBlacklisted reports whether the account is a blacklist member
func (r *LedgerRepository) IsBlacklisted(account string) (bool, error) {
	return r.db.Has(blacklistKey(account))
}

// BlacklistedAccounts returns blacklist members after startAfter in
// ascending order, up to limit entries
func (r *LedgerRepository) BlacklistedAccounts(startAfter string, limit int) ([]string, error) {
	iter := r.db.NewPrefixIterator([]byte(blacklistPrefix))
	defer iter.Release()

	var accounts []string
	for iter.Next() {
		account := strings.TrimPrefix(string(iter.Key()), blacklistPrefix)
		if startAfter != "" && account <= startAfter {
			continue
		}
		accounts = append(accounts, account)
		if limit > 0 && len(accounts) >= limit {
			break
		}
	}
	return accounts, iter.Error()
}

// LockedBalanceAt returns the account's staked principal as of the given
// period, independent of decay
func (r *LedgerRepository) LockedBalanceAt(account string, period uint64) (uint64, error) {
	prefix := []byte(lockHistPrefix + account + ":")
	limit := append(lockHistKey(account, period), 0)
	iter := r.db.NewIterator(&util.Range{Start: prefix, Limit: limit})
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}
	var bal models.LockedBalance
	if err := json.Unmarshal(iter.Value(), &bal); err != nil {
		return 0, errors.Wrap(err, "decode locked balance")
	}
	return bal.Amount, iter.Error()
}
