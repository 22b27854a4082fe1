package repository

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb"

	"ve-ledger/models"
)

// UnitInterface collects the writes of one ledger operation and applies them
// atomically. Reads through a unit see the staged writes layered over the
// committed store, so one operation always observes its own effects.
type UnitInterface interface {
	ReaderInterface
	PutLock(account string, lock *models.Lock)
	PutPoint(entity string, point *models.Point)
	PutSlopeChange(period uint64, slope decimal.Decimal)
	PutLastSlopePeriod(period uint64)
	SetBlacklisted(account string, member bool)
	PutLockedBalance(account string, period, amount uint64)
	Commit() error
}

// Unit is the LevelDB-backed UnitInterface implementation; Commit writes the
// staged set as a single batch
type Unit struct {
	repo *LedgerRepository
	puts map[string][]byte
	dels map[string]struct{}
	err  error
}

// NewUnit starts an empty staged-write set over the committed store
func (r *LedgerRepository) NewUnit() UnitInterface {
	return &Unit{
		repo: r,
		puts: make(map[string][]byte),
		dels: make(map[string]struct{}),
	}
}

func (u *Unit) stage(key []byte, v interface{}) {
	if u.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		u.err = errors.Wrap(err, "encode "+string(key))
		return
	}
	delete(u.dels, string(key))
	u.puts[string(key)] = data
}

func (u *Unit) stageRaw(key []byte, data []byte) {
	delete(u.dels, string(key))
	u.puts[string(key)] = data
}

func (u *Unit) stageDelete(key []byte) {
	delete(u.puts, string(key))
	u.dels[string(key)] = struct{}{}
}

// get reads one key with the staged writes taking precedence
func (u *Unit) get(key []byte) ([]byte, bool, error) {
	if _, ok := u.dels[string(key)]; ok {
		return nil, false, nil
	}
	if data, ok := u.puts[string(key)]; ok {
		return data, true, nil
	}
	return u.repo.dbGet(key)
}

// PutLock stages an account's lock record
func (u *Unit) PutLock(account string, lock *models.Lock) {
	u.stage(lockKey(account), lock)
}

// PutPoint stages a checkpoint for the entity at the point's start period
func (u *Unit) PutPoint(entity string, point *models.Point) {
	u.stage(pointKey(entity, point.Start), point)
}

// PutSlopeChange stages the total scheduled slope reduction at a period
func (u *Unit) PutSlopeChange(period uint64, slope decimal.Decimal) {
	u.stage(slopeKey(period), &models.SlopeChange{Period: period, Slope: slope})
}

// PutLastSlopePeriod stages the aggregate replay marker
func (u *Unit) PutLastSlopePeriod(period uint64) {
	u.stageRaw([]byte(lastSlopeKey), []byte(strconv.FormatUint(period, 10)))
}

// SetBlacklisted stages blacklist membership for an account
func (u *Unit) SetBlacklisted(account string, member bool) {
	if member {
		u.stageRaw(blacklistKey(account), []byte("1"))
	} else {
		u.stageDelete(blacklistKey(account))
	}
}

// PutLockedBalance stages a point-in-time principal record
func (u *Unit) PutLockedBalance(account string, period, amount uint64) {
	u.stage(lockHistKey(account, period), &models.LockedBalance{Period: period, Amount: amount})
}

// GetLock retrieves the lock record, staged writes first
func (u *Unit) GetLock(account string) (*models.Lock, error) {
	return getLock(u.get, account)
}

// LastPoint retrieves the latest checkpoint at or before the period, taking
// staged points into account
func (u *Unit) LastPoint(entity string, period uint64) (*models.Point, error) {
	best, err := u.repo.LastPoint(entity, period)
	if err != nil {
		return nil, err
	}
	prefix := pointPrefix + entity + ":"
	for key, data := range u.puts {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		start, err := strconv.ParseUint(key[len(prefix):], 10, 64)
		if err != nil || start > period {
			continue
		}
		if best != nil && start < best.Start {
			continue
		}
		var point models.Point
		if err := json.Unmarshal(data, &point); err != nil {
			return nil, errors.Wrap(err, "decode staged point")
		}
		best = &point
	}
	return best, nil
}

// SlopeChange returns the scheduled slope reduction at the period, staged
// writes first
func (u *Unit) SlopeChange(period uint64) (decimal.Decimal, error) {
	return getSlopeChange(u.get, period)
}

// SlopeChangesIn reads the committed schedule. Staged slope changes are
// always scheduled at lock end periods beyond the replay window, so they
// never fall inside a (from, to] range replayed in the same operation.
func (u *Unit) SlopeChangesIn(from, to uint64, limit int) ([]models.SlopeChange, error) {
	return u.repo.SlopeChangesIn(from, to, limit)
}

// LastSlopePeriod returns the replay marker, staged writes first
func (u *Unit) LastSlopePeriod() (uint64, error) {
	return getLastSlopePeriod(u.get)
}

// IsBlacklisted reports blacklist membership, staged writes first
func (u *Unit) IsBlacklisted(account string) (bool, error) {
	key := blacklistKey(account)
	if _, ok := u.dels[string(key)]; ok {
		return false, nil
	}
	if _, ok := u.puts[string(key)]; ok {
		return true, nil
	}
	return u.repo.IsBlacklisted(account)
}

// Commit applies every staged write as one atomic batch
func (u *Unit) Commit() error {
	if u.err != nil {
		return u.err
	}
	batch := new(leveldb.Batch)
	for key, data := range u.puts {
		batch.Put([]byte(key), data)
	}
	for key := range u.dels {
		batch.Delete([]byte(key))
	}
	return u.repo.db.Write(batch)
}
