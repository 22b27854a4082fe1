package repository_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ve-ledger/db"
	"ve-ledger/models"
	"ve-ledger/repository"
)

func newTestRepo(t *testing.T) *repository.LedgerRepository {
	t.Helper()
	ldb, err := db.NewLevelDB(filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	return repository.NewLedgerRepository(ldb)
}

func putPoint(t *testing.T, repo *repository.LedgerRepository, entity string, point *models.Point) {
	t.Helper()
	u := repo.NewUnit()
	u.PutPoint(entity, point)
	require.NoError(t, u.Commit())
}

func TestLastPointLookup(t *testing.T) {
	repo := newTestRepo(t)

	putPoint(t, repo, "alice", &models.Point{Power: decimal.NewFromInt(10), Start: 3, End: 13})
	putPoint(t, repo, "alice", &models.Point{Power: decimal.NewFromInt(20), Start: 7, End: 13})
	putPoint(t, repo, "bob", &models.Point{Power: decimal.NewFromInt(99), Start: 5, End: 8})

	// before any checkpoint
	point, err := repo.LastPoint("alice", 2)
	require.NoError(t, err)
	assert.Nil(t, point)

	// exact hit
	point, err = repo.LastPoint("alice", 3)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(3), point.Start)

	// greatest start at or before the period
	point, err = repo.LastPoint("alice", 6)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(3), point.Start)

	point, err = repo.LastPoint("alice", 100)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(7), point.Start)

	// other entities never bleed in
	point, err = repo.LastPoint("bob", 100)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.True(t, point.Power.Equal(decimal.NewFromInt(99)))

	point, err = repo.LastPoint("carol", 100)
	require.NoError(t, err)
	assert.Nil(t, point)
}

func TestSlopeChangesInRange(t *testing.T) {
	repo := newTestRepo(t)

	u := repo.NewUnit()
	u.PutSlopeChange(5, decimal.NewFromInt(1))
	u.PutSlopeChange(8, decimal.NewFromInt(2))
	u.PutSlopeChange(9, decimal.Zero) // cancelled entries are skipped
	u.PutSlopeChange(12, decimal.NewFromInt(3))
	require.NoError(t, u.Commit())

	// half-open range (from, to]
	changes, err := repo.SlopeChangesIn(5, 12, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, uint64(8), changes[0].Period)
	assert.Equal(t, uint64(12), changes[1].Period)

	changes, err = repo.SlopeChangesIn(0, 5, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, uint64(5), changes[0].Period)

	// the limit caps how many entries are returned
	changes, err = repo.SlopeChangesIn(0, 100, 2)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, uint64(8), changes[1].Period)

	changes, err = repo.SlopeChangesIn(12, 12, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestUnitCommitIsAtomicAndReadThrough(t *testing.T) {
	repo := newTestRepo(t)

	u := repo.NewUnit()
	u.PutLock("alice", &models.Lock{Amount: 100, Start: 1, End: 11})
	u.PutSlopeChange(11, decimal.NewFromInt(7))
	u.PutLastSlopePeriod(1)
	u.SetBlacklisted("mallory", true)
	u.PutPoint("alice", &models.Point{Power: decimal.NewFromInt(50), Start: 1, End: 11})

	// the unit sees its own staged writes
	lock, err := u.GetLock("alice")
	require.NoError(t, err)
	require.True(t, lock.Exists())
	assert.Equal(t, uint64(100), lock.Amount)

	slope, err := u.SlopeChange(11)
	require.NoError(t, err)
	assert.True(t, slope.Equal(decimal.NewFromInt(7)))

	marker, err := u.LastSlopePeriod()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), marker)

	member, err := u.IsBlacklisted("mallory")
	require.NoError(t, err)
	assert.True(t, member)

	point, err := u.LastPoint("alice", 5)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(1), point.Start)

	// nothing is visible through the committed store yet
	lock, err = repo.GetLock("alice")
	require.NoError(t, err)
	assert.False(t, lock.Exists())

	point, err = repo.LastPoint("alice", 5)
	require.NoError(t, err)
	assert.Nil(t, point)

	member, err = repo.IsBlacklisted("mallory")
	require.NoError(t, err)
	assert.False(t, member)

	// one commit publishes everything
	require.NoError(t, u.Commit())

	lock, err = repo.GetLock("alice")
	require.NoError(t, err)
	require.True(t, lock.Exists())

	slope, err = repo.SlopeChange(11)
	require.NoError(t, err)
	assert.True(t, slope.Equal(decimal.NewFromInt(7)))

	member, err = repo.IsBlacklisted("mallory")
	require.NoError(t, err)
	assert.True(t, member)
}

func TestUnitStagedPointShadowsCommitted(t *testing.T) {
	repo := newTestRepo(t)
	putPoint(t, repo, "total", &models.Point{Power: decimal.NewFromInt(10), Start: 2})

	u := repo.NewUnit()
	u.PutPoint("total", &models.Point{Power: decimal.NewFromInt(30), Start: 4})

	point, err := u.LastPoint("total", 9)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(4), point.Start)
	assert.True(t, point.Power.Equal(decimal.NewFromInt(30)))

	// a staged point past the query period is ignored
	point, err = u.LastPoint("total", 3)
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, uint64(2), point.Start)
}

func TestBlacklistPagination(t *testing.T) {
	repo := newTestRepo(t)

	u := repo.NewUnit()
	for _, account := range []string{"a", "b", "c", "d", "e"} {
		u.SetBlacklisted(account, true)
	}
	require.NoError(t, u.Commit())

	accounts, err := repo.BlacklistedAccounts("", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, accounts)

	accounts, err = repo.BlacklistedAccounts("", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, accounts)

	accounts, err = repo.BlacklistedAccounts("b", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, accounts)

	// removal deletes the key
	u = repo.NewUnit()
	u.SetBlacklisted("c", false)
	require.NoError(t, u.Commit())

	accounts, err = repo.BlacklistedAccounts("", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "e"}, accounts)
}

func TestLockedBalanceLookup(t *testing.T) {
	repo := newTestRepo(t)

	u := repo.NewUnit()
	u.PutLockedBalance("alice", 2, 100)
	u.PutLockedBalance("alice", 6, 150)
	u.PutLockedBalance("alice", 9, 0)
	require.NoError(t, u.Commit())

	for _, tc := range []struct {
		period uint64
		amount uint64
	}{
		{0, 0},
		{2, 100},
		{5, 100},
		{6, 150},
		{8, 150},
		{9, 0},
		{50, 0},
	} {
		amount, err := repo.LockedBalanceAt("alice", tc.period)
		require.NoError(t, err)
		assert.Equal(t, tc.amount, amount, "period %d", tc.period)
	}
}
