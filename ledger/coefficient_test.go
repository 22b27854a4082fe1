package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ve-ledger/ledger"
)

func TestCoefficientBounds(t *testing.T) {
	one := decimal.NewFromInt(1)
	max := decimal.RequireFromString("2.5")

	assert.True(t, ledger.Coefficient(0).Equal(one))
	assert.True(t, ledger.Coefficient(ledger.MaxLockPeriods).Equal(max))
	assert.True(t, ledger.Coefficient(ledger.MaxLockPeriods+50).Equal(max))

	for d := uint64(0); d <= ledger.MaxLockPeriods; d++ {
		c := ledger.Coefficient(d)
		require.True(t, c.GreaterThanOrEqual(one), "coefficient(%d) below 1", d)
		require.True(t, c.LessThanOrEqual(max), "coefficient(%d) above 2.5", d)
	}
}

func TestCoefficientMonotone(t *testing.T) {
	prev := ledger.Coefficient(0)
	for d := uint64(1); d <= ledger.MaxLockPeriods; d++ {
		c := ledger.Coefficient(d)
		require.True(t, c.GreaterThanOrEqual(prev), "coefficient not monotone at %d", d)
		prev = c
	}
}

func TestCoefficientFixture(t *testing.T) {
	// 10 remaining periods: 1 + 1.5*10/104
	assert.Equal(t, "1.14423", ledger.Coefficient(10).StringFixed(5))
	// 6 remaining periods: 1 + 1.5*6/104
	assert.Equal(t, "1.08654", ledger.Coefficient(6).StringFixed(5))
}
