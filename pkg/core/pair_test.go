package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("TON/USDT")
	require.NoError(t, err)
	assert.Equal(t, "TON", p.Base())
	assert.Equal(t, "USDT", p.Quote())

	for _, bad := range []string{"", "TON", "TON/", "/USDT", "TON/TON", "TON/USDT/BTC"} {
		_, err := ParsePair(bad)
		assert.ErrorIs(t, err, ErrUnsupportedPair, "symbol %q", bad)
	}
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, Buy, side)

	side, err = ParseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, side)

	_, err = ParseSide("HOLD")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestNewPairSet(t *testing.T) {
	pairs, err := NewPairSet([]string{"TON/USDT", "BTC/USDT"})
	require.NoError(t, err)
	assert.True(t, pairs.Contains("TON/USDT"))
	assert.False(t, pairs.Contains("ETH/USDT"))

	_, err = NewPairSet([]string{"TON/USDT", "bogus"})
	assert.ErrorIs(t, err, ErrUnsupportedPair)
}
