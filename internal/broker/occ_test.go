package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEncodeOCCSpyExample(t *testing.T) {
	exp := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	sym, err := EncodeOCC("SPY", exp, Put, decimal.NewFromInt(416))
	require.NoError(t, err)
	require.Equal(t, "SPY240116P00416000", sym)
}

func TestOCCRoundTripStrike(t *testing.T) {
	exp := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	strike := decimal.NewFromFloat(428.5)
	sym, err := EncodeOCC("SPY", exp, Call, strike)
	require.NoError(t, err)

	decoded, err := DecodeOCCStrike(sym)
	require.NoError(t, err)
	require.True(t, decoded.Equal(strike))
}
