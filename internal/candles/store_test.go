package candles

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestSMAAbsentUntilWindowFull(t *testing.T) {
	s := NewStore([]string{"SPY"})
	s.SetWarmedUp()

	base := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.OnTrade("SPY", d(100+float64(i)), 10, base.Add(time.Duration(i)*time.Minute))
	}
	// close the trailing bar
	s.OnTrade("SPY", d(103), 10, base.Add(3*time.Minute))

	require.False(t, s.SMA("SPY", 5).Present, "sma(5) must be absent with only 3 closed bars")
}

func TestSMAExactMean(t *testing.T) {
	s := NewStore([]string{"SPY"})
	s.SetWarmedUp()
	base := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103}
	for i, c := range closes {
		s.OnTrade("SPY", d(c), 10, base.Add(time.Duration(i)*time.Minute))
	}
	// trigger close of the 4th bar by moving to a 5th minute
	s.OnTrade("SPY", d(104), 10, base.Add(4*time.Minute))

	sma := s.SMA("SPY", 4)
	require.True(t, sma.Present)
	require.True(t, sma.Value.Equal(d(101.5)), "expected mean of 100,101,102,103 got %s", sma.Value)
}

func TestRSIWilderRecurrence(t *testing.T) {
	rs := newRSIState(3)
	closes := []decimal.Decimal{d(10), d(11), d(12), d(11), d(13), d(12)}
	for i := 1; i < len(closes); i++ {
		rs.update(closes[i-1], closes[i])
	}
	require.True(t, rs.initialized)

	// Recompute independently per the spec 8 invariant:
	// avg_gain_k = (avg_gain_{k-1}*(n-1) + gain_k)/n
	gains := []decimal.Decimal{d(1), d(1), d(0), d(2), d(0)}
	losses := []decimal.Decimal{d(0), d(0), d(1), d(0), d(1)}
	avgGain := gains[0].Add(gains[1]).Add(gains[2]).Div(d(3))
	avgLoss := losses[0].Add(losses[1]).Add(losses[2]).Div(d(3))
	for i := 3; i < len(gains); i++ {
		avgGain = avgGain.Mul(d(2)).Add(gains[i]).Div(d(3))
		avgLoss = avgLoss.Mul(d(2)).Add(losses[i]).Div(d(3))
	}
	require.True(t, rs.avgGain.Equal(avgGain))
	require.True(t, rs.avgLoss.Equal(avgLoss))
}

func TestIVRankPercentile(t *testing.T) {
	s := NewStore([]string{"SPY"})
	for _, v := range []float64{10, 20, 30, 40, 50} {
		s.SeedIV("SPY", d(v), 252)
	}
	rank := s.IVRank("SPY")
	require.True(t, rank.Present)
	require.True(t, rank.Value.Equal(d(100)), "max of the window ranks at 100th percentile, got %s", rank.Value)
}

func TestPriceAbsentBeforeWarmup(t *testing.T) {
	s := NewStore([]string{"SPY"})
	s.OnTrade("SPY", d(100), 1, time.Now())
	require.False(t, s.Price("SPY").Present)
}
