package pollers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
)

func TestVIXPollerServesFreshReading(t *testing.T) {
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	p := NewVIXPoller(mock, "VIX", time.Hour, 3*time.Minute)
	p.pollOnce(context.Background())

	v := p.VIX()
	require.True(t, v.Present)
}

func TestVIXPollerReportsAbsentWhenNeverPolled(t *testing.T) {
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	p := NewVIXPoller(mock, "VIX", time.Hour, 3*time.Minute)
	v := p.VIX()
	require.False(t, v.Present)
}

func TestIVPollerFeedsStoreHistory(t *testing.T) {
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	store := candles.NewStore([]string{"SPY"})
	p := NewIVPoller(mock, store, []string{"SPY"}, time.Hour, 252)
	p.pollOne(context.Background(), "SPY")
	store.SetWarmedUp()

	rank := store.IVRank("SPY")
	require.True(t, rank.Present)
}

func TestWarmUpMarksStoreWarmedUp(t *testing.T) {
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	store := candles.NewStore([]string{"SPY"})
	w := &WarmUp{Client: mock, Store: store, Symbols: []string{"SPY"}, Days: 250}

	require.False(t, store.WarmedUp())
	require.NoError(t, w.Run(context.Background()))
	require.True(t, store.WarmedUp())
}
