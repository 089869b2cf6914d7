package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/candles"
)

type fakeConn struct {
	ticks  []wireTick
	idx    int
	closed bool
}

func (f *fakeConn) ReadJSON(v any) error {
	if f.idx >= len(f.ticks) {
		return context.Canceled
	}
	b, _ := json.Marshal(f.ticks[f.idx])
	f.idx++
	return json.Unmarshal(b, v)
}

func (f *fakeConn) WriteJSON(v any) error { return nil }
func (f *fakeConn) Close() error          { f.closed = true; return nil }

func TestIngestorDispatchesTradesToStore(t *testing.T) {
	store := candles.NewStore([]string{"SPY"})
	conn := &fakeConn{ticks: []wireTick{
		{Symbol: "SPY", Kind: "trade", Price: 410.5, Size: 100, TsMs: time.Now().UnixMilli()},
	}}

	in := New("ws://test", []string{"SPY"}, SessionWindow{StartET: "00:00", EndET: "23:59"}, Backoff{InitialMs: 10, MaxMs: 100}, store,
		func(ctx context.Context, url string) (Conn, error) { return conn, nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	require.True(t, conn.closed)
	require.True(t, store.VolumeProfile("SPY").Present)
}

func TestSessionWindowExcludesWeekend(t *testing.T) {
	w := SessionWindow{StartET: "09:25", EndET: "16:05", Location: time.UTC}
	saturday := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	require.False(t, w.InSession(saturday))

	tuesday := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	require.True(t, w.InSession(tuesday))
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := Backoff{InitialMs: 1000, MaxMs: 5000}
	d := b.next(10) // would overflow without the cap
	require.LessOrEqual(t, d, 6*time.Second)
}
