package strategy

import (
	"sync"
	"time"
)

// Throttle enforces the per-symbol proposal throttle and the signal
// replay guard (spec 4.E).
type Throttle struct {
	mu sync.Mutex

	lastProposalAt map[string]time.Time // symbol -> last proposal time
	lastSignalAt   map[string]time.Time // symbol+strategy+bias -> last time

	proposalThrottle time.Duration
	replayGuard      time.Duration
}

// NewThrottle creates a Throttle with the configured windows.
func NewThrottle(proposalThrottle, replayGuard time.Duration) *Throttle {
	return &Throttle{
		lastProposalAt:   map[string]time.Time{},
		lastSignalAt:     map[string]time.Time{},
		proposalThrottle: proposalThrottle,
		replayGuard:      replayGuard,
	}
}

func signalKey(symbol string, sig Signal) string {
	return symbol + "|" + sig.Strategy + "|" + string(sig.Bias)
}

// Allow reports whether a fired signal for symbol may become a
// proposal right now, and records the attempt if so.
func (t *Throttle) Allow(symbol string, sig Signal, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastProposalAt[symbol]; ok && now.Sub(last) < t.proposalThrottle {
		return false
	}

	key := signalKey(symbol, sig)
	// <= rather than < closes the race at exactly the replay window's
	// boundary tick (SPEC_FULL.md 12.4): a signal firing at precisely
	// replayGuard since the last identical one is still a replay, not
	// a fresh occurrence.
	if last, ok := t.lastSignalAt[key]; ok && now.Sub(last) <= t.replayGuard {
		return false
	}

	t.lastProposalAt[symbol] = now
	t.lastSignalAt[key] = now
	return true
}
