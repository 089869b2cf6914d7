package strategy

import (
	"sort"

	"github.com/optionsdesk/trading-engine/internal/broker"
)

// SelectExpiration implements the expiration-selection ladder from
// original_source/brain/src/market_feed.py:_get_best_expiration
// (SPEC_FULL.md 12.1): for strategies targeting a specific DTE, prefer
// expirations in [14,45] DTE closest to target, widen to [7,60] if the
// sweet spot is empty, and give up only if neither band has a listing.
// For zero-DTE-or-nearest strategies (ORB, Scalper), prefer an exact
// 0 DTE listing, else the nearest available expiration.
func SelectExpiration(expirations []broker.Expiration, targetDTE int, zeroDTEOrNearest bool) (broker.Expiration, bool) {
	if len(expirations) == 0 {
		return broker.Expiration{}, false
	}

	if zeroDTEOrNearest {
		for _, e := range expirations {
			if e.DTE == 0 {
				return e, true
			}
		}
		return nearestTo(expirations, 0), true
	}

	sweet := filterBand(expirations, 14, 45)
	if len(sweet) > 0 {
		return nearestTo(sweet, targetDTE), true
	}
	widened := filterBand(expirations, 7, 60)
	if len(widened) > 0 {
		return nearestTo(widened, targetDTE), true
	}
	return broker.Expiration{}, false
}

func filterBand(expirations []broker.Expiration, lo, hi int) []broker.Expiration {
	out := make([]broker.Expiration, 0, len(expirations))
	for _, e := range expirations {
		if e.DTE >= lo && e.DTE <= hi {
			out = append(out, e)
		}
	}
	return out
}

func nearestTo(expirations []broker.Expiration, target int) broker.Expiration {
	sorted := append([]broker.Expiration{}, expirations...)
	sort.Slice(sorted, func(i, j int) bool {
		return abs(sorted[i].DTE-target) < abs(sorted[j].DTE-target)
	})
	return sorted[0]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
