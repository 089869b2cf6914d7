package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// targetShortDelta is the credit-spread short-leg delta target (spec
// 4.E: "credit spreads ~30-35 delta short leg").
var targetShortDelta = decimal.NewFromFloat(0.325)

// wingWidth is the strike-price distance from the short leg to the
// long-leg target, used for every credit spread whether the short leg
// was picked by delta or by percent offset, and for condor/butterfly
// wings (original_source/brain/src/market_feed.py, SPEC_FULL.md 12.2).
var wingWidth = decimal.NewFromInt(5)

func byType(chain []broker.ChainLeg, t broker.OptionType) []broker.ChainLeg {
	out := make([]broker.ChainLeg, 0, len(chain)/2)
	for _, c := range chain {
		if c.Type == t {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike.LessThan(out[j].Strike) })
	return out
}

func closestByDelta(legs []broker.ChainLeg, target decimal.Decimal) (broker.ChainLeg, bool) {
	best := broker.ChainLeg{}
	bestDist := decimal.Decimal{}
	found := false
	for _, l := range legs {
		if l.Quote.Delta.IsZero() {
			continue
		}
		dist := l.Quote.Delta.Abs().Sub(target).Abs()
		if !found || dist.LessThan(bestDist) {
			best, bestDist, found = l, dist, true
		}
	}
	return best, found
}

func closestByStrike(legs []broker.ChainLeg, target decimal.Decimal) (broker.ChainLeg, bool) {
	if len(legs) == 0 {
		return broker.ChainLeg{}, false
	}
	best := legs[0]
	bestDist := legs[0].Strike.Sub(target).Abs()
	for _, l := range legs[1:] {
		d := l.Strike.Sub(target).Abs()
		if d.LessThan(bestDist) {
			best, bestDist = l, d
		}
	}
	return best, true
}

// selectCreditSpreadLegs picks the short and long leg for a directional
// credit spread. Bullish -> sell a put below price; bearish -> sell a
// call above price. Primary selection is delta-targeted; when greeks
// are unavailable (delta == 0 across the chain) it falls back to the
// percent-of-underlying offset ladder from market_feed.py.
func selectCreditSpreadLegs(chain []broker.ChainLeg, bias Bias, price decimal.Decimal) (short, long broker.ChainLeg, err error) {
	optType := broker.Put
	if bias == Bearish {
		optType = broker.Call
	}
	legs := byType(chain, optType)
	if len(legs) == 0 {
		return short, long, fmt.Errorf("strategy: no %s legs in chain", optType)
	}

	if s, ok := closestByDelta(legs, targetShortDelta); ok {
		short = s
	} else {
		offset := decimal.NewFromFloat(0.98)
		if bias == Bearish {
			offset = decimal.NewFromFloat(1.02)
		}
		target := price.Mul(offset)
		s, ok := closestByStrike(legs, target)
		if !ok {
			return short, long, fmt.Errorf("strategy: could not select short leg")
		}
		short = s
	}

	longTarget := short.Strike.Sub(wingWidth)
	if bias == Bearish {
		longTarget = short.Strike.Add(wingWidth)
	}
	l, ok := closestByStrike(legs, longTarget)
	if !ok {
		return short, long, fmt.Errorf("strategy: could not select long leg")
	}
	long = l
	return short, long, nil
}

// selectSymmetricWings picks four legs (sell near-the-money put & call
// plus their protective wings) around center for condor/butterfly
// structures. offset is the distance from center to the sold strikes;
// wingWidth is added beyond that for the long legs.
func selectSymmetricWings(chain []broker.ChainLeg, center, offset decimal.Decimal) (shortPut, longPut, shortCall, longCall broker.ChainLeg, err error) {
	puts := byType(chain, broker.Put)
	calls := byType(chain, broker.Call)
	if len(puts) == 0 || len(calls) == 0 {
		return shortPut, longPut, shortCall, longCall, fmt.Errorf("strategy: incomplete chain for wing selection")
	}
	sp, ok := closestByStrike(puts, center.Sub(offset))
	if !ok {
		return shortPut, longPut, shortCall, longCall, fmt.Errorf("strategy: no short put")
	}
	lp, ok := closestByStrike(puts, sp.Strike.Sub(wingWidth))
	if !ok {
		return shortPut, longPut, shortCall, longCall, fmt.Errorf("strategy: no long put")
	}
	sc, ok := closestByStrike(calls, center.Add(offset))
	if !ok {
		return shortPut, longPut, shortCall, longCall, fmt.Errorf("strategy: no short call")
	}
	lc, ok := closestByStrike(calls, sc.Strike.Add(wingWidth))
	if !ok {
		return shortPut, longPut, shortCall, longCall, fmt.Errorf("strategy: no long call")
	}
	return sp, lp, sc, lc, nil
}

// minCreditFloor never proposes a credit spread priced at zero or
// negative credit (market_feed.py, SPEC_FULL.md 12.3).
var minCreditFloor = decimal.NewFromFloat(0.05)
var aggressionBuffer = decimal.NewFromFloat(0.05)

// netPrice computes the signed net price for a set of legs at final
// quantities: SELL legs add mid*qty, BUY legs subtract mid*qty (spec
// 4.E Pricing). Returns the signed net, unrounded; callers apply the
// floor and rounding.
func netPrice(legs []proposal.Leg, mids map[string]decimal.Decimal) decimal.Decimal {
	net := decimal.Zero
	for _, l := range legs {
		mid := mids[l.OptionSymbol]
		notional := mid.Mul(decimal.NewFromInt(l.Quantity))
		if l.Side == proposal.Sell {
			net = net.Add(notional)
		} else {
			net = net.Sub(notional)
		}
	}
	return net
}

func applyCreditFloor(net decimal.Decimal) decimal.Decimal {
	floor := net.Sub(aggressionBuffer)
	if floor.LessThan(minCreditFloor) {
		return minCreditFloor
	}
	return floor
}

// BuildCreditSpread constructs the two legs and limit price for a
// directional credit spread (ORB, Scalper, Trend Engine, Weekend
// Warrior all emit this shape).
func BuildCreditSpread(underlying string, chain []broker.ChainLeg, expiration time.Time, bias Bias, price decimal.Decimal, qty int64) ([]proposal.Leg, decimal.Decimal, error) {
	short, long, err := selectCreditSpreadLegs(chain, bias, price)
	if err != nil {
		return nil, decimal.Zero, err
	}
	optType := broker.Put
	if bias == Bearish {
		optType = broker.Call
	}

	shortSym, err := broker.EncodeOCC(underlying, expiration, optType, short.Strike)
	if err != nil {
		return nil, decimal.Zero, err
	}
	longSym, err := broker.EncodeOCC(underlying, expiration, optType, long.Strike)
	if err != nil {
		return nil, decimal.Zero, err
	}

	legs := []proposal.Leg{
		{OptionSymbol: shortSym, Expiration: expiration.Format("2006-01-02"), Strike: short.Strike, Type: proposal.OptionType(optType), Quantity: qty, Side: proposal.Sell},
		{OptionSymbol: longSym, Expiration: expiration.Format("2006-01-02"), Strike: long.Strike, Type: proposal.OptionType(optType), Quantity: qty, Side: proposal.Buy},
	}
	mids := map[string]decimal.Decimal{shortSym: short.Quote.Mid(), longSym: long.Quote.Mid()}
	net := netPrice(legs, mids)
	limit := applyCreditFloor(net).Round(2)
	return legs, limit, nil
}

// BuildIronCondorOrButterfly constructs the four legs for IRON_CONDOR
// or IRON_BUTTERFLY around poc. For the condor, offset separates the
// short strikes from poc; for the butterfly, offset is zero (short
// strikes coincide at the money).
func BuildIronCondorOrButterfly(underlying string, chain []broker.ChainLeg, expiration time.Time, poc decimal.Decimal, offset decimal.Decimal, qty int64) ([]proposal.Leg, decimal.Decimal, error) {
	sp, lp, sc, lc, err := selectSymmetricWings(chain, poc, offset)
	if err != nil {
		return nil, decimal.Zero, err
	}

	mk := func(strike decimal.Decimal, t broker.OptionType) (string, error) {
		return broker.EncodeOCC(underlying, expiration, t, strike)
	}

	spSym, err := mk(sp.Strike, broker.Put)
	if err != nil {
		return nil, decimal.Zero, err
	}
	lpSym, err := mk(lp.Strike, broker.Put)
	if err != nil {
		return nil, decimal.Zero, err
	}
	scSym, err := mk(sc.Strike, broker.Call)
	if err != nil {
		return nil, decimal.Zero, err
	}
	lcSym, err := mk(lc.Strike, broker.Call)
	if err != nil {
		return nil, decimal.Zero, err
	}

	expStr := expiration.Format("2006-01-02")
	legs := []proposal.Leg{
		{OptionSymbol: spSym, Expiration: expStr, Strike: sp.Strike, Type: proposal.Put, Quantity: qty, Side: proposal.Sell},
		{OptionSymbol: lpSym, Expiration: expStr, Strike: lp.Strike, Type: proposal.Put, Quantity: qty, Side: proposal.Buy},
		{OptionSymbol: scSym, Expiration: expStr, Strike: sc.Strike, Type: proposal.Call, Quantity: qty, Side: proposal.Sell},
		{OptionSymbol: lcSym, Expiration: expStr, Strike: lc.Strike, Type: proposal.Call, Quantity: qty, Side: proposal.Buy},
	}
	mids := map[string]decimal.Decimal{
		spSym: sp.Quote.Mid(), lpSym: lp.Quote.Mid(), scSym: sc.Quote.Mid(), lcSym: lc.Quote.Mid(),
	}
	net := netPrice(legs, mids)
	limit := applyCreditFloor(net).Round(2)
	return legs, limit, nil
}

// BuildRatioSpread constructs a 2-leg, unequal-quantity ratio spread
// (sell 2, buy 1 of the same type at different strikes).
func BuildRatioSpread(underlying string, chain []broker.ChainLeg, expiration time.Time, bias Bias, price decimal.Decimal, qty int64) ([]proposal.Leg, decimal.Decimal, error) {
	short, long, err := selectCreditSpreadLegs(chain, bias, price)
	if err != nil {
		return nil, decimal.Zero, err
	}
	optType := broker.Put
	if bias == Bearish {
		optType = broker.Call
	}
	shortSym, err := broker.EncodeOCC(underlying, expiration, optType, short.Strike)
	if err != nil {
		return nil, decimal.Zero, err
	}
	longSym, err := broker.EncodeOCC(underlying, expiration, optType, long.Strike)
	if err != nil {
		return nil, decimal.Zero, err
	}
	expStr := expiration.Format("2006-01-02")
	legs := []proposal.Leg{
		{OptionSymbol: shortSym, Expiration: expStr, Strike: short.Strike, Type: proposal.OptionType(optType), Quantity: qty * 2, Side: proposal.Sell},
		{OptionSymbol: longSym, Expiration: expStr, Strike: long.Strike, Type: proposal.OptionType(optType), Quantity: qty, Side: proposal.Buy},
	}
	mids := map[string]decimal.Decimal{shortSym: short.Quote.Mid(), longSym: long.Quote.Mid()}
	net := netPrice(legs, mids)
	return legs, net.Abs().Round(2), nil
}
