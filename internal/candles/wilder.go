package candles

import (
	"time"

	"github.com/shopspring/decimal"
)

// rsiState tracks Wilder-smoothed RSI averages for one (symbol, n)
// pair. The first value is the simple mean of the first n gains/losses;
// every subsequent bar close updates avg = (prev_avg*(n-1) + new)/n,
// per spec 4.A and the invariant in spec 8. Averages persist across
// calls and are never recomputed from scratch.
type rsiState struct {
	n           int
	initialized bool
	avgGain     decimal.Decimal
	avgLoss     decimal.Decimal
	seeded      int
	sumGain     decimal.Decimal
	sumLoss     decimal.Decimal
}

func newRSIState(n int) *rsiState {
	return &rsiState{n: n, sumGain: decimal.Zero, sumLoss: decimal.Zero}
}

func (r *rsiState) update(prevClose, close decimal.Decimal) {
	delta := close.Sub(prevClose)
	gain := decimal.Zero
	loss := decimal.Zero
	if delta.IsPositive() {
		gain = delta
	} else if delta.IsNegative() {
		loss = delta.Neg()
	}

	if !r.initialized {
		r.sumGain = r.sumGain.Add(gain)
		r.sumLoss = r.sumLoss.Add(loss)
		r.seeded++
		if r.seeded >= r.n {
			nDec := decimal.NewFromInt(int64(r.n))
			r.avgGain = r.sumGain.Div(nDec)
			r.avgLoss = r.sumLoss.Div(nDec)
			r.initialized = true
		}
		return
	}

	nDec := decimal.NewFromInt(int64(r.n))
	nMinus1 := decimal.NewFromInt(int64(r.n - 1))
	r.avgGain = r.avgGain.Mul(nMinus1).Add(gain).Div(nDec)
	r.avgLoss = r.avgLoss.Mul(nMinus1).Add(loss).Div(nDec)
}

func (r *rsiState) value() decimal.Decimal {
	if r.avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := r.avgGain.Div(r.avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// adxState tracks Wilder ADX(n): smoothed +DM/-DM/TR feed +DI/-DI;
// each bar's DX is 100 * |(+DI)-(-DI)| / ((+DI)+(-DI)), unsmoothed;
// ADX is seeded with the mean of the first n DX values and then
// Wilder-smoothed.
type adxState struct {
	n           int
	initialized bool
	prev        *Candle

	smoothPlusDM  decimal.Decimal
	smoothMinusDM decimal.Decimal
	smoothTR      decimal.Decimal

	dmSeeded int
	dxValues []decimal.Decimal // collected until we have n to seed ADX
	value    decimal.Decimal
}

func newADXState(n int) *adxState {
	return &adxState{n: n}
}

func (a *adxState) update(c Candle) {
	if a.prev == nil {
		a.prev = &c
		return
	}
	prev := *a.prev
	a.prev = &c

	upMove := c.High.Sub(prev.High)
	downMove := prev.Low.Sub(c.Low)

	plusDM := decimal.Zero
	if upMove.IsPositive() && upMove.GreaterThan(downMove) {
		plusDM = upMove
	}
	minusDM := decimal.Zero
	if downMove.IsPositive() && downMove.GreaterThan(upMove) {
		minusDM = downMove
	}

	tr := trueRange(c, prev)

	nDec := decimal.NewFromInt(int64(a.n))
	nMinus1 := decimal.NewFromInt(int64(a.n - 1))

	a.dmSeeded++
	if a.dmSeeded == 1 {
		a.smoothPlusDM = plusDM
		a.smoothMinusDM = minusDM
		a.smoothTR = tr
		return
	}
	if a.dmSeeded <= a.n {
		a.smoothPlusDM = a.smoothPlusDM.Add(plusDM)
		a.smoothMinusDM = a.smoothMinusDM.Add(minusDM)
		a.smoothTR = a.smoothTR.Add(tr)
	} else {
		a.smoothPlusDM = a.smoothPlusDM.Sub(a.smoothPlusDM.Div(nDec)).Add(plusDM)
		a.smoothMinusDM = a.smoothMinusDM.Sub(a.smoothMinusDM.Div(nDec)).Add(minusDM)
		a.smoothTR = a.smoothTR.Sub(a.smoothTR.Div(nDec)).Add(tr)
	}

	if a.dmSeeded < a.n || a.smoothTR.IsZero() {
		return
	}

	plusDI := a.smoothPlusDM.Div(a.smoothTR).Mul(decimal.NewFromInt(100))
	minusDI := a.smoothMinusDM.Div(a.smoothTR).Mul(decimal.NewFromInt(100))
	sum := plusDI.Add(minusDI)
	dx := decimal.Zero
	if !sum.IsZero() {
		dx = plusDI.Sub(minusDI).Abs().Div(sum).Mul(decimal.NewFromInt(100))
	}

	if !a.initialized {
		a.dxValues = append(a.dxValues, dx)
		if len(a.dxValues) >= a.n {
			sum := decimal.Zero
			for _, v := range a.dxValues {
				sum = sum.Add(v)
			}
			a.value = sum.Div(nDec)
			a.initialized = true
			a.dxValues = nil
		}
		return
	}

	a.value = a.value.Mul(nMinus1).Add(dx).Div(nDec)
}

func trueRange(c, prev Candle) decimal.Decimal {
	hl := c.High.Sub(c.Low)
	hc := c.High.Sub(prev.Close).Abs()
	lc := c.Low.Sub(prev.Close).Abs()
	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// vwapState accumulates cumulative price*volume and volume since the
// regular session open (spec 4.A vwap, 3 Session VWAP state).
type vwapState struct {
	cumPV        decimal.Decimal
	cumVol       decimal.Decimal
	sessionStart time.Time
}

func (v *vwapState) add(price decimal.Decimal, size int64) {
	sizeDec := decimal.NewFromInt(size)
	v.cumPV = v.cumPV.Add(price.Mul(sizeDec))
	v.cumVol = v.cumVol.Add(sizeDec)
}

func (v *vwapState) value() Optional[decimal.Decimal] {
	if v.cumVol.IsZero() {
		return none[decimal.Decimal]()
	}
	return some(v.cumPV.Div(v.cumVol))
}
