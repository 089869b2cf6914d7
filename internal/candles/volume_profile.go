package candles

import (
	"sort"

	"github.com/shopspring/decimal"
)

// VolumeProfile summarises the session's traded volume by price bucket.
type VolumeProfile struct {
	POC decimal.Decimal // highest-volume bucket
	VAH decimal.Decimal // value area high
	VAL decimal.Decimal // value area low
}

func bucketKey(price decimal.Decimal) int64 {
	return price.Div(bucketWidth).Round(0).IntPart()
}

func bucketPrice(key int64) decimal.Decimal {
	return decimal.NewFromInt(key).Mul(bucketWidth)
}

func (st *symbolState) addVolumeProfile(price decimal.Decimal, size int64) {
	st.volProfile[bucketKey(price)] += size
}

// VolumeProfile returns the session's POC/VAH/VAL, computed from the
// top 70% band around the point of control (spec 4.A volume_profile).
func (s *Store) VolumeProfile(symbol string) Optional[VolumeProfile] {
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if len(st.volProfile) == 0 {
		return none[VolumeProfile]()
	}

	keys := make([]int64, 0, len(st.volProfile))
	total := int64(0)
	pocKey := int64(0)
	pocVol := int64(-1)
	for k, v := range st.volProfile {
		keys = append(keys, k)
		total += v
		if v > pocVol {
			pocVol = v
			pocKey = k
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	target := int64(float64(total) * 0.70)
	included := map[int64]bool{pocKey: true}
	acc := st.volProfile[pocKey]

	lo, hi := pocKey, pocKey
	for acc < target && (lo > keys[0] || hi < keys[len(keys)-1]) {
		var loVol, hiVol int64
		if v, ok := st.volProfile[lo-1]; ok {
			loVol = v
		}
		if v, ok := st.volProfile[hi+1]; ok {
			hiVol = v
		}
		if hiVol >= loVol && hiVol > 0 {
			hi++
			acc += hiVol
			included[hi] = true
		} else if loVol > 0 {
			lo--
			acc += loVol
			included[lo] = true
		} else {
			break
		}
	}

	return some(VolumeProfile{
		POC: bucketPrice(pocKey),
		VAH: bucketPrice(hi),
		VAL: bucketPrice(lo),
	})
}
