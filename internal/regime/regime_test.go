package regime

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want Regime
	}{
		{"absent vix", Inputs{ADXPresent: true, ADXSPY: decimal.NewFromInt(25)}, InsufficientData},
		{"restricted date", Inputs{VIXPresent: true, VIX: decimal.NewFromInt(10), ADXPresent: true, ADXSPY: decimal.NewFromInt(10), IsRestricted: true}, EventRisk},
		{"vix >= 30", Inputs{VIXPresent: true, VIX: decimal.NewFromInt(30), ADXPresent: true, ADXSPY: decimal.NewFromInt(10)}, EventRisk},
		{"high vol expansion", Inputs{VIXPresent: true, VIX: decimal.NewFromInt(22), ADXPresent: true, ADXSPY: decimal.NewFromInt(25)}, HighVolExpansion},
		{"trending", Inputs{VIXPresent: true, VIX: decimal.NewFromInt(21), ADXPresent: true, ADXSPY: decimal.NewFromInt(20)}, Trending},
		{"chop", Inputs{VIXPresent: true, VIX: decimal.NewFromInt(15), ADXPresent: true, ADXSPY: decimal.NewFromInt(10)}, LowVolChop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.in))
		})
	}
}
