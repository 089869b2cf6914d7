// Package broker is the adapter boundary to the brokerage: quotes,
// option chains, multi-leg order submission, and account/position
// reconciliation. Grounded on internal/adapters/{quotes.go,factory.go}
// (interface + factory + health-monitor-with-fallback pattern).
package broker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the tagged variant for a leg's option type (spec 9
// Source-side polymorphism).
type OptionType string

const (
	Put  OptionType = "PUT"
	Call OptionType = "CALL"
)

func (o OptionType) occLetter() (string, error) {
	switch o {
	case Put:
		return "P", nil
	case Call:
		return "C", nil
	default:
		return "", fmt.Errorf("broker: unknown option type %q", o)
	}
}

// EncodeOCC builds the standard option symbol: root + YYMMDD + C/P +
// strike*1000 zero-padded to 8 digits (spec 6).
func EncodeOCC(root string, expiration time.Time, optType OptionType, strike decimal.Decimal) (string, error) {
	letter, err := optType.occLetter()
	if err != nil {
		return "", err
	}
	dateCode := expiration.Format("060102")
	strikeThousandths := strike.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
	if strikeThousandths < 0 || strikeThousandths > 99999999 {
		return "", fmt.Errorf("broker: strike %s out of OCC encodable range", strike)
	}
	return fmt.Sprintf("%s%s%s%08d", root, dateCode, letter, strikeThousandths), nil
}

// DecodeOCCStrike extracts the strike (in dollars, fractions kept) from an OCC
// symbol's trailing 8 digits, used by the round-trip test in spec 8.
func DecodeOCCStrike(occSymbol string) (decimal.Decimal, error) {
	if len(occSymbol) < 8 {
		return decimal.Zero, fmt.Errorf("broker: OCC symbol %q too short", occSymbol)
	}
	tail := occSymbol[len(occSymbol)-8:]
	thousandths, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("broker: OCC symbol %q strike segment invalid: %w", occSymbol, err)
	}
	return decimal.NewFromInt(thousandths).Div(decimal.NewFromInt(1000)), nil
}
