package broker

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// LegSide is the tagged variant for a leg's side relative to the
// underlying position (spec 9 Source-side polymorphism).
type LegSide string

const (
	Buy  LegSide = "BUY"
	Sell LegSide = "SELL"
)

// ProposalSide is OPEN or CLOSE.
type ProposalSide string

const (
	Open  ProposalSide = "OPEN"
	Close ProposalSide = "CLOSE"
)

// BrokerLegSide is the brokerage's four-way order side vocabulary.
type BrokerLegSide string

const (
	BuyToOpen   BrokerLegSide = "buy_to_open"
	SellToOpen  BrokerLegSide = "sell_to_open"
	BuyToClose  BrokerLegSide = "buy_to_close"
	SellToClose BrokerLegSide = "sell_to_close"
)

// ResolveBrokerSide maps (leg side, proposal side) to the brokerage's
// order-side vocabulary (spec 4.H Execution).
func ResolveBrokerSide(leg LegSide, side ProposalSide) (BrokerLegSide, error) {
	switch {
	case side == Open && leg == Sell:
		return SellToOpen, nil
	case side == Open && leg == Buy:
		return BuyToOpen, nil
	case side == Close && leg == Sell:
		return BuyToClose, nil
	case side == Close && leg == Buy:
		return SellToClose, nil
	default:
		return "", fmt.Errorf("broker: unresolvable leg side %q / proposal side %q", leg, side)
	}
}

// OrderLeg is one leg of a multi-leg order ready for submission.
type OrderLeg struct {
	OptionSymbol string
	Side         BrokerLegSide
	Quantity     int64
}

// MultiLegOrder is a single order that atomically submits multiple
// option legs with a net limit price (spec 6).
type MultiLegOrder struct {
	Underlying string
	Type       string // "credit" | "debit" | "limit"
	Duration   string // always "day"
	Price      decimal.Decimal
	Legs       []OrderLeg
}

// EncodeForm serialises the order as the indexed url.Values form the
// brokerage expects: option_symbol[i], side[i], quantity[i] (spec 6).
func (o MultiLegOrder) EncodeForm() url.Values {
	v := url.Values{}
	v.Set("class", "multileg")
	v.Set("symbol", o.Underlying)
	v.Set("type", o.Type)
	v.Set("duration", o.Duration)
	v.Set("price", o.Price.Abs().StringFixed(2))
	for i, leg := range o.Legs {
		idx := strconv.Itoa(i)
		v.Set("option_symbol["+idx+"]", leg.OptionSymbol)
		v.Set("side["+idx+"]", string(leg.Side))
		v.Set("quantity["+idx+"]", strconv.FormatInt(leg.Quantity, 10))
	}
	return v
}
