// Package spread prices two-leg vertical spreads and builds the multi-leg
// order payloads that open or close them. Pricing is pure arithmetic over
// supplied quotes; no option valuation happens here.
package spread

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/chain"
	"github.com/eddiefleurent/vance_verticals/internal/occ"
	"github.com/eddiefleurent/vance_verticals/internal/util"
)

// sharesPerContract is the number of underlying shares one option contract
// represents.
const sharesPerContract = 100.0

var (
	// ErrExpirationMismatch is returned when the two legs of a spread do
	// not share an expiration date. This is fatal to the current pricing
	// attempt and never silently resolved: pricing is the last gate
	// before an order leaves the process, so it re-checks even when
	// upstream selection already did.
	ErrExpirationMismatch = errors.New("spread legs expire on different dates")

	// ErrNonPositivePrice is returned when a computed debit or credit is
	// not strictly positive. It is a policy gate for order submission,
	// not an arithmetic failure; monitoring paths may still display the
	// raw value.
	ErrNonPositivePrice = errors.New("spread price is not positive")
)

// Direction tags a pricing as money paid (debit) or received (credit).
type Direction string

const (
	// Debit means the spread costs money to open.
	Debit Direction = "debit"
	// Credit means the spread pays money to close or open.
	Credit Direction = "credit"
)

// Pricing is the cost or proceeds of a spread at some instant.
type Pricing struct {
	PerContract float64   `json:"per_contract"`
	Total       float64   `json:"total"`
	Quantity    int       `json:"quantity"`
	Direction   Direction `json:"direction"`
}

// Candidate identifies the two legs of a vertical spread. Long always holds
// the lower strike (bull call / bear put convention).
type Candidate struct {
	LongSymbol  string  `json:"long_symbol"`
	ShortSymbol string  `json:"short_symbol"`
	LongStrike  float64 `json:"long_strike"`
	ShortStrike float64 `json:"short_strike"`
	Expiration  string  `json:"expiration"`
}

// NewCandidate builds a Candidate from a selected pair, enforcing the
// long-below-short strike ordering and the shared-expiration invariant. A
// mismatched pair is a reportable failure, not a silent drop.
func NewCandidate(pair chain.Pair) (Candidate, error) {
	if pair.Long.Strike >= pair.Short.Strike {
		return Candidate{}, fmt.Errorf("long strike %.3f must be below short strike %.3f",
			pair.Long.Strike, pair.Short.Strike)
	}
	if pair.Long.Expiration != pair.Short.Expiration {
		return Candidate{}, fmt.Errorf("%w: %s vs %s",
			ErrExpirationMismatch, pair.Long.Expiration, pair.Short.Expiration)
	}
	return Candidate{
		LongSymbol:  pair.Long.Symbol,
		ShortSymbol: pair.Short.Symbol,
		LongStrike:  pair.Long.Strike,
		ShortStrike: pair.Short.Strike,
		Expiration:  pair.Long.Expiration,
	}, nil
}

// Width returns the strike distance between the two legs.
func (c Candidate) Width() float64 {
	return c.ShortStrike - c.LongStrike
}

// VerifyLegExpirations re-derives each leg's expiration from its symbol and
// fails with ErrExpirationMismatch if they differ. Run this before building
// any order payload, independent of whatever upstream selection checked.
func VerifyLegExpirations(longSymbol, shortSymbol string) error {
	longLeg, err := occ.Parse(longSymbol)
	if err != nil {
		return fmt.Errorf("long leg: %w", err)
	}
	shortLeg, err := occ.Parse(shortSymbol)
	if err != nil {
		return fmt.Errorf("short leg: %w", err)
	}
	if !longLeg.Expiration.Equal(shortLeg.Expiration) {
		return fmt.Errorf("%w: %s expires %s, %s expires %s", ErrExpirationMismatch,
			longSymbol, longLeg.ExpirationDate(), shortSymbol, shortLeg.ExpirationDate())
	}
	return nil
}

// PriceDebit prices opening a debit spread: buy the long leg at its ask,
// sell the short leg at its bid.
func PriceDebit(longQuote, shortQuote broker.Quote, quantity int) (Pricing, error) {
	perContract := longQuote.AskPrice - shortQuote.BidPrice
	pricing := Pricing{
		PerContract: perContract,
		Total:       perContract * sharesPerContract * float64(quantity),
		Quantity:    quantity,
		Direction:   Debit,
	}
	if perContract <= 0 {
		return pricing, fmt.Errorf("%w: debit %.2f", ErrNonPositivePrice, perContract)
	}
	return pricing, nil
}

// PriceCredit prices closing a held spread at the bid/ask midpoint of each
// leg: sell the held long, buy back the held short. When minCredit is
// positive the effective credit is floored there (e.g. at breakeven).
func PriceCredit(longQuote, shortQuote broker.Quote, quantity int, minCredit float64) (Pricing, error) {
	perContract := longQuote.Mid() - shortQuote.Mid()
	if minCredit > 0 && perContract < minCredit {
		perContract = minCredit
	}
	pricing := Pricing{
		PerContract: perContract,
		Total:       perContract * sharesPerContract * float64(quantity),
		Quantity:    quantity,
		Direction:   Credit,
	}
	if perContract <= 0 {
		return pricing, fmt.Errorf("%w: credit %.2f", ErrNonPositivePrice, perContract)
	}
	return pricing, nil
}

// MarkPrice is the monitoring mark for a held debit spread: long ask minus
// short bid, the cost to replace the position right now. Unlike the order
// path this never fails; zero or negative marks from illiquid quotes are
// still worth charting.
func MarkPrice(longQuote, shortQuote broker.Quote) float64 {
	return longQuote.AskPrice - shortQuote.BidPrice
}

// priceTick is the minimum limit price increment accepted for option orders.
const priceTick = 0.01

// BuildOpenOrder constructs the multi-leg limit order that opens the spread
// as a debit: buy-to-open the long leg, sell-to-open the short leg. The
// candidate's legs are re-verified against each other before the payload is
// produced.
func BuildOpenOrder(c Candidate, pricing Pricing, timeInForce, clientID string) (broker.SpreadOrder, error) {
	if err := VerifyLegExpirations(c.LongSymbol, c.ShortSymbol); err != nil {
		return broker.SpreadOrder{}, err
	}
	if pricing.PerContract <= 0 {
		return broker.SpreadOrder{}, fmt.Errorf("%w: limit %.2f", ErrNonPositivePrice, pricing.PerContract)
	}
	return broker.SpreadOrder{
		OrderClass:  "mleg",
		Quantity:    pricing.Quantity,
		Type:        "limit",
		LimitPrice:  util.FormatLimit(pricing.PerContract, priceTick),
		TimeInForce: timeInForce,
		ClientID:    clientID,
		Legs: []broker.OrderLeg{
			{Symbol: c.LongSymbol, Side: "buy", RatioQty: 1, PositionIntent: "buy_to_open"},
			{Symbol: c.ShortSymbol, Side: "sell", RatioQty: 1, PositionIntent: "sell_to_open"},
		},
	}, nil
}

// BuildCloseOrder constructs the multi-leg limit order that closes a held
// spread for a credit: sell-to-close the long leg, buy-to-close the short.
func BuildCloseOrder(longSymbol, shortSymbol string, pricing Pricing, timeInForce, clientID string) (broker.SpreadOrder, error) {
	if err := VerifyLegExpirations(longSymbol, shortSymbol); err != nil {
		return broker.SpreadOrder{}, err
	}
	if pricing.PerContract <= 0 {
		return broker.SpreadOrder{}, fmt.Errorf("%w: limit %.2f", ErrNonPositivePrice, pricing.PerContract)
	}
	return broker.SpreadOrder{
		OrderClass:  "mleg",
		Quantity:    pricing.Quantity,
		Type:        "limit",
		LimitPrice:  util.FormatLimit(pricing.PerContract, priceTick),
		TimeInForce: timeInForce,
		ClientID:    clientID,
		Legs: []broker.OrderLeg{
			{Symbol: longSymbol, Side: "sell", RatioQty: 1, PositionIntent: "sell_to_close"},
			{Symbol: shortSymbol, Side: "buy", RatioQty: 1, PositionIntent: "buy_to_close"},
		},
	}, nil
}
