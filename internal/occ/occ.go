// Package occ decodes OCC-style option contract symbols such as
// BP250815C00032000 into their underlying, expiration, type, and strike
// components. The format is fixed-width and positional, so parsing anchors
// from both ends of the token rather than splitting on delimiters.
package occ

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Field widths of the fixed OCC layout: YYMMDD date, one type character,
// and an 8-digit strike with three implied decimal places.
const (
	dateWidth   = 6
	strikeWidth = 8
	// minSymbolLen is the shortest token the layout can produce.
	minSymbolLen = dateWidth + 1 + strikeWidth
)

// ErrMalformedIdentifier is returned when a token does not match the fixed
// OCC layout. Chain feeds routinely contain non-option tokens, so callers
// at the chain boundary should skip on this error rather than abort.
var ErrMalformedIdentifier = errors.New("malformed option identifier")

// OptionType is the contract right encoded in the symbol.
type OptionType string

const (
	// Call represents a call option contract
	Call OptionType = "call"
	// Put represents a put option contract
	Put OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Contract is the decoded form of an option symbol. It is an immutable
// snapshot; Parse either fills every field or returns an error, never a
// partially populated value.
type Contract struct {
	Symbol     string
	Underlying string
	Expiration time.Time
	Type       OptionType
	Strike     float64
}

// Parse decodes token into its Contract components.
//
// The underlying is the leading run of non-digit characters. Immediately
// after it come six date digits (YYMMDD), the type character ('C' or 'P'),
// and the last eight characters encode strike*1000. Every failure mode wraps
// ErrMalformedIdentifier.
func Parse(token string) (Contract, error) {
	if len(token) < minSymbolLen+1 {
		return Contract{}, fmt.Errorf("%w: %q is shorter than the minimum layout width", ErrMalformedIdentifier, token)
	}

	// Leading non-digit run is the underlying ticker.
	tickerEnd := 0
	for tickerEnd < len(token) && !isDigit(token[tickerEnd]) {
		tickerEnd++
	}
	if tickerEnd == 0 {
		return Contract{}, fmt.Errorf("%w: %q has no underlying ticker", ErrMalformedIdentifier, token)
	}
	if len(token)-tickerEnd != minSymbolLen {
		return Contract{}, fmt.Errorf("%w: %q has %d characters after the ticker, want %d",
			ErrMalformedIdentifier, token, len(token)-tickerEnd, minSymbolLen)
	}

	// Anchor the type character from the end, one position before the
	// strike field. This doubles as a cross-check against the ticker run.
	typeCh := token[len(token)-strikeWidth-1]
	var optType OptionType
	switch typeCh {
	case 'C':
		optType = Call
	case 'P':
		optType = Put
	default:
		return Contract{}, fmt.Errorf("%w: %q has unrecognized type character %q",
			ErrMalformedIdentifier, token, string(typeCh))
	}

	expStr := token[tickerEnd : tickerEnd+dateWidth]
	expiration, err := time.Parse("060102", expStr)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: %q has unparseable expiration %q", ErrMalformedIdentifier, token, expStr)
	}

	// The strike field must be exactly eight digits; Atoi alone would let
	// a leading sign through.
	strikeStr := token[len(token)-strikeWidth:]
	for i := 0; i < len(strikeStr); i++ {
		if !isDigit(strikeStr[i]) {
			return Contract{}, fmt.Errorf("%w: %q has unparseable strike %q", ErrMalformedIdentifier, token, strikeStr)
		}
	}
	strikeInt, err := strconv.Atoi(strikeStr)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: %q has unparseable strike %q", ErrMalformedIdentifier, token, strikeStr)
	}

	return Contract{
		Symbol:     token,
		Underlying: token[:tickerEnd],
		Expiration: expiration,
		Type:       optType,
		// Last 8 digits carry three implied decimal places.
		Strike: float64(strikeInt) / 1000,
	}, nil
}

// ExpirationDate returns the contract's expiration formatted as YYYY-MM-DD.
func (c Contract) ExpirationDate() string {
	return c.Expiration.Format("2006-01-02")
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
