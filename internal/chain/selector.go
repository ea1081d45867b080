package chain

import (
	"errors"
	"fmt"
	"math"
)

// Selection failure sentinels. All are recoverable: callers typically fall
// back to another policy or widen the search window.
var (
	// ErrNoBracket is returned when the reference price sits outside the
	// ladder's strike range so no below/above pair exists.
	ErrNoBracket = errors.New("no strikes bracketing reference price")
	// ErrNoSpreadWidthMatch is returned when no strike at or beyond the
	// target width exists above the chosen long strike.
	ErrNoSpreadWidthMatch = errors.New("no strike matching target spread width")
	// ErrStrikeNotFound is returned by exact lookup when a requested
	// strike is absent from the ladder.
	ErrStrikeNotFound = errors.New("strike not found in ladder")
)

// strikeEpsilon is the tolerance for matching strike prices exactly.
const strikeEpsilon = 1e-4

// Pair is a candidate long/short leg pairing selected from one expiration's
// entries. Long always carries the lower strike.
type Pair struct {
	Long  Entry
	Short Entry
}

// Selector chooses a long/short strike pair from one expiration's entries.
// Implementations return a tagged failure instead of panicking or guessing so
// policies can be chained.
type Selector interface {
	Select(entries []Entry) (Pair, error)
	Name() string
}

// BracketSelector picks the nearest strikes below and above a reference
// price: long = largest strike < Price, short = smallest strike > Price.
type BracketSelector struct {
	Price float64
}

// Name implements Selector.
func (s BracketSelector) Name() string { return "bracket-nearest" }

// Select implements Selector.
func (s BracketSelector) Select(entries []Entry) (Pair, error) {
	var below, above *Entry
	for i := range entries {
		e := entries[i]
		if e.Strike < s.Price && (below == nil || e.Strike > below.Strike) {
			below = &entries[i]
		}
		if e.Strike > s.Price && (above == nil || e.Strike < above.Strike) {
			above = &entries[i]
		}
	}
	if below == nil || above == nil {
		return Pair{}, fmt.Errorf("%w: price %.2f vs %d strikes", ErrNoBracket, s.Price, len(entries))
	}
	return Pair{Long: *below, Short: *above}, nil
}

// WidthSelector picks the strike nearest the reference price as the long leg
// and then the strike nearest long+Width (considering only strikes at or
// beyond that distance) as the short leg.
type WidthSelector struct {
	Price float64
	Width float64
}

// Name implements Selector.
func (s WidthSelector) Name() string { return "nearest-with-width" }

// Select implements Selector.
func (s WidthSelector) Select(entries []Entry) (Pair, error) {
	if len(entries) == 0 {
		return Pair{}, fmt.Errorf("%w: empty ladder", ErrNoSpreadWidthMatch)
	}

	long := entries[0]
	bestDiff := math.Abs(long.Strike - s.Price)
	for _, e := range entries[1:] {
		if diff := math.Abs(e.Strike - s.Price); diff < bestDiff {
			long = e
			bestDiff = diff
		}
	}

	target := long.Strike + s.Width
	var short *Entry
	shortDiff := math.MaxFloat64
	for i := range entries {
		e := entries[i]
		if e.Strike < target {
			continue
		}
		if diff := math.Abs(e.Strike - target); diff < shortDiff {
			short = &entries[i]
			shortDiff = diff
		}
	}
	if short == nil {
		return Pair{}, fmt.Errorf("%w: no strike >= %.2f above long %.2f",
			ErrNoSpreadWidthMatch, target, long.Strike)
	}
	return Pair{Long: long, Short: *short}, nil
}

// ExactSelector locates explicit long and short strikes in the ladder.
type ExactSelector struct {
	LongStrike  float64
	ShortStrike float64
}

// Name implements Selector.
func (s ExactSelector) Name() string { return "exact-strike" }

// Select implements Selector.
func (s ExactSelector) Select(entries []Entry) (Pair, error) {
	long := findByStrike(entries, s.LongStrike)
	if long == nil {
		return Pair{}, fmt.Errorf("%w: long strike %.3f", ErrStrikeNotFound, s.LongStrike)
	}
	short := findByStrike(entries, s.ShortStrike)
	if short == nil {
		return Pair{}, fmt.Errorf("%w: short strike %.3f", ErrStrikeNotFound, s.ShortStrike)
	}
	return Pair{Long: *long, Short: *short}, nil
}

func findByStrike(entries []Entry, strike float64) *Entry {
	for i := range entries {
		if math.Abs(entries[i].Strike-strike) <= strikeEpsilon {
			return &entries[i]
		}
	}
	return nil
}

// FirstMatch tries each selector in order against the same entries and
// returns the first successful pair. The fallback chain is explicit here
// instead of nested in conditionals so each policy stays testable on its
// own. When every policy fails, the errors are joined so the caller can
// still distinguish the individual failure modes.
func FirstMatch(entries []Entry, selectors ...Selector) (Pair, error) {
	if len(selectors) == 0 {
		return Pair{}, errors.New("no selection policies supplied")
	}
	var failures []error
	for _, sel := range selectors {
		pair, err := sel.Select(entries)
		if err == nil {
			return pair, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", sel.Name(), err))
	}
	return Pair{}, errors.Join(failures...)
}
