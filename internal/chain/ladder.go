// Package chain assembles per-expiration strike ladders from raw option
// chain responses and selects long/short strike pairs from them.
package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/occ"
)

// ErrNoEligibleExpiration is returned when no expiration in a ladder has the
// two distinct strikes a spread requires.
var ErrNoEligibleExpiration = errors.New("no expiration with at least two strikes")

// Entry is one rung of a strike ladder: a decoded contract plus its latest
// quote.
type Entry struct {
	Symbol     string
	Strike     float64
	Expiration string // YYYY-MM-DD
	Bid        float64
	Ask        float64
}

// Quote returns the entry's bid/ask as a broker quote value.
func (e Entry) Quote() broker.Quote {
	return broker.Quote{BidPrice: e.Bid, AskPrice: e.Ask}
}

// Ladder maps expiration date (YYYY-MM-DD) to that expiration's entries,
// sorted strictly ascending by strike with duplicate strikes collapsed.
type Ladder map[string][]Entry

// BuildLadder decodes every token in a raw chain response and groups the
// surviving entries of the wanted type by expiration. Tokens that fail to
// decode, or decode to the wrong type, are expected noise from mixed feeds
// and are skipped, not failed. Tokens are visited in sorted order so
// rebuilding from an unchanged chain yields an identical ladder, with the
// lexically later duplicate winning a strike collision.
func BuildLadder(raw map[string]broker.ChainEntry, want occ.OptionType, logger *logrus.Logger) Ladder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tokens := make([]string, 0, len(raw))
	for token := range raw {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	// strike -> entry per expiration; later occurrences overwrite.
	byExp := make(map[string]map[float64]Entry)
	for _, token := range tokens {
		contract, err := occ.Parse(token)
		if err != nil {
			logger.WithError(err).Debug("Skipping undecodable chain token")
			continue
		}
		if contract.Type != want {
			continue
		}

		row := raw[token]
		strike := contract.Strike
		if row.StrikePrice != nil {
			strike = *row.StrikePrice
		}

		exp := contract.ExpirationDate()
		if byExp[exp] == nil {
			byExp[exp] = make(map[float64]Entry)
		}
		byExp[exp][strike] = Entry{
			Symbol:     token,
			Strike:     strike,
			Expiration: exp,
			Bid:        row.BidPrice,
			Ask:        row.AskPrice,
		}
	}

	ladder := make(Ladder, len(byExp))
	for exp, entries := range byExp {
		rungs := make([]Entry, 0, len(entries))
		for _, e := range entries {
			rungs = append(rungs, e)
		}
		sort.Slice(rungs, func(i, j int) bool { return rungs[i].Strike < rungs[j].Strike })
		ladder[exp] = rungs
	}
	return ladder
}

// Expirations returns the ladder's expiration dates in ascending order.
func (l Ladder) Expirations() []string {
	exps := make([]string, 0, len(l))
	for exp := range l {
		exps = append(exps, exp)
	}
	sort.Strings(exps)
	return exps
}

// Entries returns the ordered entries for one expiration, or nil if the
// expiration is absent.
func (l Ladder) Entries(expiration string) []Entry {
	return l[expiration]
}

// Strikes returns the ordered strike values for one expiration.
func (l Ladder) Strikes(expiration string) []float64 {
	entries := l[expiration]
	strikes := make([]float64, len(entries))
	for i, e := range entries {
		strikes[i] = e.Strike
	}
	return strikes
}

// SoonestEligible returns the earliest expiration holding at least two
// strikes, along with its entries. A spread needs two distinct strikes, so
// single-entry expirations are passed over.
func (l Ladder) SoonestEligible() (string, []Entry, error) {
	for _, exp := range l.Expirations() {
		if entries := l[exp]; len(entries) >= 2 {
			return exp, entries, nil
		}
	}
	return "", nil, fmt.Errorf("%w (checked %d expirations)", ErrNoEligibleExpiration, len(l))
}
