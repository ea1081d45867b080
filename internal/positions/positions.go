// Package positions reconstructs vertical spreads from flat broker position
// lists. The broker reports individual option legs; pairing them back into
// the spreads they belong to is done here.
package positions

import (
	"sort"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/occ"
	"github.com/sirupsen/logrus"
)

// SpreadKey identifies the bucket a leg can pair within: same underlying,
// same expiration date, same option type.
type SpreadKey struct {
	Underlying string         `json:"underlying"`
	Expiration string         `json:"expiration"`
	Type       occ.OptionType `json:"type"`
}

// Leg is a held option position with its decoded contract.
type Leg struct {
	Contract occ.Contract
	Position broker.PositionItem
}

// LegPair is a reconstructed two-leg vertical: Long holds the lower strike.
type LegPair struct {
	Long  Leg
	Short Leg
}

// Grouped is the result of reconstructing spreads from a position list.
// Ungrouped carries every leg that could not be paired, including legs at
// keys with three or more positions beyond the paired two.
type Grouped struct {
	Spreads   map[SpreadKey]LegPair
	Ungrouped []Leg
}

// GroupSpreads buckets option positions by (underlying, expiration, type)
// and pairs the two lowest strikes in each bucket as long/short, but only
// when the lower strike is actually held long and the higher held short.
// Non-option positions and undecodable symbols are skipped with a debug
// log; they are expected in mixed accounts.
func GroupSpreads(items []broker.PositionItem, logger *logrus.Logger) Grouped {
	buckets := make(map[SpreadKey][]Leg)
	for _, item := range items {
		if item.AssetClass != "" && item.AssetClass != "us_option" {
			continue
		}
		contract, err := occ.Parse(item.Symbol)
		if err != nil {
			if logger != nil {
				logger.WithField("symbol", item.Symbol).Debug("skipping non-option position")
			}
			continue
		}
		key := SpreadKey{
			Underlying: contract.Underlying,
			Expiration: contract.ExpirationDate(),
			Type:       contract.Type,
		}
		buckets[key] = append(buckets[key], Leg{Contract: contract, Position: item})
	}

	out := Grouped{Spreads: make(map[SpreadKey]LegPair)}
	for key, legs := range buckets {
		sort.Slice(legs, func(i, j int) bool {
			return legs[i].Contract.Strike < legs[j].Contract.Strike
		})
		if len(legs) < 2 {
			out.Ungrouped = append(out.Ungrouped, legs...)
			continue
		}
		lower, higher := legs[0], legs[1]
		if lower.Position.Side == "long" && higher.Position.Side == "short" {
			out.Spreads[key] = LegPair{Long: lower, Short: higher}
			out.Ungrouped = append(out.Ungrouped, legs[2:]...)
		} else {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"underlying": key.Underlying,
					"expiration": key.Expiration,
					"lower_side": lower.Position.Side,
					"higher_side": higher.Position.Side,
				}).Warn("legs do not form a vertical, leaving ungrouped")
			}
			out.Ungrouped = append(out.Ungrouped, legs...)
		}
	}

	// Deterministic order for reporting.
	sort.Slice(out.Ungrouped, func(i, j int) bool {
		return out.Ungrouped[i].Position.Symbol < out.Ungrouped[j].Position.Symbol
	})
	return out
}

// Keys returns the grouped spread keys sorted by underlying, then
// expiration, then type.
func (g Grouped) Keys() []SpreadKey {
	keys := make([]SpreadKey, 0, len(g.Spreads))
	for k := range g.Spreads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Underlying != b.Underlying {
			return a.Underlying < b.Underlying
		}
		if a.Expiration != b.Expiration {
			return a.Expiration < b.Expiration
		}
		return a.Type < b.Type
	})
	return keys
}
