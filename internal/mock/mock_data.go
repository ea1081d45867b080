// Package mock provides a synthetic broker.Broker for development without
// market data credentials. Prices random-walk around a starting point so
// the monitor loop produces a moving series.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/google/uuid"
)

type DataProvider struct {
	symbol       string
	currentPrice float64
	expirations  []string
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewDataProvider creates a synthetic feed for one underlying. Expirations
// are the next four Fridays.
func NewDataProvider(symbol string, startPrice float64) *DataProvider {
	exps := make([]string, 0, 4)
	d := time.Now()
	for len(exps) < 4 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() == time.Friday {
			exps = append(exps, d.Format("2006-01-02"))
		}
	}
	return &DataProvider{
		symbol:       symbol,
		currentPrice: startPrice + secureFloat64()*2,
		expirations:  exps,
	}
}

func (m *DataProvider) GetLatestStockPrice(_ context.Context, _ string) (float64, error) {
	// drift the underlying a little each poll
	m.currentPrice += (secureFloat64() - 0.5) * 0.5
	return m.currentPrice, nil
}

func (m *DataProvider) GetOptionChain(
	_ context.Context, underlying, optionType, expiration string,
	strikeMin, strikeMax float64,
) (map[string]broker.ChainEntry, error) {
	expirations := m.expirations
	if expiration != "" {
		if _, err := time.Parse("2006-01-02", expiration); err != nil {
			return nil, fmt.Errorf("invalid expiration format: %w", err)
		}
		expirations = []string{expiration}
	}

	typeChar := "C"
	if optionType == "put" {
		typeChar = "P"
	}

	out := make(map[string]broker.ChainEntry)
	interval := 2.5
	start := math.Floor(m.currentPrice/interval)*interval - 4*interval
	for _, exp := range expirations {
		expDate, err := time.Parse("2006-01-02", exp)
		if err != nil {
			return nil, fmt.Errorf("invalid expiration format: %w", err)
		}
		for strike := start; strike <= start+8*interval; strike += interval {
			if strikeMin > 0 && strike < strikeMin {
				continue
			}
			if strikeMax > 0 && strike > strikeMax {
				continue
			}
			mid := m.contractValue(strike, expDate, optionType)
			symbol := fmt.Sprintf("%s%s%s%08d", underlying, expDate.Format("060102"), typeChar, int(strike*1000))
			s := strike
			out[symbol] = broker.ChainEntry{
				BidPrice:    math.Max(0.01, mid-0.05),
				AskPrice:    mid + 0.05,
				StrikePrice: &s,
				Timestamp:   time.Now(),
			}
		}
	}
	return out, nil
}

// contractValue is a rough intrinsic-plus-time value, enough to make spreads
// price sensibly. Not a valuation model.
func (m *DataProvider) contractValue(strike float64, exp time.Time, optionType string) float64 {
	intrinsic := m.currentPrice - strike
	if optionType == "put" {
		intrinsic = strike - m.currentPrice
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	dte := math.Max(0, time.Until(exp).Hours()/24)
	timeValue := 0.3 * math.Sqrt(dte/365) * m.currentPrice * 0.1 *
		math.Exp(-math.Abs(strike-m.currentPrice)*0.05)
	return math.Max(0.05, intrinsic+timeValue)
}

func (m *DataProvider) GetOptionQuotes(ctx context.Context, symbols []string) (map[string]broker.Quote, error) {
	chain, err := m.GetOptionChain(ctx, m.symbol, "call", "", 0, 0)
	if err != nil {
		return nil, err
	}
	putChain, err := m.GetOptionChain(ctx, m.symbol, "put", "", 0, 0)
	if err != nil {
		return nil, err
	}
	for k, v := range putChain {
		chain[k] = v
	}

	out := make(map[string]broker.Quote, len(symbols))
	for _, sym := range symbols {
		if entry, ok := chain[sym]; ok {
			out[sym] = broker.Quote{BidPrice: entry.BidPrice, AskPrice: entry.AskPrice, Timestamp: entry.Timestamp}
			continue
		}
		// Unknown contract: synthesize a stable-ish quote so monitoring
		// keeps producing points.
		mid := 1.0 + secureFloat64()
		out[sym] = broker.Quote{BidPrice: mid - 0.05, AskPrice: mid + 0.05, Timestamp: time.Now()}
	}
	return out, nil
}

func (m *DataProvider) GetExpirations(_ context.Context, _ string) ([]string, error) {
	out := make([]string, len(m.expirations))
	copy(out, m.expirations)
	sort.Strings(out)
	return out, nil
}

func (m *DataProvider) GetMarketClock(_ context.Context) (*broker.MarketClock, error) {
	now := time.Now()
	return &broker.MarketClock{
		IsOpen:    true,
		Timestamp: now,
		NextClose: now.Add(4 * time.Hour),
	}, nil
}

func (m *DataProvider) IsMarketOpen(_ context.Context) (bool, error) {
	return true, nil
}

func (m *DataProvider) GetPositions(_ context.Context) ([]broker.PositionItem, error) {
	// One held vertical on the tracked underlying.
	exp, err := time.Parse("2006-01-02", m.expirations[0])
	if err != nil {
		return nil, err
	}
	interval := 2.5
	long := math.Floor(m.currentPrice/interval) * interval
	short := long + interval
	return []broker.PositionItem{
		{
			Symbol:     fmt.Sprintf("%s%sC%08d", m.symbol, exp.Format("060102"), int(long*1000)),
			AssetClass: "us_option",
			Side:       "long",
			Quantity:   1,
		},
		{
			Symbol:     fmt.Sprintf("%s%sC%08d", m.symbol, exp.Format("060102"), int(short*1000)),
			AssetClass: "us_option",
			Side:       "short",
			Quantity:   1,
		},
	}, nil
}

func (m *DataProvider) SubmitSpreadOrder(_ context.Context, order broker.SpreadOrder) (string, error) {
	if len(order.Legs) != 2 {
		return "", fmt.Errorf("spread order requires exactly 2 legs, got %d", len(order.Legs))
	}
	return "mock-" + uuid.NewString(), nil
}

// Ensure DataProvider implements Broker at compile time.
var _ broker.Broker = (*DataProvider)(nil)
