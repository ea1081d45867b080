package spread

import (
	"errors"
	"testing"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/chain"
)

func TestPriceDebit(t *testing.T) {
	tests := []struct {
		name            string
		longAsk         float64
		shortBid        float64
		quantity        int
		wantPerContract float64
		wantTotal       float64
		wantErr         bool
	}{
		{name: "one contract", longAsk: 3.20, shortBid: 1.00, quantity: 1, wantPerContract: 2.20, wantTotal: 220.00},
		{name: "three contracts", longAsk: 3.20, shortBid: 1.00, quantity: 3, wantPerContract: 2.20, wantTotal: 660.00},
		{name: "zero debit rejected", longAsk: 1.00, shortBid: 1.00, quantity: 1, wantErr: true},
		{name: "inverted quotes rejected", longAsk: 0.50, shortBid: 1.00, quantity: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			long := broker.Quote{BidPrice: tt.longAsk - 0.10, AskPrice: tt.longAsk}
			short := broker.Quote{BidPrice: tt.shortBid, AskPrice: tt.shortBid + 0.10}
			pricing, err := PriceDebit(long, short, tt.quantity)
			if tt.wantErr {
				if !errors.Is(err, ErrNonPositivePrice) {
					t.Fatalf("expected ErrNonPositivePrice, got %v", err)
				}
				// Value is still populated for display even when the
				// policy gate rejects it.
				if pricing.Direction != Debit {
					t.Errorf("direction = %q, want debit", pricing.Direction)
				}
				return
			}
			if err != nil {
				t.Fatalf("PriceDebit: %v", err)
			}
			if !close2(pricing.PerContract, tt.wantPerContract) {
				t.Errorf("per contract = %.4f, want %.4f", pricing.PerContract, tt.wantPerContract)
			}
			if !close2(pricing.Total, tt.wantTotal) {
				t.Errorf("total = %.4f, want %.4f", pricing.Total, tt.wantTotal)
			}
			if pricing.Direction != Debit {
				t.Errorf("direction = %q, want debit", pricing.Direction)
			}
		})
	}
}

func TestPriceCredit(t *testing.T) {
	// Long mid = (4.00+4.20)/2 = 4.10, short mid = (1.90+2.10)/2 = 2.00.
	long := broker.Quote{BidPrice: 4.00, AskPrice: 4.20}
	short := broker.Quote{BidPrice: 1.90, AskPrice: 2.10}

	pricing, err := PriceCredit(long, short, 2, 0)
	if err != nil {
		t.Fatalf("PriceCredit: %v", err)
	}
	if !close2(pricing.PerContract, 2.10) {
		t.Errorf("per contract = %.4f, want 2.10", pricing.PerContract)
	}
	if !close2(pricing.Total, 420.00) {
		t.Errorf("total = %.4f, want 420.00", pricing.Total)
	}
	if pricing.Direction != Credit {
		t.Errorf("direction = %q, want credit", pricing.Direction)
	}
}

func TestPriceCredit_MinCreditFloor(t *testing.T) {
	// Midpoints give 0.05 credit; the floor lifts it to 0.50.
	long := broker.Quote{BidPrice: 1.00, AskPrice: 1.10}
	short := broker.Quote{BidPrice: 0.95, AskPrice: 1.05}

	pricing, err := PriceCredit(long, short, 1, 0.50)
	if err != nil {
		t.Fatalf("PriceCredit: %v", err)
	}
	if !close2(pricing.PerContract, 0.50) {
		t.Errorf("per contract = %.4f, want floor 0.50", pricing.PerContract)
	}
	if !close2(pricing.Total, 50.00) {
		t.Errorf("total = %.4f, want 50.00", pricing.Total)
	}
}

func TestPriceCredit_NonPositive(t *testing.T) {
	long := broker.Quote{BidPrice: 1.00, AskPrice: 1.10}
	short := broker.Quote{BidPrice: 2.00, AskPrice: 2.10}
	if _, err := PriceCredit(long, short, 1, 0); !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("expected ErrNonPositivePrice, got %v", err)
	}
}

func TestNewCandidate(t *testing.T) {
	pair := chain.Pair{
		Long:  chain.Entry{Symbol: "BP250815C00030000", Strike: 30, Expiration: "2025-08-15"},
		Short: chain.Entry{Symbol: "BP250815C00032500", Strike: 32.5, Expiration: "2025-08-15"},
	}
	c, err := NewCandidate(pair)
	if err != nil {
		t.Fatalf("NewCandidate: %v", err)
	}
	if c.Width() != 2.5 {
		t.Errorf("width = %.2f, want 2.50", c.Width())
	}
	if c.Expiration != "2025-08-15" {
		t.Errorf("expiration = %q", c.Expiration)
	}
}

func TestNewCandidate_Invalid(t *testing.T) {
	t.Run("strike order", func(t *testing.T) {
		pair := chain.Pair{
			Long:  chain.Entry{Symbol: "BP250815C00032500", Strike: 32.5, Expiration: "2025-08-15"},
			Short: chain.Entry{Symbol: "BP250815C00030000", Strike: 30, Expiration: "2025-08-15"},
		}
		if _, err := NewCandidate(pair); err == nil {
			t.Fatal("expected error for long strike above short strike")
		}
	})

	t.Run("expiration mismatch", func(t *testing.T) {
		pair := chain.Pair{
			Long:  chain.Entry{Symbol: "BP250815C00030000", Strike: 30, Expiration: "2025-08-15"},
			Short: chain.Entry{Symbol: "BP250822C00032500", Strike: 32.5, Expiration: "2025-08-22"},
		}
		if _, err := NewCandidate(pair); !errors.Is(err, ErrExpirationMismatch) {
			t.Fatalf("expected ErrExpirationMismatch, got %v", err)
		}
	})
}

func TestVerifyLegExpirations(t *testing.T) {
	if err := VerifyLegExpirations("BP250815C00030000", "BP250815C00032500"); err != nil {
		t.Fatalf("matching expirations rejected: %v", err)
	}
	err := VerifyLegExpirations("BP250815C00030000", "BP250822C00032500")
	if !errors.Is(err, ErrExpirationMismatch) {
		t.Fatalf("expected ErrExpirationMismatch, got %v", err)
	}
	if err := VerifyLegExpirations("garbage", "BP250815C00032500"); err == nil {
		t.Fatal("expected decode failure for malformed long leg")
	}
}

func TestBuildOpenOrder(t *testing.T) {
	c := Candidate{
		LongSymbol:  "BP250815C00030000",
		ShortSymbol: "BP250815C00032500",
		LongStrike:  30,
		ShortStrike: 32.5,
		Expiration:  "2025-08-15",
	}
	pricing := Pricing{PerContract: 2.204, Total: 220.40, Quantity: 1, Direction: Debit}

	order, err := BuildOpenOrder(c, pricing, "day", "test-open-1")
	if err != nil {
		t.Fatalf("BuildOpenOrder: %v", err)
	}
	if order.OrderClass != "mleg" || order.Type != "limit" {
		t.Errorf("order class/type = %q/%q", order.OrderClass, order.Type)
	}
	if order.LimitPrice != "2.20" {
		t.Errorf("limit price = %q, want 2.20 after tick rounding", order.LimitPrice)
	}
	if len(order.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(order.Legs))
	}
	long, short := order.Legs[0], order.Legs[1]
	if long.Side != "buy" || long.PositionIntent != "buy_to_open" || long.Symbol != c.LongSymbol {
		t.Errorf("long leg = %+v", long)
	}
	if short.Side != "sell" || short.PositionIntent != "sell_to_open" || short.Symbol != c.ShortSymbol {
		t.Errorf("short leg = %+v", short)
	}
}

func TestBuildOpenOrder_ExpirationMismatch(t *testing.T) {
	c := Candidate{
		LongSymbol:  "BP250815C00030000",
		ShortSymbol: "BP250822C00032500",
		LongStrike:  30,
		ShortStrike: 32.5,
	}
	pricing := Pricing{PerContract: 2.20, Quantity: 1, Direction: Debit}
	if _, err := BuildOpenOrder(c, pricing, "day", ""); !errors.Is(err, ErrExpirationMismatch) {
		t.Fatalf("expected ErrExpirationMismatch, got %v", err)
	}
}

func TestBuildCloseOrder(t *testing.T) {
	pricing := Pricing{PerContract: 1.15, Total: 115.00, Quantity: 1, Direction: Credit}

	order, err := BuildCloseOrder("BP250815C00030000", "BP250815C00032500", pricing, "day", "test-close-1")
	if err != nil {
		t.Fatalf("BuildCloseOrder: %v", err)
	}
	if order.LimitPrice != "1.15" {
		t.Errorf("limit price = %q, want 1.15", order.LimitPrice)
	}
	long, short := order.Legs[0], order.Legs[1]
	if long.Side != "sell" || long.PositionIntent != "sell_to_close" {
		t.Errorf("long leg = %+v", long)
	}
	if short.Side != "buy" || short.PositionIntent != "buy_to_close" {
		t.Errorf("short leg = %+v", short)
	}
}

func TestMarkPrice(t *testing.T) {
	long := broker.Quote{BidPrice: 3.00, AskPrice: 3.20}
	short := broker.Quote{BidPrice: 1.00, AskPrice: 1.20}
	if got := MarkPrice(long, short); !close2(got, 2.20) {
		t.Errorf("mark = %.4f, want 2.20", got)
	}
	// Crossed or stale quotes still produce a number for charting.
	if got := MarkPrice(broker.Quote{AskPrice: 0.50}, broker.Quote{BidPrice: 1.00}); !close2(got, -0.50) {
		t.Errorf("mark = %.4f, want -0.50", got)
	}
}

func close2(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
