package retry

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/sirupsen/logrus"
)

// --- Test helpers ---

type fakeBroker struct {
	broker.Broker // unimplemented methods panic if called

	callCount int32

	// if successAfterN > 0, fail attempts before N with submitErr
	successAfterN int
	submitErr     error
	orderID       string
}

func (f *fakeBroker) SubmitSpreadOrder(_ context.Context, _ broker.SpreadOrder) (string, error) {
	n := atomic.AddInt32(&f.callCount, 1)
	if f.successAfterN > 0 && int(n) >= f.successAfterN {
		return f.orderID, nil
	}
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "", errors.New("timeout")
}

func (f *fakeBroker) calls() int {
	return int(atomic.LoadInt32(&f.callCount))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func testOrder() broker.SpreadOrder {
	return broker.SpreadOrder{
		OrderClass: "mleg",
		Quantity:   1,
		Type:       "limit",
		LimitPrice: "2.20",
		ClientID:   "retry-test",
		Legs: []broker.OrderLeg{
			{Symbol: "BP250815C00030000", Side: "buy", RatioQty: 1, PositionIntent: "buy_to_open"},
			{Symbol: "BP250815C00032500", Side: "sell", RatioQty: 1, PositionIntent: "sell_to_open"},
		},
	}
}

func TestSubmitSpreadOrderWithRetry_FirstAttemptSucceeds(t *testing.T) {
	fb := &fakeBroker{successAfterN: 1, orderID: "order-1"}
	client := NewClient(fb, quietLogger(), fastConfig())

	orderID, err := client.SubmitSpreadOrderWithRetry(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "order-1" {
		t.Errorf("order ID = %q, want order-1", orderID)
	}
	if fb.calls() != 1 {
		t.Errorf("broker called %d times, want 1", fb.calls())
	}
}

func TestSubmitSpreadOrderWithRetry_TransientThenSuccess(t *testing.T) {
	fb := &fakeBroker{successAfterN: 3, orderID: "order-2", submitErr: errors.New("connection reset by peer")}
	client := NewClient(fb, quietLogger(), fastConfig())

	orderID, err := client.SubmitSpreadOrderWithRetry(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "order-2" {
		t.Errorf("order ID = %q, want order-2", orderID)
	}
	if fb.calls() != 3 {
		t.Errorf("broker called %d times, want 3", fb.calls())
	}
}

func TestSubmitSpreadOrderWithRetry_ExhaustsRetries(t *testing.T) {
	fb := &fakeBroker{submitErr: errors.New("503 service unavailable")}
	client := NewClient(fb, quietLogger(), fastConfig())

	_, err := client.SubmitSpreadOrderWithRetry(context.Background(), testOrder())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Errorf("error = %v, want attempt count", err)
	}
	if fb.calls() != 4 {
		t.Errorf("broker called %d times, want 4 (1 + 3 retries)", fb.calls())
	}
}

func TestSubmitSpreadOrderWithRetry_PermanentErrorAborts(t *testing.T) {
	fb := &fakeBroker{submitErr: &broker.APIError{Status: 422, Body: "invalid leg"}}
	client := NewClient(fb, quietLogger(), fastConfig())

	_, err := client.SubmitSpreadOrderWithRetry(context.Background(), testOrder())
	if err == nil {
		t.Fatal("expected error for permanent failure")
	}
	if fb.calls() != 1 {
		t.Errorf("broker called %d times, want 1 (no retry on 4xx)", fb.calls())
	}
}

func TestSubmitSpreadOrderWithRetry_NonTransientAborts(t *testing.T) {
	fb := &fakeBroker{submitErr: errors.New("order rejected: insufficient buying power")}
	client := NewClient(fb, quietLogger(), fastConfig())

	_, err := client.SubmitSpreadOrderWithRetry(context.Background(), testOrder())
	if err == nil {
		t.Fatal("expected error")
	}
	if fb.calls() != 1 {
		t.Errorf("broker called %d times, want 1 (not transient)", fb.calls())
	}
}

func TestSubmitSpreadOrderWithRetry_ContextCanceled(t *testing.T) {
	fb := &fakeBroker{submitErr: errors.New("timeout")}
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour // force cancellation during backoff

	client := NewClient(fb, quietLogger(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.SubmitSpreadOrderWithRetry(ctx, testOrder())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "canceled") {
		t.Errorf("error = %v, want cancellation", err)
	}
}

func TestCalculateNextBackoff_Capped(t *testing.T) {
	client := NewClient(&fakeBroker{}, quietLogger(), Config{
		MaxRetries:     1,
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Timeout:        time.Minute,
	})

	backoff := 10 * time.Second
	for i := 0; i < 5; i++ {
		backoff = client.calculateNextBackoff(backoff)
		// Cap plus up to 25% jitter.
		if backoff > 2*time.Second+500*time.Millisecond {
			t.Fatalf("backoff %v exceeds cap with jitter", backoff)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	client := NewClient(&fakeBroker{}, quietLogger())

	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("upstream returned 502"), true},
		{errors.New("order rejected"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := client.isTransientError(tt.err); got != tt.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
