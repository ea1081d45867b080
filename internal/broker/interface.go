package broker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Broker defines the interface for market data and order transmission. The
// spread engine itself never performs I/O; everything it needs from the
// outside world crosses this boundary.
type Broker interface {
	// Market data
	GetLatestStockPrice(ctx context.Context, symbol string) (float64, error)
	GetOptionChain(ctx context.Context, underlying, optionType, expiration string,
		strikeMin, strikeMax float64) (map[string]ChainEntry, error)
	GetOptionQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	GetExpirations(ctx context.Context, underlying string) ([]string, error)
	GetMarketClock(ctx context.Context) (*MarketClock, error)
	IsMarketOpen(ctx context.Context) (bool, error)

	// Account
	GetPositions(ctx context.Context) ([]PositionItem, error)

	// Order transmission. The payload is built by the spread engine;
	// SubmitSpreadOrder only transmits it and returns the broker's opaque
	// order identifier.
	SubmitSpreadOrder(ctx context.Context, order SpreadOrder) (string, error)
}

// AlpacaClient wraps AlpacaAPI to implement the Broker interface.
type AlpacaClient struct {
	*AlpacaAPI
}

// Ensure AlpacaClient implements Broker at compile time.
var _ Broker = (*AlpacaClient)(nil)

// NewAlpacaClient creates a new Alpaca broker client.
func NewAlpacaClient(apiKey, apiSecret string, paper bool) *AlpacaClient {
	return &AlpacaClient{AlpacaAPI: NewAlpacaAPI(apiKey, apiSecret, paper)}
}

// IsPermanentAPIError reports whether an error is a permanent API error.
// 4xx responses other than 429 will not succeed on retry.
func IsPermanentAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
	}
	return false
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so a
// flapping upstream stops the monitor loop from hammering it.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(
	broker Broker,
	logger *logrus.Logger,
	settings CircuitBreakerSettings,
) *CircuitBreakerBroker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// GetLatestStockPrice wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetLatestStockPrice(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.GetLatestStockPrice(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionChain(ctx context.Context, underlying, optionType, expiration string,
	strikeMin, strikeMax float64) (map[string]ChainEntry, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (map[string]ChainEntry, error) {
		return b.GetOptionChain(ctx, underlying, optionType, expiration, strikeMin, strikeMax)
	})
}

// GetOptionQuotes wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (map[string]Quote, error) {
		return b.GetOptionQuotes(ctx, symbols)
	})
}

// GetExpirations wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetExpirations(ctx context.Context, underlying string) ([]string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]string, error) {
		return b.GetExpirations(ctx, underlying)
	})
}

// GetMarketClock wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetMarketClock(ctx context.Context) (*MarketClock, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*MarketClock, error) {
		return b.GetMarketClock(ctx)
	})
}

// IsMarketOpen wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (bool, error) {
		return b.IsMarketOpen(ctx)
	})
}

// GetPositions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetPositions(ctx context.Context) ([]PositionItem, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]PositionItem, error) {
		return b.GetPositions(ctx)
	})
}

// SubmitSpreadOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SubmitSpreadOrder(ctx context.Context, order SpreadOrder) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) {
		return b.SubmitSpreadOrder(ctx, order)
	})
}
