// Package retry wraps order submission with bounded retries. Retries live
// here at the transport edge; the pricing engine itself never retries.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

type Client struct {
	broker broker.Broker
	logger *logrus.Logger
	config Config
}

func NewClient(b broker.Broker, logger *logrus.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// SubmitSpreadOrderWithRetry places a spread order, retrying transient
// failures with backoff. Permanent failures (validation rejections,
// auth errors) abort immediately.
func (c *Client) SubmitSpreadOrderWithRetry(ctx context.Context, order broker.SpreadOrder) (string, error) {
	submitCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-submitCtx.Done():
			return "", fmt.Errorf("submit timed out after %v: %w", c.config.Timeout, submitCtx.Err())
		default:
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("operation canceled: %w", ctx.Err())
		}

		c.logger.WithFields(logrus.Fields{
			"attempt":   attempt + 1,
			"max":       c.config.MaxRetries + 1,
			"client_id": order.ClientID,
		}).Info("submitting spread order")

		orderID, err := c.broker.SubmitSpreadOrder(submitCtx, order)
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"attempt":  attempt + 1,
				"order_id": orderID,
			}).Info("spread order placed")
			return orderID, nil
		}

		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("submit attempt failed")

		if broker.IsPermanentAPIError(err) {
			break
		}

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.WithField("backoff", backoff).Debug("transient error, retrying")
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-submitCtx.Done():
				return "", fmt.Errorf("submit timed out during backoff: %w", submitCtx.Err())
			case <-ctx.Done():
				return "", fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
			}
		} else {
			break
		}
	}

	return "", fmt.Errorf("failed to submit spread order after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Warn("failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
