// Command spreadclose prices and optionally submits a closing order for an
// existing two-leg vertical. The legs are given as OCC option symbols; the
// close is quoted as a credit with an optional floor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/config"
	"github.com/eddiefleurent/vance_verticals/internal/retry"
	"github.com/eddiefleurent/vance_verticals/internal/spread"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	longSymbol := flag.String("long", "", "OCC symbol of the long leg (required)")
	shortSymbol := flag.String("short", "", "OCC symbol of the short leg (required)")
	quantity := flag.Int("qty", 1, "Number of spreads to close")
	minCredit := flag.Float64("min-credit", 0, "Floor for the per-contract credit")
	submit := flag.Bool("submit", false, "Actually submit the closing order")
	flag.Parse()

	if *longSymbol == "" || *shortSymbol == "" {
		fmt.Fprintln(os.Stderr, "both -long and -short are required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := spread.VerifyLegExpirations(*longSymbol, *shortSymbol); err != nil {
		logger.Fatalf("Leg check failed: %v", err)
	}

	client := broker.NewAlpacaClient(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.IsPaperTrading())
	if cfg.Broker.TradeEndpoint != "" || cfg.Broker.DataEndpoint != "" {
		client = &broker.AlpacaClient{AlpacaAPI: broker.NewAlpacaAPIWithBaseURLs(
			cfg.Broker.APIKey, cfg.Broker.APISecret,
			cfg.Broker.TradeEndpoint, cfg.Broker.DataEndpoint)}
	}
	client.AlpacaAPI.WithFeed(cfg.Broker.Feed)
	b := broker.NewCircuitBreakerBroker(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	quotes, err := b.GetOptionQuotes(ctx, []string{*longSymbol, *shortSymbol})
	if err != nil {
		logger.Fatalf("Failed to fetch quotes: %v", err)
	}
	longQuote, ok := quotes[*longSymbol]
	if !ok {
		logger.Fatalf("No quote for %s", *longSymbol)
	}
	shortQuote, ok := quotes[*shortSymbol]
	if !ok {
		logger.Fatalf("No quote for %s", *shortSymbol)
	}

	pricing, err := spread.PriceCredit(longQuote, shortQuote, *quantity, *minCredit)
	if err != nil {
		logger.Fatalf("Failed to price close: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"long":         *longSymbol,
		"short":        *shortSymbol,
		"per_contract": pricing.PerContract,
		"total":        pricing.Total,
		"quantity":     pricing.Quantity,
	}).Info("close priced")

	order, err := spread.BuildCloseOrder(*longSymbol, *shortSymbol, pricing, cfg.Strategy.TimeInForce, uuid.NewString())
	if err != nil {
		logger.Fatalf("Failed to build closing order: %v", err)
	}

	if !*submit {
		logger.WithField("limit_price", order.LimitPrice).Info("dry run, pass -submit to place the order")
		return
	}
	if !cfg.IsPaperTrading() {
		logger.Warn("LIVE TRADING MODE - closing a real position")
	}

	submitter := retry.NewClient(b, logger)
	orderID, err := submitter.SubmitSpreadOrderWithRetry(ctx, order)
	if err != nil {
		logger.Fatalf("Failed to submit closing order: %v", err)
	}
	logger.WithField("order_id", orderID).Info("closing order submitted")
}
