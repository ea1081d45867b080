// audit_positions - A utility to list option positions grouped into vertical
// spreads. Legs that cannot be paired into a vertical are reported separately
// so stray fills are easy to spot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/config"
	"github.com/eddiefleurent/vance_verticals/internal/positions"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Broker: %s (paper: %t)\n\n", cfg.Broker.Provider, cfg.IsPaperTrading())
	}

	client := broker.NewAlpacaClient(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.IsPaperTrading())
	if cfg.Broker.TradeEndpoint != "" || cfg.Broker.DataEndpoint != "" {
		client = &broker.AlpacaClient{AlpacaAPI: broker.NewAlpacaAPIWithBaseURLs(
			cfg.Broker.APIKey, cfg.Broker.APISecret,
			cfg.Broker.TradeEndpoint, cfg.Broker.DataEndpoint)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := client.GetPositions(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch positions: %v", err)
	}

	logger := logrus.New()
	if !*verbose {
		logger.SetLevel(logrus.WarnLevel)
	}
	grouped := positions.GroupSpreads(items, logger)

	if *jsonOutput {
		printJSON(grouped)
		return
	}
	printReport(grouped)
}

type spreadReport struct {
	Underlying string  `json:"underlying"`
	Expiration string  `json:"expiration"`
	Type       string  `json:"type"`
	LongSymbol string  `json:"long_symbol"`
	LongStrike float64 `json:"long_strike"`
	ShortSym   string  `json:"short_symbol"`
	ShortStrk  float64 `json:"short_strike"`
	Width      float64 `json:"width"`
}

type legReport struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

func buildReport(grouped positions.Grouped) ([]spreadReport, []legReport) {
	var spreads []spreadReport
	for _, key := range grouped.Keys() {
		pair := grouped.Spreads[key]
		spreads = append(spreads, spreadReport{
			Underlying: key.Underlying,
			Expiration: key.Expiration,
			Type:       string(key.Type),
			LongSymbol: pair.Long.Position.Symbol,
			LongStrike: pair.Long.Contract.Strike,
			ShortSym:   pair.Short.Position.Symbol,
			ShortStrk:  pair.Short.Contract.Strike,
			Width:      pair.Short.Contract.Strike - pair.Long.Contract.Strike,
		})
	}
	var legs []legReport
	for _, leg := range grouped.Ungrouped {
		legs = append(legs, legReport{
			Symbol:   leg.Position.Symbol,
			Side:     leg.Position.Side,
			Quantity: leg.Position.Quantity,
		})
	}
	return spreads, legs
}

func printJSON(grouped positions.Grouped) {
	spreads, legs := buildReport(grouped)
	out := struct {
		Spreads   []spreadReport `json:"spreads"`
		Ungrouped []legReport    `json:"ungrouped"`
	}{spreads, legs}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal JSON: %v", err)
	}
	fmt.Println(string(data))
}

func printReport(grouped positions.Grouped) {
	spreads, legs := buildReport(grouped)

	fmt.Printf("=== VERTICAL SPREADS (%d) ===\n", len(spreads))
	for _, s := range spreads {
		fmt.Printf("  %s %s %s: long %.2f (%s) / short %.2f (%s), width %.2f\n",
			s.Underlying, s.Expiration, s.Type,
			s.LongStrike, s.LongSymbol, s.ShortStrk, s.ShortSym, s.Width)
	}

	fmt.Printf("\n=== UNGROUPED LEGS (%d) ===\n", len(legs))
	for _, l := range legs {
		fmt.Printf("  %s %s qty %.0f\n", l.Symbol, l.Side, l.Quantity)
	}

	if len(legs) > 0 {
		fmt.Printf("\nUngrouped legs are option positions that did not pair into a\n")
		fmt.Printf("vertical. Check for partial fills or manually opened contracts.\n")
	}
}
