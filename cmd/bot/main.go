package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/config"
	"github.com/eddiefleurent/vance_verticals/internal/dashboard"
	"github.com/eddiefleurent/vance_verticals/internal/mock"
	"github.com/eddiefleurent/vance_verticals/internal/retry"
	"github.com/eddiefleurent/vance_verticals/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	var useMock bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&useMock, "mock", false, "Use synthetic market data instead of the broker API")
	flag.Parse()

	// .env is optional; real deployments export the variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(strings.ToLower(cfg.Environment.LogLevel)); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"mode":   cfg.Environment.Mode,
		"symbol": cfg.Strategy.Symbol,
	}).Info("starting vertical spread bot")
	if !cfg.IsPaperTrading() && cfg.Strategy.SubmitOrders {
		logger.Warn("LIVE TRADING MODE - real money at risk, waiting 10 seconds to confirm")
		time.Sleep(10 * time.Second)
	}

	var b broker.Broker
	if useMock {
		logger.Info("using synthetic market data")
		b = mock.NewDataProvider(cfg.Strategy.Symbol, 30)
	} else {
		client := broker.NewAlpacaClient(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.IsPaperTrading())
		if cfg.Broker.TradeEndpoint != "" || cfg.Broker.DataEndpoint != "" {
			client = &broker.AlpacaClient{AlpacaAPI: broker.NewAlpacaAPIWithBaseURLs(
				cfg.Broker.APIKey, cfg.Broker.APISecret,
				cfg.Broker.TradeEndpoint, cfg.Broker.DataEndpoint)}
		}
		client.AlpacaAPI.WithFeed(cfg.Broker.Feed)
		b = broker.NewCircuitBreakerBroker(client, logger)
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	submitter := retry.NewClient(b, logger)
	engine := NewEngine(cfg, b, submitter, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, stopping")
		cancel()
	}()

	session, err := engine.Start(ctx)
	if err != nil {
		logger.Fatalf("Failed to start monitoring session: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Listen:    cfg.Dashboard.Listen,
			AuthToken: cfg.Dashboard.AuthToken,
		}, store, b, session, logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return engine.Run(gctx, session)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Info("bot stopped")
}
