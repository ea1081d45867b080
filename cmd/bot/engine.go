package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/vance_verticals/internal/broker"
	"github.com/eddiefleurent/vance_verticals/internal/chain"
	"github.com/eddiefleurent/vance_verticals/internal/config"
	"github.com/eddiefleurent/vance_verticals/internal/monitor"
	"github.com/eddiefleurent/vance_verticals/internal/occ"
	"github.com/eddiefleurent/vance_verticals/internal/retry"
	"github.com/eddiefleurent/vance_verticals/internal/spread"
	"github.com/eddiefleurent/vance_verticals/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine wires the pricing pipeline together: fetch chain, build ladder,
// select strikes, price, optionally submit, then monitor.
type Engine struct {
	config    *config.Config
	broker    broker.Broker
	submitter *retry.Client
	storage   storage.Interface
	logger    *logrus.Logger
}

func NewEngine(cfg *config.Config, b broker.Broker, submitter *retry.Client, store storage.Interface, logger *logrus.Logger) *Engine {
	return &Engine{
		config:    cfg,
		broker:    b,
		submitter: submitter,
		storage:   store,
		logger:    logger,
	}
}

// Start resolves the spread to watch, prices it, submits the opening order
// when configured to, and returns the monitoring session.
func (e *Engine) Start(ctx context.Context) (*monitor.Session, error) {
	candidate, price, err := e.FindSpread(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding spread: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"long":       candidate.LongSymbol,
		"short":      candidate.ShortSymbol,
		"expiration": candidate.Expiration,
		"width":      candidate.Width(),
		"underlying": price,
	}).Info("selected spread")

	pricing, orderID, err := e.openSpread(ctx, candidate)
	if err != nil {
		return nil, err
	}

	session := monitor.NewSession(
		e.config.Strategy.Symbol,
		candidate.LongSymbol,
		candidate.ShortSymbol,
		candidate.Expiration,
		pricing.Quantity,
		e.config.Monitor.MAWindow,
	)

	contract, err := occ.Parse(candidate.LongSymbol)
	if err == nil {
		session.Underlying = contract.Underlying
	}

	rec := &storage.SessionRecord{
		ID:          session.ID,
		Underlying:  session.Underlying,
		Expiration:  candidate.Expiration,
		Long:        storage.SpreadLeg{Symbol: candidate.LongSymbol, Strike: candidate.LongStrike, Side: "long"},
		Short:       storage.SpreadLeg{Symbol: candidate.ShortSymbol, Strike: candidate.ShortStrike, Side: "short"},
		Quantity:    pricing.Quantity,
		Direction:   string(pricing.Direction),
		PerContract: pricing.PerContract,
		Total:       pricing.Total,
		OrderID:     orderID,
		StartedAt:   session.StartedAt,
	}
	if err := e.storage.SetCurrentSession(rec); err != nil {
		e.logger.WithError(err).Warn("failed to persist session")
	}

	e.backfill(ctx, session)
	return session, nil
}

// FindSpread fetches market data and resolves the configured selection
// policy chain into a concrete candidate. The returned price is the
// underlying's latest trade.
func (e *Engine) FindSpread(ctx context.Context) (spread.Candidate, float64, error) {
	strat := e.config.Strategy

	price, err := e.broker.GetLatestStockPrice(ctx, strat.Symbol)
	if err != nil {
		return spread.Candidate{}, 0, fmt.Errorf("fetching underlying price: %w", err)
	}

	var strikeMin, strikeMax float64
	if strat.StrikeWindow > 0 {
		strikeMin = price - strat.StrikeWindow
		strikeMax = price + strat.StrikeWindow
	}

	raw, err := e.broker.GetOptionChain(ctx, strat.Symbol, strat.OptionType, strat.Expiration, strikeMin, strikeMax)
	if err != nil {
		return spread.Candidate{}, 0, fmt.Errorf("fetching option chain: %w", err)
	}

	ladder := chain.BuildLadder(raw, occ.OptionType(strat.OptionType), e.logger)

	entries, err := e.eligibleEntries(ladder)
	if err != nil {
		// A pinned expiration or an empty window can leave the ladder
		// short; retry against the full chain before giving up.
		if strat.Expiration != "" || strat.StrikeWindow > 0 {
			e.logger.WithError(err).Info("retrying against all expirations and strikes")
			raw, ferr := e.broker.GetOptionChain(ctx, strat.Symbol, strat.OptionType, "", 0, 0)
			if ferr != nil {
				return spread.Candidate{}, 0, fmt.Errorf("fetching full option chain: %w", ferr)
			}
			ladder = chain.BuildLadder(raw, occ.OptionType(strat.OptionType), e.logger)
			entries, err = e.eligibleEntries(ladder)
		}
		if err != nil {
			return spread.Candidate{}, 0, err
		}
	}

	pair, err := chain.FirstMatch(entries, e.selectors(price)...)
	if err != nil {
		return spread.Candidate{}, 0, fmt.Errorf("selecting strikes: %w", err)
	}

	candidate, err := spread.NewCandidate(pair)
	if err != nil {
		return spread.Candidate{}, 0, err
	}
	return candidate, price, nil
}

func (e *Engine) eligibleEntries(ladder chain.Ladder) ([]chain.Entry, error) {
	if exp := e.config.Strategy.Expiration; exp != "" {
		entries := ladder.Entries(exp)
		if len(entries) < 2 {
			return nil, fmt.Errorf("expiration %s has %d eligible strikes, need 2", exp, len(entries))
		}
		return entries, nil
	}
	_, entries, err := ladder.SoonestEligible()
	return entries, err
}

// selectors is the policy fallback chain, most specific first: pinned exact
// strikes, then target width, then price bracketing.
func (e *Engine) selectors(price float64) []chain.Selector {
	var out []chain.Selector
	if long, short, ok := e.config.PinnedStrikes(); ok {
		out = append(out, chain.ExactSelector{LongStrike: long, ShortStrike: short})
	}
	if e.config.Strategy.SpreadWidth > 0 {
		out = append(out, chain.WidthSelector{Price: price, Width: e.config.Strategy.SpreadWidth})
	}
	out = append(out, chain.BracketSelector{Price: price})
	return out
}

// openSpread prices the candidate as a debit and submits the opening order
// when submission is enabled. The pricing is returned even when submission
// is skipped so monitoring has an entry mark.
func (e *Engine) openSpread(ctx context.Context, candidate spread.Candidate) (spread.Pricing, string, error) {
	quotes, err := e.broker.GetOptionQuotes(ctx, []string{candidate.LongSymbol, candidate.ShortSymbol})
	if err != nil {
		return spread.Pricing{}, "", fmt.Errorf("fetching leg quotes: %w", err)
	}
	longQuote, ok := quotes[candidate.LongSymbol]
	if !ok {
		return spread.Pricing{}, "", fmt.Errorf("no quote for long leg %s", candidate.LongSymbol)
	}
	shortQuote, ok := quotes[candidate.ShortSymbol]
	if !ok {
		return spread.Pricing{}, "", fmt.Errorf("no quote for short leg %s", candidate.ShortSymbol)
	}

	pricing, err := spread.PriceDebit(longQuote, shortQuote, e.config.Strategy.Quantity)
	if err != nil {
		if errors.Is(err, spread.ErrNonPositivePrice) && !e.config.Strategy.SubmitOrders {
			// Still worth monitoring; only submission needs a positive
			// debit.
			e.logger.WithField("per_contract", pricing.PerContract).Warn("spread priced non-positive")
			return pricing, "", nil
		}
		return spread.Pricing{}, "", err
	}

	e.logger.WithFields(logrus.Fields{
		"per_contract": pricing.PerContract,
		"total":        pricing.Total,
		"direction":    pricing.Direction,
	}).Info("priced spread")

	if !e.config.Strategy.SubmitOrders {
		e.logger.Info("order submission disabled, monitoring only")
		return pricing, "", nil
	}

	order, err := spread.BuildOpenOrder(candidate, pricing, e.config.Strategy.TimeInForce, uuid.NewString())
	if err != nil {
		return spread.Pricing{}, "", fmt.Errorf("building order: %w", err)
	}

	orderID, err := e.submitter.SubmitSpreadOrderWithRetry(ctx, order)
	if err != nil {
		return spread.Pricing{}, "", fmt.Errorf("submitting order: %w", err)
	}
	e.logger.WithField("order_id", orderID).Info("opening order submitted")
	return pricing, orderID, nil
}

// backfill seeds the series with synthetic historical marks derived from the
// current quotes so the moving average becomes available sooner. Real
// historical bars would be better; the quote feed in use does not serve
// per-contract history.
func (e *Engine) backfill(ctx context.Context, session *monitor.Session) {
	minutes := e.config.Monitor.BackfillMinutes
	if minutes <= 0 {
		return
	}

	mark, err := e.currentMark(ctx, session)
	if err != nil {
		e.logger.WithError(err).Warn("backfill skipped")
		return
	}

	now := time.Now().UTC()
	points := make([]monitor.Point, 0, minutes)
	for i := minutes; i > 0; i-- {
		points = append(points, monitor.Point{
			Time:  now.Add(-time.Duration(i) * time.Minute),
			Price: mark,
		})
	}
	session.Series.Backfill(points)
	e.logger.WithField("points", len(points)).Debug("series backfilled")
}

func (e *Engine) currentMark(ctx context.Context, session *monitor.Session) (float64, error) {
	quotes, err := e.broker.GetOptionQuotes(ctx, []string{session.LongSymbol, session.ShortSymbol})
	if err != nil {
		return 0, err
	}
	longQuote, ok := quotes[session.LongSymbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", session.LongSymbol)
	}
	shortQuote, ok := quotes[session.ShortSymbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", session.ShortSymbol)
	}
	return spread.MarkPrice(longQuote, shortQuote), nil
}

// Run polls quotes and appends marks until the context ends.
func (e *Engine) Run(ctx context.Context, session *monitor.Session) error {
	ticker := time.NewTicker(e.config.PollInterval())
	defer ticker.Stop()

	e.monitorOnce(ctx, session)

	for {
		select {
		case <-ctx.Done():
			if err := e.storage.CloseSession(); err != nil && !errors.Is(err, storage.ErrNoActiveSession) {
				e.logger.WithError(err).Warn("failed to close session record")
			}
			return nil
		case <-ticker.C:
			e.monitorOnce(ctx, session)
		}
	}
}

func (e *Engine) monitorOnce(ctx context.Context, session *monitor.Session) {
	if open, err := e.broker.IsMarketOpen(ctx); err == nil && !open {
		e.logger.Debug("market closed, skipping poll")
		return
	}

	mark, err := e.currentMark(ctx, session)
	if err != nil {
		e.logger.WithError(err).Warn("failed to fetch spread mark")
		return
	}

	session.Record(mark)

	fields := logrus.Fields{
		"session": shortID(session.ID),
		"mark":    mark,
		"points":  session.Series.Len(),
	}
	var lastMA float64
	if _, ma, _, hasMA := session.Series.Latest(); hasMA {
		fields["ma"] = ma
		lastMA = ma
	}
	e.logger.WithFields(fields).Info("spread mark")

	if err := e.storage.UpdateProgress(mark, lastMA, session.Series.Len()); err != nil &&
		!errors.Is(err, storage.ErrNoActiveSession) {
		e.logger.WithError(err).Warn("failed to persist progress")
	}
}
