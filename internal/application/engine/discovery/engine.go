package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/application/engine"
	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

const defaultConflictRetries = 3

// Config holds the risk limits of one discovery run.
type Config struct {
	MaxBetAmount       float64
	MinBalanceToTrade  float64
	MaxPositions       int
	MaxSuggestions     int
	MaxConflictRetries int
	CallTimeout        time.Duration // per external call
}

// Engine finds ranked suggestions and opens positions against the ledger.
type Engine struct {
	scanner   engine.ScannerService
	suggester ports.Suggester
	ledger    ports.Ledger
	cfg       Config
	now       func() time.Time
}

// New creates a discovery engine with explicitly injected collaborators.
func New(scanner engine.ScannerService, suggester ports.Suggester, ledger ports.Ledger, cfg Config) *Engine {
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = defaultConflictRetries
	}
	return &Engine{
		scanner:   scanner,
		suggester: suggester,
		ledger:    ledger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for timestamps (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run executes one discovery pass for mode.
//
// A halted run (low balance, cap reached) and a failing market listing or ranking
// call both return a summary and a nil error: nothing was committed. Only ledger
// failures are returned as errors, since the ledger state is then unknown.
func (e *Engine) Run(ctx context.Context, mode domain.Mode) (domain.DiscoverySummary, error) {
	sum := domain.DiscoverySummary{Mode: mode, StartedAt: e.now()}
	defer func() { sum.CompletedAt = e.now() }()

	wallet, err := e.ledger.GetWallet(ctx, mode)
	if err != nil {
		return sum, fmt.Errorf("discovery.Run: read wallet: %w", err)
	}
	open, err := e.ledger.CountOpenPositions(ctx, mode)
	if err != nil {
		return sum, fmt.Errorf("discovery.Run: count open: %w", err)
	}
	sum.BalanceAfter = wallet.Balance

	switch {
	case wallet.Balance < e.cfg.MinBalanceToTrade:
		sum.HaltReason = domain.SkipInsufficientBalance
	case open >= e.cfg.MaxPositions:
		sum.HaltReason = domain.SkipCapReached
	}
	if sum.HaltReason != "" {
		slog.Info("discovery halted",
			"mode", mode,
			"reason", sum.HaltReason,
			"balance", wallet.Balance,
			"open", open,
		)
		return sum, nil
	}

	candidates, ok := e.candidates(ctx, &sum)
	if !ok {
		return sum, nil
	}

	n := e.cfg.MaxSuggestions
	if free := e.cfg.MaxPositions - open; n <= 0 || n > free {
		n = free
	}
	callCtx, cancel := engine.CallContext(ctx, e.cfg.CallTimeout)
	suggestions, err := e.suggester.Suggest(callCtx, candidates, n)
	cancel()
	if err != nil {
		slog.Warn("discovery: ranking failed", "mode", mode, "err", err)
		sum.Errors = append(sum.Errors, err.Error())
		return sum, nil
	}
	sum.Suggestions = len(suggestions)

	byID := make(map[string]domain.Market, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
	}

	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("run interrupted: %v", err))
			break
		}
		market, ok := byID[s.MarketID]
		if !ok {
			sum.Skip(s.MarketID, domain.SkipUnknownMarket, "")
			continue
		}

		opened, w, count, err := e.open(ctx, mode, market, s, wallet, open, &sum)
		if err != nil {
			return sum, err
		}
		wallet, open = w, count
		if opened != nil {
			sum.Opened = append(sum.Opened, *opened)
			sum.TotalStaked += opened.Stake
		}
	}
	sum.BalanceAfter = wallet.Balance

	slog.Info("discovery complete",
		"mode", mode,
		"fetched", sum.MarketsFetched,
		"passed", sum.MarketsPassed,
		"suggestions", sum.Suggestions,
		"opened", len(sum.Opened),
		"staked", sum.TotalStaked,
		"skipped", len(sum.Skips),
		"balance", sum.BalanceAfter,
	)
	return sum, nil
}

// candidates fetches and filters markets. false means the run stops with zero actions.
func (e *Engine) candidates(ctx context.Context, sum *domain.DiscoverySummary) ([]domain.Market, bool) {
	callCtx, cancel := engine.CallContext(ctx, e.cfg.CallTimeout)
	defer cancel()

	scan, err := e.scanner.RunOnce(callCtx)
	if err != nil {
		slog.Warn("discovery: market listing failed", "mode", sum.Mode, "err", err)
		sum.Errors = append(sum.Errors, err.Error())
		return nil, false
	}
	sum.MarketsFetched = scan.Fetched
	sum.MarketsPassed = scan.Summary.Passed
	return scan.Candidates, len(scan.Candidates) > 0
}

// open places one suggestion, retrying the ledger transaction on version conflicts.
// It returns the opened position (nil if skipped) and the latest wallet and open count.
func (e *Engine) open(
	ctx context.Context,
	mode domain.Mode,
	market domain.Market,
	s domain.Suggestion,
	wallet domain.Wallet,
	open int,
	sum *domain.DiscoverySummary,
) (*domain.Position, domain.Wallet, int, error) {
	price, ok := market.OutcomePrice(s.Outcome)
	if !ok || !(price > 0) || price > 1 {
		sum.Skip(market.ID, domain.SkipInvalidPrice, fmt.Sprintf("outcome %q price %v", s.Outcome, price))
		return nil, wallet, open, nil
	}
	// Chequeo barato; el índice único del ledger sigue siendo la garantía.
	dup, err := e.ledger.HasOpenPosition(ctx, mode, market.ID)
	if err != nil {
		return nil, wallet, open, fmt.Errorf("discovery.open: check open %s: %w", market.ID, err)
	}
	if dup {
		sum.Skip(market.ID, domain.SkipDuplicateOpen, "")
		return nil, wallet, open, nil
	}

	for attempt := 0; attempt <= e.cfg.MaxConflictRetries; attempt++ {
		if s.RecommendedStake <= 0 {
			sum.Skip(market.ID, domain.SkipNonPositiveStake, "")
			return nil, wallet, open, nil
		}
		stake := math.Min(s.RecommendedStake, math.Min(e.cfg.MaxBetAmount, wallet.Balance))
		if stake <= 0 {
			sum.Skip(market.ID, domain.SkipInsufficientBalance, fmt.Sprintf("balance %.2f", wallet.Balance))
			return nil, wallet, open, nil
		}
		if open >= e.cfg.MaxPositions {
			sum.Skip(market.ID, domain.SkipCapReached, fmt.Sprintf("%d open", open))
			return nil, wallet, open, nil
		}

		p, w, err := e.ledger.OpenPosition(ctx, domain.OpenPositionRequest{
			Position: domain.Position{
				MarketID:   market.ID,
				Question:   market.Question,
				Outcome:    s.Outcome,
				Mode:       mode,
				EntryPrice: price,
				Stake:      stake,
				OpenedAt:   e.now(),
			},
			ExpectedVersion: wallet.Version,
			MaxOpen:         e.cfg.MaxPositions,
		})
		switch {
		case err == nil:
			slog.Info("position opened",
				"mode", mode,
				"market_id", market.ID,
				"question", engine.TruncateStr(market.Question, 60),
				"outcome", p.Outcome,
				"entry_price", price,
				"stake", stake,
				"confidence", s.Confidence,
				"balance", w.Balance,
			)
			return &p, w, open + 1, nil
		case errors.Is(err, domain.ErrDuplicateOpen):
			sum.Skip(market.ID, domain.SkipDuplicateOpen, "")
			return nil, wallet, open, nil
		case errors.Is(err, domain.ErrCapReached):
			sum.Skip(market.ID, domain.SkipCapReached, "")
			return nil, wallet, open, nil
		case errors.Is(err, domain.ErrInsufficientBalance):
			sum.Skip(market.ID, domain.SkipInsufficientBalance, "")
			return nil, wallet, open, nil
		case errors.Is(err, domain.ErrConcurrencyConflict):
			slog.Debug("discovery: wallet moved, re-reading",
				"mode", mode, "market_id", market.ID, "attempt", attempt+1)
			if wallet, err = e.ledger.GetWallet(ctx, mode); err != nil {
				return nil, wallet, open, fmt.Errorf("discovery.open: re-read wallet: %w", err)
			}
			if open, err = e.ledger.CountOpenPositions(ctx, mode); err != nil {
				return nil, wallet, open, fmt.Errorf("discovery.open: re-count open: %w", err)
			}
		default:
			return nil, wallet, open, fmt.Errorf("discovery.open %s: %w", market.ID, err)
		}
	}

	sum.Skip(market.ID, domain.SkipConflictExhausted, fmt.Sprintf("%d attempts", e.cfg.MaxConflictRetries+1))
	return nil, wallet, open, nil
}
