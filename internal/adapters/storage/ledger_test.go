package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdielMag/MoneyMaker/internal/adapters/storage"
	"github.com/AdielMag/MoneyMaker/internal/domain"
)

var t0 = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func openReq(mode domain.Mode, market string, stake float64, version int64) domain.OpenPositionRequest {
	return domain.OpenPositionRequest{
		Position: domain.Position{
			MarketID:   market,
			Question:   "Will " + market + " resolve Yes?",
			Mode:       mode,
			EntryPrice: 0.40,
			Stake:      stake,
			OpenedAt:   t0,
		},
		ExpectedVersion: version,
		MaxOpen:         10,
	}
}

func assertBalanced(t *testing.T, db *storage.SQLiteStorage, mode domain.Mode) {
	t.Helper()
	snap, err := db.Snapshot(context.Background(), mode)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Balance, 0.0)
	assert.InDelta(t, 0.0, snap.Drift(), 1e-6, "open stake + balance must equal initial + realized pnl")
}

func TestEnsureWallet_Idempotent(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	w, err := db.EnsureWallet(ctx, domain.ModeFake, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, w.Balance)
	assert.Equal(t, int64(0), w.Version)

	w, err = db.EnsureWallet(ctx, domain.ModeFake, 5)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, w.Balance, "existing wallet is never reset")

	_, err = db.GetWallet(ctx, domain.ModeReal)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.EnsureWallet(ctx, domain.ModeReal, -1)
	assert.True(t, domain.IsValidation(err))
}

func TestOpenPosition_DebitsAndAudits(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)

	p, w, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 20, 0))
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.PositionOpen, p.Status)
	assert.Equal(t, domain.DefaultOutcome, p.Outcome)
	assert.Equal(t, 80.0, w.Balance)
	assert.Equal(t, int64(1), w.Version)

	got, err := db.GetPosition(ctx, domain.ModeFake, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MarketID)
	assert.Equal(t, 20.0, got.Stake)
	assert.True(t, got.OpenedAt.Equal(t0))
	assert.Nil(t, got.ClosedAt)
	assert.Empty(t, got.CloseReason)

	txs, err := db.ListTransactions(ctx, domain.ModeFake)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxDebit, txs[0].Type)
	assert.Equal(t, 100.0, txs[0].BalanceBefore)
	assert.Equal(t, 80.0, txs[0].BalanceAfter)
	assert.Equal(t, p.ID, txs[0].PositionID)

	assertBalanced(t, db, domain.ModeFake)
}

func TestOpenPosition_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(db *storage.SQLiteStorage) domain.OpenPositionRequest
		want  error
	}{
		{
			name: "stale version",
			setup: func(db *storage.SQLiteStorage) domain.OpenPositionRequest {
				_, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m0", 10, 0))
				require.NoError(t, err)
				return openReq(domain.ModeFake, "m1", 10, 0)
			},
			want: domain.ErrConcurrencyConflict,
		},
		{
			name: "insufficient balance",
			setup: func(*storage.SQLiteStorage) domain.OpenPositionRequest {
				return openReq(domain.ModeFake, "m1", 150, 0)
			},
			want: domain.ErrInsufficientBalance,
		},
		{
			name: "duplicate open market",
			setup: func(db *storage.SQLiteStorage) domain.OpenPositionRequest {
				_, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 10, 0))
				require.NoError(t, err)
				return openReq(domain.ModeFake, "m1", 10, 1)
			},
			want: domain.ErrDuplicateOpen,
		},
		{
			name: "cap reached",
			setup: func(db *storage.SQLiteStorage) domain.OpenPositionRequest {
				_, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m0", 10, 0))
				require.NoError(t, err)
				req := openReq(domain.ModeFake, "m1", 10, 1)
				req.MaxOpen = 1
				return req
			},
			want: domain.ErrCapReached,
		},
		{
			name: "missing wallet",
			setup: func(*storage.SQLiteStorage) domain.OpenPositionRequest {
				return openReq(domain.ModeReal, "m1", 10, 0)
			},
			want: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newStore(t)
			_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
			require.NoError(t, err)

			req := tt.setup(db)
			before, _ := db.Snapshot(ctx, domain.ModeFake)

			_, _, err = db.OpenPosition(ctx, req)
			assert.ErrorIs(t, err, tt.want)

			after, _ := db.Snapshot(ctx, domain.ModeFake)
			assert.Equal(t, before, after, "rejected open leaves no partial effect")
		})
	}
}

func TestOpenPosition_InvalidInput(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)

	for _, stake := range []float64{0, -5} {
		_, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", stake, 0))
		assert.True(t, domain.IsValidation(err), "stake %v", stake)
	}

	req := openReq(domain.ModeFake, "m1", 10, 0)
	req.Position.EntryPrice = 0
	_, _, err = db.OpenPosition(ctx, req)
	assert.True(t, domain.IsValidation(err))
}

func TestClosePosition_CreditsOnce(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)
	p, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 20, 0))
	require.NoError(t, err)

	closeReq := domain.ClosePositionRequest{
		Mode:       domain.ModeFake,
		PositionID: p.ID,
		Reason:     domain.CloseStopLoss,
		ExitPrice:  0.34,
		Proceeds:   17,
		ClosedAt:   t0.Add(time.Hour),
	}
	closed, w, err := db.ClosePosition(ctx, closeReq)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	assert.Equal(t, domain.CloseStopLoss, closed.CloseReason)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, 97.0, w.Balance)

	_, _, err = db.ClosePosition(ctx, closeReq)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	w, err = db.GetWallet(ctx, domain.ModeFake)
	require.NoError(t, err)
	assert.Equal(t, 97.0, w.Balance, "second close credits nothing")

	// El mercado queda libre para una nueva posición
	_, _, err = db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 10, w.Version))
	assert.NoError(t, err)

	snap, err := db.Snapshot(ctx, domain.ModeFake)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 1, snap.ClosedPositions)
	assert.InDelta(t, -3.0, snap.RealizedPnL, 1e-9)
	assertBalanced(t, db, domain.ModeFake)
}

func TestClosePosition_ClampsClosedAt(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)
	p, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 20, 0))
	require.NoError(t, err)

	closed, _, err := db.ClosePosition(ctx, domain.ClosePositionRequest{
		Mode: domain.ModeFake, PositionID: p.ID, Reason: domain.CloseManual,
		ExitPrice: 0.4, Proceeds: 20, ClosedAt: t0.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, closed.ClosedAt.Before(closed.OpenedAt))
}

func TestClosePosition_ModeIsolation(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)
	_, err = db.EnsureWallet(ctx, domain.ModeReal, 50)
	require.NoError(t, err)

	p, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 20, 0))
	require.NoError(t, err)

	// Mismo mercado en el otro modo es independiente
	_, _, err = db.OpenPosition(ctx, openReq(domain.ModeReal, "m1", 20, 0))
	require.NoError(t, err)

	_, _, err = db.ClosePosition(ctx, domain.ClosePositionRequest{
		Mode: domain.ModeReal, PositionID: p.ID, Reason: domain.CloseManual, Proceeds: 20,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	fake, _ := db.GetWallet(ctx, domain.ModeFake)
	realW, _ := db.GetWallet(ctx, domain.ModeReal)
	assert.Equal(t, 80.0, fake.Balance)
	assert.Equal(t, 30.0, realW.Balance)
}

func TestOpenPosition_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)

	const workers = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			market := fmt.Sprintf("m%02d", i)
			for attempt := 0; attempt < 50; attempt++ {
				w, err := db.GetWallet(ctx, domain.ModeFake)
				if err != nil {
					return
				}
				req := openReq(domain.ModeFake, market, 10, w.Version)
				req.MaxOpen = 0
				_, _, err = db.OpenPosition(ctx, req)
				if errors.Is(err, domain.ErrConcurrencyConflict) {
					continue
				}
				if err == nil {
					mu.Lock()
					opened++
					mu.Unlock()
				}
				return
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, opened)
	w, err := db.GetWallet(ctx, domain.ModeFake)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, w.Balance, 1e-9)
	assertBalanced(t, db, domain.ModeFake)
}

func TestOpenPosition_ConcurrentSameMarket(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				w, _ := db.GetWallet(ctx, domain.ModeFake)
				_, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "same", 10, w.Version))
				if !errors.Is(err, domain.ErrConcurrencyConflict) {
					return
				}
			}
		}()
	}
	wg.Wait()

	n, err := db.CountOpenPositions(ctx, domain.ModeFake)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertBalanced(t, db, domain.ModeFake)
}

func TestClosePosition_ConcurrentClosesCreditOnce(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)
	p, _, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 20, 0))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := db.ClosePosition(ctx, domain.ClosePositionRequest{
				Mode: domain.ModeFake, PositionID: p.ID, Reason: domain.CloseTakeProfit,
				ExitPrice: 0.52, Proceeds: 26, ClosedAt: t0.Add(time.Hour),
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrPositionClosed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	w, _ := db.GetWallet(ctx, domain.ModeFake)
	assert.Equal(t, 106.0, w.Balance)
	assertBalanced(t, db, domain.ModeFake)
}

func TestListPositions_StatusFilter(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	_, err := db.EnsureWallet(ctx, domain.ModeFake, 100)
	require.NoError(t, err)

	p1, w, err := db.OpenPosition(ctx, openReq(domain.ModeFake, "m1", 10, 0))
	require.NoError(t, err)
	_, _, err = db.OpenPosition(ctx, openReq(domain.ModeFake, "m2", 10, w.Version))
	require.NoError(t, err)
	_, _, err = db.ClosePosition(ctx, domain.ClosePositionRequest{
		Mode: domain.ModeFake, PositionID: p1.ID, Reason: domain.CloseManual, ExitPrice: 0.4, Proceeds: 10,
	})
	require.NoError(t, err)

	all, err := db.ListPositions(ctx, domain.ModeFake, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := db.ListOpenPositions(ctx, domain.ModeFake)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "m2", open[0].MarketID)

	has, err := db.HasOpenPosition(ctx, domain.ModeFake, "m1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = db.ListPositions(ctx, domain.ModeFake, "pending")
	assert.True(t, domain.IsValidation(err))
}
