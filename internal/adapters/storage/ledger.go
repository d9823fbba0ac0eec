package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const positionColumns = `id, mode, market_id, question, outcome, entry_price, stake, opened_at,
       status, close_reason, exit_price, proceeds, closed_at`

// queryer es lo común entre *sql.DB y *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// EnsureWallet crea el wallet del modo si no existe. Idempotente: un wallet existente
// se devuelve sin tocar, aunque initialBalance difiera.
func (s *SQLiteStorage) EnsureWallet(ctx context.Context, mode domain.Mode, initialBalance float64) (domain.Wallet, error) {
	if err := checkMode(mode); err != nil {
		return domain.Wallet{}, err
	}
	if initialBalance < 0 || math.IsNaN(initialBalance) || math.IsInf(initialBalance, 0) {
		return domain.Wallet{}, domain.NewValidationError("initial_balance", "must be a finite amount >= 0, got %v", initialBalance)
	}

	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (mode, balance, initial_balance, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(mode) DO NOTHING`,
		string(mode), initialBalance, initialBalance, now, now,
	); err != nil {
		return domain.Wallet{}, classify("storage.EnsureWallet", err)
	}
	return s.GetWallet(ctx, mode)
}

// GetWallet devuelve el wallet del modo, o domain.ErrNotFound.
func (s *SQLiteStorage) GetWallet(ctx context.Context, mode domain.Mode) (domain.Wallet, error) {
	if err := checkMode(mode); err != nil {
		return domain.Wallet{}, err
	}
	return getWallet(ctx, s.db, mode)
}

func getWallet(ctx context.Context, q queryer, mode domain.Mode) (domain.Wallet, error) {
	var w domain.Wallet
	var modeStr, created, updated string
	err := q.QueryRowContext(ctx, `
		SELECT mode, balance, initial_balance, version, created_at, updated_at
		FROM wallets WHERE mode = ?`, string(mode),
	).Scan(&modeStr, &w.Balance, &w.InitialBalance, &w.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{}, fmt.Errorf("storage.GetWallet: %s: %w", mode, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wallet{}, classify("storage.GetWallet", err)
	}
	w.Mode = domain.Mode(modeStr)
	w.CreatedAt = parseTime(created)
	w.UpdatedAt = parseTime(updated)
	return w, nil
}

// CountOpenPositions devuelve cuántas posiciones abiertas tiene el modo.
func (s *SQLiteStorage) CountOpenPositions(ctx context.Context, mode domain.Mode) (int, error) {
	if err := checkMode(mode); err != nil {
		return 0, err
	}
	n, err := countOpen(ctx, s.db, mode)
	if err != nil {
		return 0, classify("storage.CountOpenPositions", err)
	}
	return n, nil
}

func countOpen(ctx context.Context, q queryer, mode domain.Mode) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE mode = ? AND status = 'open'`, string(mode),
	).Scan(&n)
	return n, err
}

// HasOpenPosition indica si el mercado ya tiene una posición abierta en el modo.
func (s *SQLiteStorage) HasOpenPosition(ctx context.Context, mode domain.Mode, marketID string) (bool, error) {
	if err := checkMode(mode); err != nil {
		return false, err
	}
	ok, err := hasOpen(ctx, s.db, mode, marketID)
	if err != nil {
		return false, classify("storage.HasOpenPosition", err)
	}
	return ok, nil
}

func hasOpen(ctx context.Context, q queryer, mode domain.Mode, marketID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE mode = ? AND market_id = ? AND status = 'open'`,
		string(mode), marketID,
	).Scan(&n)
	return n > 0, err
}

// ListOpenPositions devuelve las posiciones abiertas del modo, más antiguas primero.
func (s *SQLiteStorage) ListOpenPositions(ctx context.Context, mode domain.Mode) ([]domain.Position, error) {
	return s.ListPositions(ctx, mode, domain.PositionOpen)
}

// ListPositions devuelve las posiciones del modo filtradas por status ("" = todas).
func (s *SQLiteStorage) ListPositions(ctx context.Context, mode domain.Mode, status domain.PositionStatus) ([]domain.Position, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	query := `SELECT ` + positionColumns + ` FROM positions WHERE mode = ?`
	args := []any{string(mode)}
	switch status {
	case "":
	case domain.PositionOpen, domain.PositionClosed:
		query += ` AND status = ?`
		args = append(args, string(status))
	default:
		return nil, domain.NewValidationError("status", "must be open or closed, got %q", status)
	}
	query += ` ORDER BY opened_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("storage.ListPositions: query", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, classify("storage.ListPositions: scan row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("storage.ListPositions", err)
	}
	return out, nil
}

// GetPosition devuelve una posición del modo por id, o domain.ErrNotFound.
// Una posición de otro modo no existe para este.
func (s *SQLiteStorage) GetPosition(ctx context.Context, mode domain.Mode, id string) (domain.Position, error) {
	if err := checkMode(mode); err != nil {
		return domain.Position{}, err
	}
	return getPosition(ctx, s.db, mode, id)
}

func getPosition(ctx context.Context, q queryer, mode domain.Mode, id string) (domain.Position, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ? AND mode = ?`, id, string(mode))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, classify("storage.GetPosition", err)
	}
	return p, nil
}

// OpenPosition debita el stake y crea la posición en una sola transacción.
//
// Orden de chequeos: versión del wallet, saldo, cap de abiertas, duplicado por mercado.
// El UPDATE condicionado por versión y el índice único parcial son la red final
// si otro escritor se coló entre lectura y escritura.
func (s *SQLiteStorage) OpenPosition(ctx context.Context, req domain.OpenPositionRequest) (domain.Position, domain.Wallet, error) {
	p := req.Position
	if err := checkMode(p.Mode); err != nil {
		return domain.Position{}, domain.Wallet{}, err
	}
	if strings.TrimSpace(p.MarketID) == "" {
		return domain.Position{}, domain.Wallet{}, domain.NewValidationError("market_id", "must not be empty")
	}
	if !(p.Stake > 0) || math.IsInf(p.Stake, 0) {
		return domain.Position{}, domain.Wallet{}, domain.NewValidationError("stake", "must be > 0, got %v", p.Stake)
	}
	if !(p.EntryPrice > 0) || p.EntryPrice > 1 {
		return domain.Position{}, domain.Wallet{}, domain.NewValidationError("entry_price", "must be in (0, 1], got %v", p.EntryPrice)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Outcome == "" {
		p.Outcome = domain.DefaultOutcome
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = s.now()
	}
	p.OpenedAt = p.OpenedAt.UTC()
	p.Status = domain.PositionOpen
	p.CloseReason, p.ExitPrice, p.Proceeds, p.ClosedAt = "", 0, 0, nil

	var wallet domain.Wallet
	err := s.inTx(ctx, "storage.OpenPosition", func(tx *sql.Tx) error {
		w, err := getWallet(ctx, tx, p.Mode)
		if err != nil {
			return err
		}
		if w.Version != req.ExpectedVersion {
			return fmt.Errorf("storage.OpenPosition: wallet %s at version %d, expected %d: %w",
				p.Mode, w.Version, req.ExpectedVersion, domain.ErrConcurrencyConflict)
		}
		if !w.CanAfford(p.Stake) {
			return fmt.Errorf("storage.OpenPosition: balance %.2f < stake %.2f: %w",
				w.Balance, p.Stake, domain.ErrInsufficientBalance)
		}
		if req.MaxOpen > 0 {
			n, err := countOpen(ctx, tx, p.Mode)
			if err != nil {
				return classify("storage.OpenPosition: count open", err)
			}
			if n >= req.MaxOpen {
				return fmt.Errorf("storage.OpenPosition: %d open: %w", n, domain.ErrCapReached)
			}
		}
		dup, err := hasOpen(ctx, tx, p.Mode, p.MarketID)
		if err != nil {
			return classify("storage.OpenPosition: check duplicate", err)
		}
		if dup {
			return fmt.Errorf("storage.OpenPosition: %s: %w", p.MarketID, domain.ErrDuplicateOpen)
		}

		now := s.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance - ?, version = version + 1, updated_at = ?
			WHERE mode = ? AND version = ? AND balance >= ?`,
			p.Stake, formatTime(now), string(p.Mode), req.ExpectedVersion, p.Stake,
		)
		if err != nil {
			return classify("storage.OpenPosition: debit", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("storage.OpenPosition: debit: %w", domain.ErrConcurrencyConflict)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (id, mode, market_id, question, outcome, entry_price, stake, opened_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
			p.ID, string(p.Mode), p.MarketID, p.Question, p.Outcome, p.EntryPrice, p.Stake, formatTime(p.OpenedAt),
		); err != nil {
			return classify("storage.OpenPosition: insert position", err)
		}

		if err := insertTransaction(ctx, tx, domain.Transaction{
			Mode:          p.Mode,
			Type:          domain.TxDebit,
			Amount:        p.Stake,
			BalanceBefore: w.Balance,
			BalanceAfter:  w.Balance - p.Stake,
			PositionID:    p.ID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		wallet, err = getWallet(ctx, tx, p.Mode)
		return err
	})
	if err != nil {
		return domain.Position{}, domain.Wallet{}, err
	}
	return p, wallet, nil
}

// ClosePosition cierra una posición abierta y acredita proceeds en una sola transacción.
// La transición open → closed ocurre una sola vez: el segundo cierre recibe ErrPositionClosed.
func (s *SQLiteStorage) ClosePosition(ctx context.Context, req domain.ClosePositionRequest) (domain.Position, domain.Wallet, error) {
	if err := checkMode(req.Mode); err != nil {
		return domain.Position{}, domain.Wallet{}, err
	}
	if !req.Reason.Valid() {
		return domain.Position{}, domain.Wallet{}, domain.NewValidationError("close_reason", "unknown reason %q", req.Reason)
	}
	if req.Proceeds < 0 || math.IsNaN(req.Proceeds) || math.IsInf(req.Proceeds, 0) {
		return domain.Position{}, domain.Wallet{}, domain.NewValidationError("proceeds", "must be a finite amount >= 0, got %v", req.Proceeds)
	}

	var (
		closed domain.Position
		wallet domain.Wallet
	)
	err := s.inTx(ctx, "storage.ClosePosition", func(tx *sql.Tx) error {
		p, err := getPosition(ctx, tx, req.Mode, req.PositionID)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return fmt.Errorf("storage.ClosePosition: %s: %w", p.ID, domain.ErrPositionClosed)
		}

		closedAt := req.ClosedAt.UTC()
		if closedAt.IsZero() || closedAt.Before(p.OpenedAt) {
			closedAt = maxTime(s.now(), p.OpenedAt)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE positions
			SET status = 'closed', close_reason = ?, exit_price = ?, proceeds = ?, closed_at = ?
			WHERE id = ? AND mode = ? AND status = 'open'`,
			string(req.Reason), req.ExitPrice, req.Proceeds, formatTime(closedAt), p.ID, string(req.Mode),
		)
		if err != nil {
			return classify("storage.ClosePosition: update position", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("storage.ClosePosition: %s: %w", p.ID, domain.ErrPositionClosed)
		}

		w, err := getWallet(ctx, tx, req.Mode)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + ?, version = version + 1, updated_at = ?
			WHERE mode = ?`,
			req.Proceeds, formatTime(closedAt), string(req.Mode),
		); err != nil {
			return classify("storage.ClosePosition: credit", err)
		}

		if err := insertTransaction(ctx, tx, domain.Transaction{
			Mode:          req.Mode,
			Type:          domain.TxCredit,
			Amount:        req.Proceeds,
			BalanceBefore: w.Balance,
			BalanceAfter:  w.Balance + req.Proceeds,
			PositionID:    p.ID,
			CreatedAt:     closedAt,
		}); err != nil {
			return err
		}

		p.Status = domain.PositionClosed
		p.CloseReason = req.Reason
		p.ExitPrice = req.ExitPrice
		p.Proceeds = req.Proceeds
		p.ClosedAt = &closedAt
		closed = p

		wallet, err = getWallet(ctx, tx, req.Mode)
		return err
	})
	if err != nil {
		return domain.Position{}, domain.Wallet{}, err
	}
	return closed, wallet, nil
}

// ListTransactions devuelve la auditoría del modo en orden de escritura.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, mode domain.Mode) ([]domain.Transaction, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, type, amount, balance_before, balance_after, position_id, created_at
		FROM transactions WHERE mode = ? ORDER BY created_at, rowid`, string(mode))
	if err != nil {
		return nil, classify("storage.ListTransactions: query", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var modeStr, typ, created string
		if err := rows.Scan(&t.ID, &modeStr, &typ, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.PositionID, &created); err != nil {
			return nil, classify("storage.ListTransactions: scan row", err)
		}
		t.Mode = domain.Mode(modeStr)
		t.Type = domain.TransactionType(typ)
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("storage.ListTransactions", err)
	}
	return out, nil
}

// Snapshot lee saldo, stake abierto y PnL realizado del modo en una sola transacción.
func (s *SQLiteStorage) Snapshot(ctx context.Context, mode domain.Mode) (domain.LedgerSnapshot, error) {
	if err := checkMode(mode); err != nil {
		return domain.LedgerSnapshot{}, err
	}
	snap := domain.LedgerSnapshot{Mode: mode}
	err := s.inTx(ctx, "storage.Snapshot", func(tx *sql.Tx) error {
		w, err := getWallet(ctx, tx, mode)
		if err != nil {
			return err
		}
		snap.Balance = w.Balance
		snap.InitialBalance = w.InitialBalance

		if err := tx.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(CASE WHEN status = 'open' THEN stake END), 0),
				COUNT(CASE WHEN status = 'open' THEN 1 END),
				COUNT(CASE WHEN status = 'closed' THEN 1 END),
				COALESCE(SUM(CASE WHEN status = 'closed' THEN proceeds - stake END), 0)
			FROM positions WHERE mode = ?`, string(mode),
		).Scan(&snap.OpenStake, &snap.OpenPositions, &snap.ClosedPositions, &snap.RealizedPnL); err != nil {
			return classify("storage.Snapshot: aggregate", err)
		}
		return nil
	})
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}
	return snap, nil
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var p domain.Position
	var modeStr, status, opened string
	var reason, closedAt sql.NullString
	if err := r.Scan(
		&p.ID, &modeStr, &p.MarketID, &p.Question, &p.Outcome, &p.EntryPrice, &p.Stake, &opened,
		&status, &reason, &p.ExitPrice, &p.Proceeds, &closedAt,
	); err != nil {
		return domain.Position{}, err
	}
	p.Mode = domain.Mode(modeStr)
	p.Status = domain.PositionStatus(status)
	p.OpenedAt = parseTime(opened)
	p.CloseReason = domain.CloseReason(reason.String)
	p.ClosedAt = parseNullTime(closedAt)
	return p, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, mode, type, amount, balance_before, balance_after, position_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Mode), string(t.Type), t.Amount, t.BalanceBefore, t.BalanceAfter, t.PositionID, formatTime(t.CreatedAt),
	); err != nil {
		return classify("storage.insertTransaction", err)
	}
	return nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
