package storage

// sqlite.go: ledger durable de wallets y posiciones.
//
// Estrategia:
//   - `wallets`: una fila por modo; `version` crece en cada mutación y condiciona los débitos
//     (UPDATE … WHERE version = ?), así dos ejecuciones concurrentes nunca gastan el mismo saldo.
//   - `positions`: nunca se borran. Índice único parcial (mode, market_id) WHERE status='open'
//     garantiza una sola posición abierta por mercado y modo.
//   - `transactions`: auditoría de cada débito/crédito, escrita en la misma transacción.
//   - `workflow_state`: flag enabled + metadatos de la última ejecución.
//   - Una sola conexión: dentro de una tx se usa siempre `tx`, nunca `s.db`.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    mode            TEXT PRIMARY KEY,
    balance         REAL    NOT NULL CHECK (balance >= 0),
    initial_balance REAL    NOT NULL DEFAULT 0,
    version         INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    mode         TEXT NOT NULL,
    market_id    TEXT NOT NULL,
    question     TEXT NOT NULL DEFAULT '',
    outcome      TEXT NOT NULL DEFAULT 'Yes',
    entry_price  REAL NOT NULL CHECK (entry_price > 0),
    stake        REAL NOT NULL CHECK (stake > 0),
    opened_at    DATETIME NOT NULL,
    status       TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
    close_reason TEXT,
    exit_price   REAL NOT NULL DEFAULT 0,
    proceeds     REAL NOT NULL DEFAULT 0,
    closed_at    DATETIME,
    CHECK ((status = 'open') = (close_reason IS NULL AND closed_at IS NULL))
);

CREATE TABLE IF NOT EXISTS transactions (
    id             TEXT PRIMARY KEY,
    mode           TEXT NOT NULL,
    type           TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
    amount         REAL NOT NULL,
    balance_before REAL NOT NULL,
    balance_after  REAL NOT NULL,
    position_id    TEXT NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_state (
    workflow   TEXT NOT NULL,
    mode       TEXT NOT NULL,
    enabled    INTEGER NOT NULL DEFAULT 0,
    last_run   DATETIME,
    run_count  INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (workflow, mode)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_one_open ON positions(mode, market_id) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_positions_mode_status ON positions(mode, status);
CREATE INDEX IF NOT EXISTS idx_transactions_mode ON transactions(mode, created_at);
`

// migrations agrega columnas que no existían en schemas anteriores.
// Fallan si la columna ya existe, lo cual es correcto.
var migrations = []string{
	"ALTER TABLE positions ADD COLUMN question TEXT NOT NULL DEFAULT ''",
	"ALTER TABLE positions ADD COLUMN outcome TEXT NOT NULL DEFAULT 'Yes'",
	"ALTER TABLE positions ADD COLUMN exit_price REAL NOT NULL DEFAULT 0",
	"ALTER TABLE workflow_state ADD COLUMN run_count INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE workflow_state ADD COLUMN last_error TEXT NOT NULL DEFAULT ''",
}

// SQLiteStorage implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en el DSN dado y aplica el schema.
// Para compartir el archivo entre procesos conviene
// "file:moneymaker.db?_txlock=immediate&_pragma=busy_timeout(5000)".
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	for _, stmt := range migrations {
		db.Exec(stmt) // ignore errors (column already exists)
	}

	return &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Ping verifica que la base de datos responde.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "storage.Ping", Err: err}
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// inTx ejecuta fn dentro de una transacción; rollback si fn devuelve error.
func (s *SQLiteStorage) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op+": begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(op+": commit", err)
	}
	return nil
}

// classify traduce un error del driver: lock contention → ErrConcurrencyConflict,
// índice único de posiciones abiertas → ErrDuplicateOpen, saldo negativo →
// ErrInsufficientBalance; todo lo demás → PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.PersistenceError{Op: op, Err: err}
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch {
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w", op, domain.ErrConcurrencyConflict)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE && strings.Contains(se.Error(), "positions"):
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicateOpen)
		case code == sqlite3.SQLITE_CONSTRAINT_CHECK && strings.Contains(se.Error(), "balance"):
			return fmt.Errorf("%s: %w", op, domain.ErrInsufficientBalance)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%s: %w", op, domain.ErrConcurrencyConflict)
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func checkMode(mode domain.Mode) error {
	if !mode.Valid() {
		return domain.NewValidationError("mode", "unknown mode %q", mode)
	}
	return nil
}
