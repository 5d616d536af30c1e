package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"convert_invoices/internal/domain"

	_ "github.com/glebarez/go-sqlite"
)

const overrideKeyPrefix = "currency.enabled."

// QuoteRecord is one journaled estimate. The resolved path is not stored.
type QuoteRecord struct {
	ID                int64
	Session           string
	Ts                int64 // unix micros
	FromCurrency      string
	ToCurrency        string
	Amount            string
	EstimatedOut      string
	NetInput          string
	Fee               string
	LiquidityExceeded bool
	MaxAvailable      string // empty when the pool reported no reserve
	SuggestedSlippage string
}

// NewQuoteRecord flattens a priced quote for the journal.
func NewQuoteRecord(session string, ts int64, q domain.Quote) QuoteRecord {
	rec := QuoteRecord{
		Session:           session,
		Ts:                ts,
		FromCurrency:      q.From.SystemName,
		ToCurrency:        q.To.SystemName,
		Amount:            q.Amount.String(),
		EstimatedOut:      q.Estimate.EstimatedOut.String(),
		NetInput:          q.Estimate.NetInput.String(),
		Fee:               q.Estimate.Fee.String(),
		LiquidityExceeded: q.Liquidity.Exceeded,
		SuggestedSlippage: q.Liquidity.SuggestedSlippage.String(),
	}
	if q.Liquidity.HasReserve {
		rec.MaxAvailable = q.Liquidity.MaxAvailable.String()
	}
	return rec
}

// QuoteStore journals quotes and keeps registry overrides in SQLite.
type QuoteStore struct {
	db *sql.DB
}

// NewQuoteStore opens (or creates) the database with WAL mode enabled.
func NewQuoteStore(dbPath string) (*QuoteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	// Amounts are stored as decimal strings to keep full precision.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS quotes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			ts INTEGER NOT NULL,
			from_currency TEXT NOT NULL,
			to_currency TEXT NOT NULL,
			amount TEXT NOT NULL,
			estimated_out TEXT NOT NULL,
			net_input TEXT NOT NULL,
			fee TEXT NOT NULL,
			liquidity_exceeded INTEGER NOT NULL,
			max_available TEXT NOT NULL DEFAULT '',
			suggested_slippage TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create quotes table: %w", err)
	}

	return &QuoteStore{db: db}, nil
}

// SaveQuote appends rec to the journal and returns its id.
func (s *QuoteStore) SaveQuote(ctx context.Context, rec QuoteRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quotes (session, ts, from_currency, to_currency, amount, estimated_out,
			net_input, fee, liquidity_exceeded, max_available, suggested_slippage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Session, rec.Ts, rec.FromCurrency, rec.ToCurrency, rec.Amount, rec.EstimatedOut,
		rec.NetInput, rec.Fee, rec.LiquidityExceeded, rec.MaxAvailable, rec.SuggestedSlippage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert quote: %w", err)
	}
	return res.LastInsertId()
}

// RecentQuotes returns up to limit quotes, newest first.
func (s *QuoteStore) RecentQuotes(ctx context.Context, limit int) ([]QuoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, ts, from_currency, to_currency, amount, estimated_out,
			net_input, fee, liquidity_exceeded, max_available, suggested_slippage
		FROM quotes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var out []QuoteRecord
	for rows.Next() {
		var r QuoteRecord
		if err := rows.Scan(&r.ID, &r.Session, &r.Ts, &r.FromCurrency, &r.ToCurrency, &r.Amount,
			&r.EstimatedOut, &r.NetInput, &r.Fee, &r.LiquidityExceeded, &r.MaxAvailable, &r.SuggestedSlippage); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// GetLastQuoteID returns the highest journal id, 0 when empty.
func (s *QuoteStore) GetLastQuoteID(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM quotes").Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to get last quote id: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return last.Int64, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *QuoteStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *QuoteStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LoadOverrides returns every persisted enabled flag, keyed by system name.
func (s *QuoteStore) LoadOverrides(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM metadata WHERE key LIKE ?", overrideKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
		out[strings.TrimPrefix(key, overrideKeyPrefix)] = enabled
	}
	return out, rows.Err()
}

// SaveOverride persists a retire/restore decision.
func (s *QuoteStore) SaveOverride(ctx context.Context, systemName string, enabled bool) error {
	return s.UpsertMetadata(ctx, overrideKeyPrefix+systemName, strconv.FormatBool(enabled), time.Now().Unix())
}

// Close closes the database connection.
func (s *QuoteStore) Close() error {
	return s.db.Close()
}
