package bill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema is the DDL the Postgres store expects. Migrations are run outside
// this service.
const Schema = `
CREATE TABLE IF NOT EXISTS bills (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	datetime    TIMESTAMPTZ NOT NULL,
	value       NUMERIC NOT NULL,
	file_hash   TEXT NOT NULL,
	filename    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, datetime),
	UNIQUE (user_id, file_hash)
);
CREATE TABLE IF NOT EXISTS expenses (
	id             BIGSERIAL PRIMARY KEY,
	bill_id        TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	user_id        TEXT NOT NULL,
	position       INT NOT NULL,
	name           TEXT NOT NULL,
	value          NUMERIC NOT NULL,
	quantity       INT NOT NULL DEFAULT 1,
	price_per_item NUMERIC,
	weight         NUMERIC,
	price_per_kg   NUMERIC,
	tags           TEXT,
	datetime       TIMESTAMPTZ NOT NULL
);`

const uniqueViolation = "23505"

// Postgres implements the DB interface on top of database/sql with the pgx driver
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens and pings a Postgres database
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) findID(ctx context.Context, query string, args ...any) (string, bool, error) {
	var id string
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// FindByTimestamp returns the id of the user's bill with this transaction time
func (p *Postgres) FindByTimestamp(ctx context.Context, userID string, ts time.Time) (string, bool, error) {
	return p.findID(ctx, `SELECT id FROM bills WHERE user_id = $1 AND datetime = $2 LIMIT 1`, userID, ts.UTC())
}

// FindByHash returns the id of the user's bill stored from a document with this hash
func (p *Postgres) FindByHash(ctx context.Context, userID, hash string) (string, bool, error) {
	return p.findID(ctx, `SELECT id FROM bills WHERE user_id = $1 AND file_hash = $2 LIMIT 1`, userID, hash)
}

// Insert writes the bill and its expenses in one transaction. The unique
// constraints turn a concurrent duplicate upload into ErrDuplicateBill.
func (p *Postgres) Insert(ctx context.Context, bill *Bill) (string, error) {
	if bill.ID == "" {
		return "", errors.New("bill id is required")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO bills (id, user_id, datetime, value, file_hash, filename, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		bill.ID, bill.UserID, bill.DateTime.UTC(), bill.Value, bill.FileHash, bill.Filename, bill.CreatedAt.UTC())
	if err != nil {
		_ = tx.Rollback()
		return "", mapInsertError(err)
	}
	for i, e := range bill.Expenses {
		_, err := tx.ExecContext(ctx, `
INSERT INTO expenses (bill_id, user_id, position, name, value, quantity, price_per_item, weight, price_per_kg, tags, datetime)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			bill.ID, bill.UserID, i, e.Name, e.Value, e.Quantity, e.PricePerItem, e.Weight, e.PricePerKg, e.Tags, e.DateTime.UTC())
		if err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("inserting expense %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", mapInsertError(err)
	}
	return bill.ID, nil
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateBill, pgErr.ConstraintName)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*Bill, error) {
	var b Bill
	if err := row.Scan(&b.ID, &b.UserID, &b.DateTime, &b.Value, &b.FileHash, &b.Filename, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.DateTime = b.DateTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (p *Postgres) loadExpenses(ctx context.Context, bill *Bill) error {
	rows, err := p.db.QueryContext(ctx, `
SELECT name, value, quantity, price_per_item, weight, price_per_kg, tags, datetime
FROM expenses
WHERE bill_id = $1
ORDER BY position ASC`, bill.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	bill.Expenses = make([]Expense, 0)
	for rows.Next() {
		var (
			e    Expense
			tags sql.NullString
		)
		if err := rows.Scan(&e.Name, &e.Value, &e.Quantity, &e.PricePerItem, &e.Weight, &e.PricePerKg, &tags, &e.DateTime); err != nil {
			return err
		}
		if tags.Valid {
			e.Tags = &tags.String
		}
		e.DateTime = e.DateTime.UTC()
		bill.Expenses = append(bill.Expenses, e)
	}
	return rows.Err()
}

// GetBill retrieves a bill with its expenses
func (p *Postgres) GetBill(ctx context.Context, id string) (*Bill, error) {
	row := p.db.QueryRowContext(ctx, `
SELECT id, user_id, datetime, value, file_hash, filename, created_at
FROM bills
WHERE id = $1`, id)
	bill, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBillNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := p.loadExpenses(ctx, bill); err != nil {
		return nil, fmt.Errorf("loading expenses: %w", err)
	}
	return bill, nil
}

// ListBills returns the user's bills, newest first
func (p *Postgres) ListBills(ctx context.Context, userID string, limit int) ([]*Bill, error) {
	query := `
SELECT id, user_id, datetime, value, file_hash, filename, created_at
FROM bills
WHERE user_id = $1
ORDER BY datetime DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	bills := make([]*Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bills = append(bills, bill)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, bill := range bills {
		if err := p.loadExpenses(ctx, bill); err != nil {
			return nil, fmt.Errorf("loading expenses for %s: %w", bill.ID, err)
		}
	}
	return bills, nil
}

// ListHashes returns the file hashes of the user's bills
func (p *Postgres) ListHashes(ctx context.Context, userID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT file_hash FROM bills WHERE user_id = $1 ORDER BY datetime DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make([]string, 0)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteBill removes a bill; expenses cascade
func (p *Postgres) DeleteBill(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBillNotFound, id)
	}
	return nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

var (
	_ DB = (*Postgres)(nil)
	_ DB = (*BoltDB)(nil)
)
