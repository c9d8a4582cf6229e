package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/punchamoorthee/qrpay/internal/models"
)

//go:embed schema.sql
var schema string

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRequestNotFound = errors.New("payment request not found")
)

// DB is the part of a pgx pool the store and the services run queries on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

type Store struct {
	Db   DB
	pool *pgxpool.Pool
}

// New wraps an already connected DB.
func New(db DB) *Store {
	return &Store{Db: db}
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool, pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// GetAccount retrieves a single account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	err := s.Db.QueryRow(ctx,
		"SELECT id, owner_name, balance, created_at FROM accounts WHERE id = $1", id,
	).Scan(&account.ID, &account.OwnerName, &account.Balance, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CreateAccount creates a new account with 0 balance.
func (s *Store) CreateAccount(ctx context.Context, ownerName string) (int64, error) {
	var id int64
	err := s.Db.QueryRow(ctx,
		"INSERT INTO accounts (owner_name, balance) VALUES ($1, 0) RETURNING id", ownerName,
	).Scan(&id)
	return id, err
}

// GetPaymentRequest retrieves a payment request by its public identifier.
func (s *Store) GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	return scanPaymentRequest(s.Db.QueryRow(ctx, selectPaymentRequest+" WHERE request_id = $1", requestID))
}

// GetEntries retrieves ledger entries for a specific account.
func (s *Store) GetEntries(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.Db.Query(ctx,
		"SELECT request_id, account_id, delta, created_at FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logger := log.WithComponent("store")
	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.RequestID, &entry.AccountID, &entry.Delta, &entry.CreatedAt); err != nil {
			logger.Warn().Err(err).Int64("account_id", accountID).Msg("error scanning ledger entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const selectPaymentRequest = `SELECT request_id, recipient_id, recipient_name, sender_id, sender_name,
	amount, description, status, created_at, expires_at FROM payment_requests`

// SelectPaymentRequestForUpdate locks a request row inside a transaction.
const SelectPaymentRequestForUpdate = selectPaymentRequest + " WHERE request_id = $1 FOR UPDATE"

// ScanPaymentRequest maps a row produced by SelectPaymentRequestForUpdate.
func ScanPaymentRequest(row pgx.Row) (*models.PaymentRequest, error) {
	return scanPaymentRequest(row)
}

func scanPaymentRequest(row pgx.Row) (*models.PaymentRequest, error) {
	var r models.PaymentRequest
	var status string
	err := row.Scan(&r.RequestID, &r.RecipientID, &r.RecipientName, &r.SenderID, &r.SenderName,
		&r.Amount, &r.Description, &status, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	r.Status = domain.Status(status)
	return &r, nil
}
