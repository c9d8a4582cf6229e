package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sqlResolve        = regexp.QuoteMeta("UPDATE payment_requests SET status = $1 WHERE request_id = $2 AND recipient_id = $3 AND status = 'pending'")
	sqlSelectRequest  = regexp.QuoteMeta("FROM payment_requests WHERE request_id = $1")
	sqlLockRequest    = regexp.QuoteMeta("FROM payment_requests WHERE request_id = $1 FOR UPDATE")
	sqlPayerName      = regexp.QuoteMeta("SELECT owner_name FROM accounts WHERE id = $1")
	sqlLockAccount    = regexp.QuoteMeta("SELECT balance FROM accounts WHERE id = $1 FOR UPDATE")
	sqlLedger         = regexp.QuoteMeta("INSERT INTO ledger_entries")
	sqlDebit          = regexp.QuoteMeta("UPDATE accounts SET balance = balance - $1")
	sqlCredit         = regexp.QuoteMeta("UPDATE accounts SET balance = balance + $1")
	sqlComplete       = regexp.QuoteMeta("UPDATE payment_requests SET status = 'completed'")
	sqlReject         = regexp.QuoteMeta("UPDATE payment_requests SET status = 'rejected'")
	sqlMarkFailed     = regexp.QuoteMeta("UPDATE payment_requests SET status = 'failed' WHERE request_id = $1 AND status = 'pending'")
	requestColumns    = []string{"request_id", "recipient_id", "recipient_name", "sender_id", "sender_name", "amount", "description", "status", "created_at", "expires_at"}
	readCommittedOpts = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
)

func newMockService(t *testing.T) (*PaymentRequestService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPaymentRequestService(store.New(mock), "http://pay.example"), mock
}

// requestRow renders a payment_requests row owned by account 7 for 25.00.
func requestRow(status domain.Status) *pgxmock.Rows {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(requestColumns).AddRow(
		"req-1", int64(7), "carol", (*int64)(nil), "",
		int64(2500), "lunch", string(status), created, created.Add(time.Hour),
	)
}

func TestCancel(t *testing.T) {
	t.Run("owner cancels pending request", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectExec(sqlResolve).
			WithArgs("cancelled", "req-1", int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Cancel(context.Background(), "req-1", 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("another account sees not found", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectExec(sqlResolve).
			WithArgs("cancelled", "req-1", int64(9)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(sqlSelectRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))

		err := s.Cancel(context.Background(), "req-1", 9)
		assert.ErrorIs(t, err, ErrRequestNotFound)
		assert.NotErrorIs(t, err, ErrNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resolved request is not rewritten", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectExec(sqlResolve).
			WithArgs("cancelled", "req-1", int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(sqlSelectRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusCompleted))

		err := s.Cancel(context.Background(), "req-1", 7)
		assert.ErrorIs(t, err, ErrNotPending)
		assert.NotErrorIs(t, err, ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown request", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectExec(sqlResolve).
			WithArgs("cancelled", "nope", int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(sqlSelectRequest).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

		assert.ErrorIs(t, s.Cancel(context.Background(), "nope", 7), ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExpire_OwnerOnly(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectExec(sqlResolve).
		WithArgs("expired", "req-1", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(sqlResolve).
		WithArgs("expired", "req-1", int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(sqlSelectRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusExpired))

	require.NoError(t, s.Expire(context.Background(), "req-1", 7))
	assert.ErrorIs(t, s.Expire(context.Background(), "req-1", 8), ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_RejectsBeforeTouchingDatabase(t *testing.T) {
	s, mock := newMockService(t)

	_, err := s.ProcessAction(context.Background(), "", 8, domain.ActionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
	_, err = s.ProcessAction(context.Background(), "req-1", 8, domain.Action("pay"))
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_NotPending(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusCancelled))
	mock.ExpectRollback()

	_, err := s.ProcessAction(context.Background(), "req-1", 8, domain.ActionAccept)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_UnknownRequest(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.ProcessAction(context.Background(), "nope", 8, domain.ActionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.NotErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_SelfPayment(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))
	mock.ExpectQuery(sqlPayerName).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_name"}).AddRow("carol"))
	mock.ExpectRollback()

	_, err := s.ProcessAction(context.Background(), "req-1", 7, domain.ActionAccept)
	assert.ErrorIs(t, err, ErrSelfPayment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_InsufficientFunds(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))
	mock.ExpectQuery(sqlPayerName).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_name"}).AddRow("alice"))
	// Accounts are locked in id order: recipient 7 before payer 8.
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(0)))
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(2499)))
	mock.ExpectRollback()

	_, err := s.ProcessAction(context.Background(), "req-1", 8, domain.ActionAccept)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// A refused payer leaves the request pending: no failed mark is written.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_SettlementFailureMarksRequestFailed(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))
	mock.ExpectQuery(sqlPayerName).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_name"}).AddRow("alice"))
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(0)))
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(10000)))
	mock.ExpectExec(sqlLedger).
		WithArgs("req-1", int64(8), int64(-2500), int64(7), int64(2500)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	mock.ExpectExec(sqlMarkFailed).WithArgs("req-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	_, err := s.ProcessAction(context.Background(), "req-1", 8, domain.ActionAccept)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger entry failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_AcceptSettles(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))
	mock.ExpectQuery(sqlPayerName).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_name"}).AddRow("alice"))
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(0)))
	mock.ExpectQuery(sqlLockAccount).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(10000)))
	mock.ExpectExec(sqlLedger).
		WithArgs("req-1", int64(8), int64(-2500), int64(7), int64(2500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(sqlDebit).WithArgs(int64(2500), int64(8)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(sqlCredit).WithArgs(int64(2500), int64(7)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(sqlComplete).WithArgs(int64(8), "alice", "req-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	resp, err := s.ProcessAction(context.Background(), "req-1", 8, domain.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Action)
	assert.Equal(t, "carol", resp.ReceiverName)
	assert.Equal(t, "25.00", resp.Amount.StringFixed(2))
	assert.Equal(t, "75.00", resp.NewBalance.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAction_Reject(t *testing.T) {
	s, mock := newMockService(t)
	mock.ExpectBeginTx(readCommittedOpts)
	mock.ExpectQuery(sqlLockRequest).WithArgs("req-1").WillReturnRows(requestRow(domain.StatusPending))
	mock.ExpectQuery(sqlPayerName).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"owner_name"}).AddRow("alice"))
	mock.ExpectExec(sqlReject).WithArgs(int64(8), "alice", "req-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	resp, err := s.ProcessAction(context.Background(), "req-1", 8, domain.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, "rejected", resp.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
