package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/models"
	"github.com/punchamoorthee/qrpay/internal/store"
)

// ProcessAction applies the paying party's decision to a pending request.
// Accepting settles the request as a double-entry transfer within one transaction
// with deterministic locking.
func (s *PaymentRequestService) ProcessAction(ctx context.Context, requestID string, payerID int64, action domain.Action) (*domain.ActionResponse, error) {
	if requestID == "" {
		return nil, ErrRequestNotFound
	}
	if !action.Valid() {
		return nil, ErrInvalidAction
	}

	resp, settleErr, err := s.processAction(ctx, requestID, payerID, action)
	if err == nil {
		return resp, nil
	}
	if settleErr {
		// Failures past validation leave a definitive answer for the requester's poller.
		if _, ferr := s.db.Exec(context.WithoutCancel(ctx),
			"UPDATE payment_requests SET status = 'failed' WHERE request_id = $1 AND status = 'pending'",
			requestID); ferr != nil {
			s.logger.Error().Err(ferr).Str("request_id", requestID).Msg("could not mark request failed")
		}
		s.logger.Error().Err(err).Str("request_id", requestID).Msg("payment settlement failed")
	}
	return nil, err
}

// processAction reports settleErr=true when the error happened after the request
// passed validation and funds were about to move.
func (s *PaymentRequestService) processAction(ctx context.Context, requestID string, payerID int64, action domain.Action) (*domain.ActionResponse, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the request row so concurrent actions serialize on it
	req, err := store.ScanPaymentRequest(tx.QueryRow(ctx, store.SelectPaymentRequestForUpdate, requestID))
	if err != nil {
		return nil, false, err
	}
	if req.Status != domain.StatusPending {
		return nil, false, ErrNotPending
	}

	var payerName string
	err = tx.QueryRow(ctx, "SELECT owner_name FROM accounts WHERE id = $1", payerID).Scan(&payerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrAccountNotFound
		}
		return nil, false, fmt.Errorf("payer lookup failed: %w", err)
	}

	if action == domain.ActionReject {
		_, err = tx.Exec(ctx,
			"UPDATE payment_requests SET status = 'rejected', sender_id = $1, sender_name = $2 WHERE request_id = $3",
			payerID, payerName, requestID)
		if err != nil {
			return nil, false, fmt.Errorf("reject update failed: %w", err)
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("tx commit failed: %w", err)
		}
		s.logger.Info().Str("request_id", requestID).Int64("payer_id", payerID).Msg("payment request rejected")
		return &domain.ActionResponse{
			Status:  "success",
			Message: "Payment request rejected",
			Action:  "rejected",
		}, false, nil
	}

	if req.RecipientID == payerID {
		return nil, false, ErrSelfPayment
	}

	newPayerBalance, err := settle(ctx, tx, req, payerID)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAccountNotFound) {
			return nil, false, err
		}
		return nil, true, err
	}

	_, err = tx.Exec(ctx,
		"UPDATE payment_requests SET status = 'completed', sender_id = $1, sender_name = $2 WHERE request_id = $3",
		payerID, payerName, requestID)
	if err != nil {
		return nil, true, fmt.Errorf("request completion failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			return nil, false, ErrIdempotencyConflict
		}
		return nil, true, fmt.Errorf("tx commit failed: %w", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Int64("payer_id", payerID).
		Int64("recipient_id", req.RecipientID).
		Int64("amount_cents", req.Amount).
		Msg("payment request settled")

	return &domain.ActionResponse{
		Status:       "success",
		Message:      "Payment processed successfully",
		Action:       "accepted",
		Amount:       domain.FromCents(req.Amount),
		ReceiverName: req.RecipientName,
		NewBalance:   domain.FromCents(newPayerBalance),
	}, false, nil
}

// settle moves req.Amount from payerID to the recipient and writes both ledger legs.
// It returns the payer's balance after the debit.
func settle(ctx context.Context, tx pgx.Tx, req *models.PaymentRequest, payerID int64) (int64, error) {
	// Deterministic Locking (Deadlock Prevention)
	acc1ID, acc2ID := payerID, req.RecipientID
	if acc1ID > acc2ID {
		acc1ID, acc2ID = acc2ID, acc1ID
	}

	var balance1, balance2 int64
	err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", acc1ID).Scan(&balance1)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("lock acquisition failed: %w", err)
	}
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", acc2ID).Scan(&balance2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("lock acquisition failed: %w", err)
	}

	payerBalance := balance1
	if payerID != acc1ID {
		payerBalance = balance2
	}
	if payerBalance < req.Amount {
		return 0, ErrInsufficientFunds
	}

	// Debit and credit legs
	_, err = tx.Exec(ctx,
		"INSERT INTO ledger_entries (request_id, account_id, delta) VALUES ($1, $2, $3), ($1, $4, $5)",
		req.RequestID, payerID, -req.Amount, req.RecipientID, req.Amount,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger entry failed: %w", err)
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2", req.Amount, payerID)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", req.Amount, req.RecipientID)
	if err != nil {
		return 0, err
	}

	return payerBalance - req.Amount, nil
}
