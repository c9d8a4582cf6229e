package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/punchamoorthee/qrpay/internal/models"
	"github.com/punchamoorthee/qrpay/internal/store"
	"github.com/rs/zerolog"
)

const (
	DefaultExpiresInMinutes = 60
	MaxExpiresInMinutes     = 24 * 60
)

var (
	ErrAccountNotFound     = store.ErrAccountNotFound
	ErrRequestNotFound     = store.ErrRequestNotFound
	ErrNotPending          = errors.New("payment request is no longer active")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidExpiry       = errors.New("expires_in_minutes out of range")
	ErrInvalidAction       = errors.New("action must be 'accept' or 'reject'")
	ErrSelfPayment         = errors.New("cannot pay your own request")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

type PaymentRequestService struct {
	db      store.DB
	store   *store.Store
	baseURL string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewPaymentRequestService wires the service to the store's pool. publicBaseURL
// is the externally reachable origin used to build scannable payment links.
func NewPaymentRequestService(s *store.Store, publicBaseURL string) *PaymentRequestService {
	return &PaymentRequestService{
		db:      s.Db,
		store:   s,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
		logger:  log.WithComponent("service"),
	}
}

// ValidateCreate normalizes and checks a create payload before any database work.
func ValidateCreate(req *domain.CreateRequest) (int64, error) {
	if !req.Amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	cents, err := domain.ToCents(req.Amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if req.ExpiresInMinutes == 0 {
		req.ExpiresInMinutes = DefaultExpiresInMinutes
	}
	if req.ExpiresInMinutes < 1 || req.ExpiresInMinutes > MaxExpiresInMinutes {
		return 0, ErrInvalidExpiry
	}
	return cents, nil
}

// CreateRequest issues a new pending payment request owned by recipientID.
// When idempotencyKey is set, a replay with the same payload returns the stored response.
func (s *PaymentRequestService) CreateRequest(ctx context.Context, recipientID int64, req domain.CreateRequest, idempotencyKey string, reqHash string) (*domain.CreateResponse, *models.IdempotencyRecord, error) {
	cents, err := ValidateCreate(&req)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if idempotencyKey != "" {
		existing, err := reserveKey(ctx, tx, idempotencyKey, reqHash)
		if err != nil || existing != nil {
			return nil, existing, err
		}
	}

	var recipientName string
	err = tx.QueryRow(ctx, "SELECT owner_name FROM accounts WHERE id = $1", recipientID).Scan(&recipientName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAccountNotFound
		}
		return nil, nil, fmt.Errorf("recipient lookup failed: %w", err)
	}

	requestID := uuid.NewString()
	now := s.now().UTC()
	expiresAt := now.Add(time.Duration(req.ExpiresInMinutes) * time.Minute)

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_requests (request_id, recipient_id, recipient_name, amount, description, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)`,
		requestID, recipientID, recipientName, cents, req.Description, now, expiresAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("request insert failed: %w", err)
	}

	resp := &domain.CreateResponse{
		RequestID:    requestID,
		PaymentURL:   s.paymentURL(requestID),
		Amount:       domain.FromCents(cents),
		ReceiverName: recipientName,
		ExpiresAt:    expiresAt,
	}

	if idempotencyKey != "" {
		respBody, err := json.Marshal(resp)
		if err != nil {
			return nil, nil, err
		}
		_, err = tx.Exec(ctx,
			"UPDATE idempotency_keys SET status = 'completed', request_id = $1, response_status = $2, response_body = $3 WHERE key = $4",
			requestID, http.StatusCreated, respBody, idempotencyKey,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("idempotency update failed: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("tx commit failed: %w", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Int64("recipient_id", recipientID).
		Int64("amount_cents", cents).
		Time("expires_at", expiresAt).
		Msg("payment request created")
	return resp, nil, nil
}

// reserveKey returns the stored record on replay, or reserves the key for this attempt.
func reserveKey(ctx context.Context, tx pgx.Tx, key, reqHash string) (*models.IdempotencyRecord, error) {
	var storedStatus *int
	var storedBody json.RawMessage
	var storedHash string
	err := tx.QueryRow(ctx,
		"SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&storedStatus, &storedBody, &storedHash)

	if err == nil {
		if storedHash != reqHash {
			return nil, ErrIdempotencyMismatch
		}
		if storedStatus == nil {
			return nil, ErrIdempotencyConflict
		}
		return &models.IdempotencyRecord{
			Key:            key,
			RequestHash:    storedHash,
			Status:         "completed",
			ResponseBody:   storedBody,
			ResponseStatus: *storedStatus,
		}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
		key, reqHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("key reservation failed: %w", err)
	}
	return nil, nil
}

func (s *PaymentRequestService) paymentURL(requestID string) string {
	return s.baseURL + "/payment-confirmation?request_id=" + url.QueryEscape(requestID)
}

// Status returns the authoritative view of a request.
func (s *PaymentRequestService) Status(ctx context.Context, requestID string) (*domain.StatusResponse, error) {
	r, err := s.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	resp := r.ToStatusResponse()
	return &resp, nil
}

// Cancel moves a pending request owned by recipientID to cancelled.
func (s *PaymentRequestService) Cancel(ctx context.Context, requestID string, recipientID int64) error {
	return s.transition(ctx, requestID, recipientID, domain.StatusCancelled)
}

// Expire moves a pending request owned by recipientID to expired once the
// requester's client deadline has passed.
func (s *PaymentRequestService) Expire(ctx context.Context, requestID string, recipientID int64) error {
	return s.transition(ctx, requestID, recipientID, domain.StatusExpired)
}

// transition applies a pending -> terminal change on behalf of the request's
// owner. A request that already left pending is never rewritten.
func (s *PaymentRequestService) transition(ctx context.Context, requestID string, ownerID int64, to domain.Status) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE payment_requests SET status = $1 WHERE request_id = $2 AND recipient_id = $3 AND status = 'pending'",
		string(to), requestID, ownerID)
	if err != nil {
		return fmt.Errorf("status update failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		s.logger.Info().Str("request_id", requestID).Str("status", string(to)).Msg("payment request resolved")
		return nil
	}

	r, err := s.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r.RecipientID != ownerID {
		return ErrRequestNotFound
	}
	return ErrNotPending
}

// ConfirmationData previews a pending request for the paying party.
func (s *PaymentRequestService) ConfirmationData(ctx context.Context, requestID string, payerID int64) (*domain.ConfirmationData, error) {
	r, err := s.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.StatusPending {
		return nil, ErrNotPending
	}
	if r.RecipientID == payerID {
		return nil, ErrSelfPayment
	}

	payer, err := s.store.GetAccount(ctx, payerID)
	if err != nil {
		return nil, err
	}
	if payer.Balance < r.Amount {
		return nil, ErrInsufficientFunds
	}

	return &domain.ConfirmationData{
		RequestID:         r.RequestID,
		ReceiverName:      r.RecipientName,
		ReceiverAccountID: r.RecipientID,
		Amount:            domain.FromCents(r.Amount),
		Description:       r.Description,
		CurrentBalance:    domain.FromCents(payer.Balance),
		BalanceAfter:      domain.FromCents(payer.Balance - r.Amount),
	}, nil
}

// Balance returns the current balance of an account.
func (s *PaymentRequestService) Balance(ctx context.Context, accountID int64) (*domain.BalanceResponse, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceResponse{AccountID: acc.ID, Balance: domain.FromCents(acc.Balance)}, nil
}
