package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/punchamoorthee/qrpay/internal/models"
	"github.com/punchamoorthee/qrpay/internal/service"
	"github.com/rs/zerolog"
)

// AccountIDHeader carries the caller's account, set by the upstream gateway.
const AccountIDHeader = "X-Account-ID"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpay_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qrpay_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// PaymentService is the payment-request backend the handlers delegate to.
type PaymentService interface {
	CreateRequest(ctx context.Context, recipientID int64, req domain.CreateRequest, idempotencyKey, reqHash string) (*domain.CreateResponse, *models.IdempotencyRecord, error)
	Status(ctx context.Context, requestID string) (*domain.StatusResponse, error)
	Cancel(ctx context.Context, requestID string, recipientID int64) error
	Expire(ctx context.Context, requestID string, recipientID int64) error
	ConfirmationData(ctx context.Context, requestID string, payerID int64) (*domain.ConfirmationData, error)
	ProcessAction(ctx context.Context, requestID string, payerID int64, action domain.Action) (*domain.ActionResponse, error)
	Balance(ctx context.Context, accountID int64) (*domain.BalanceResponse, error)
}

// AccountStore is the subset of the store used by the account handlers.
type AccountStore interface {
	CreateAccount(ctx context.Context, ownerName string) (int64, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetEntries(ctx context.Context, accountID int64) ([]models.LedgerEntry, error)
}

type Handler struct {
	accounts AccountStore
	payments PaymentService
	logger   zerolog.Logger
}

func NewHandler(accounts AccountStore, payments PaymentService) *Handler {
	return &Handler{
		accounts: accounts,
		payments: payments,
		logger:   log.WithComponent("api"),
	}
}

// NewRouter mounts every endpoint, including /health and /metrics.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/entries", h.GetAccountEntriesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/wallet/balance", h.BalanceHandler).Methods(http.MethodGet)

	v1.HandleFunc("/payments/requests", h.CreateRequestHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payments/requests/{id}/status", h.RequestStatusHandler).Methods(http.MethodGet)
	v1.HandleFunc("/payments/requests/{id}/expire", h.ExpireRequestHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payments/requests/{id}/confirmation", h.ConfirmationHandler).Methods(http.MethodGet)
	v1.HandleFunc("/payments/requests/{id}", h.CancelRequestHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/payments/actions", h.ProcessActionHandler).Methods(http.MethodPost)
	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), rid)))
	})
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	defer observe(http.MethodPost, endpoint)()

	var body struct {
		OwnerName string `json:"owner_name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.fail(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
			return
		}
	}

	id, err := h.accounts.CreateAccount(r.Context(), body.OwnerName)
	if err != nil {
		h.logger.Error().Err(err).Msg("account creation failed")
		h.fail(w, r, endpoint, http.StatusInternalServerError, "System error creating account")
		return
	}
	h.ok(w, r, endpoint, http.StatusCreated, map[string]int64{"account_id": id})
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}"
	defer observe(http.MethodGet, endpoint)()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, account.ToDomain())
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/entries"
	defer observe(http.MethodGet, endpoint)()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Invalid account id")
		return
	}

	entries, err := h.accounts.GetEntries(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}

	out := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.LedgerEntry{
			RequestID: e.RequestID,
			AccountID: e.AccountID,
			Delta:     domain.FromCents(e.Delta),
			CreatedAt: e.CreatedAt,
		})
	}
	h.ok(w, r, endpoint, http.StatusOK, out)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/wallet/balance"
	defer observe(http.MethodGet, endpoint)()

	accountID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	bal, err := h.payments.Balance(r.Context(), accountID)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, bal)
}

// serviceError maps service and store sentinels onto HTTP status codes.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		h.fail(w, r, endpoint, http.StatusNotFound, "Account not found")
	case errors.Is(err, service.ErrRequestNotFound):
		h.fail(w, r, endpoint, http.StatusNotFound, "Payment request not found")
	case errors.Is(err, service.ErrNotPending):
		h.fail(w, r, endpoint, http.StatusBadRequest, "Payment request is no longer active")
	case errors.Is(err, service.ErrInvalidAmount):
		h.fail(w, r, endpoint, http.StatusUnprocessableEntity, "Amount must be greater than zero")
	case errors.Is(err, service.ErrInvalidExpiry):
		h.fail(w, r, endpoint, http.StatusUnprocessableEntity, "expires_in_minutes must be between 1 and 1440")
	case errors.Is(err, service.ErrInvalidAction):
		h.fail(w, r, endpoint, http.StatusBadRequest, "Action must be 'accept' or 'reject'")
	case errors.Is(err, service.ErrSelfPayment):
		h.fail(w, r, endpoint, http.StatusUnprocessableEntity, "Cannot pay your own request")
	case errors.Is(err, service.ErrInsufficientFunds):
		h.fail(w, r, endpoint, http.StatusUnprocessableEntity, "Insufficient funds in your wallet")
	case errors.Is(err, service.ErrIdempotencyConflict):
		h.fail(w, r, endpoint, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, service.ErrIdempotencyMismatch):
		h.fail(w, r, endpoint, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	default:
		l := log.WithContext(r.Context(), h.logger)
		l.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
		h.fail(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
	}
}

func callerAccount(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(AccountIDHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func observe(method, endpoint string) func() {
	start := time.Now()
	return func() {
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, endpoint string, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, code int, message string) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	respondWithError(w, code, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
