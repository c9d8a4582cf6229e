package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
)

func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/requests"
	defer observe(http.MethodPost, endpoint)()

	recipientID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	// 1. Read and Hash Body
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, endpoint, http.StatusInternalServerError, "Stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	hash := sha256.Sum256(bodyBytes)
	reqHash := hex.EncodeToString(hash[:])

	var req domain.CreateRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	// 2. Call Service; the Idempotency-Key header is optional here
	resp, existing, err := h.payments.CreateRequest(r.Context(), recipientID, req, r.Header.Get("Idempotency-Key"), reqHash)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}

	// Idempotent Replay
	if existing != nil {
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, "200").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.ResponseStatus)
		w.Write(existing.ResponseBody)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/requests/%s/status", resp.RequestID))
	h.ok(w, r, endpoint, http.StatusCreated, resp)
}

func (h *Handler) RequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/requests/{id}/status"
	defer observe(http.MethodGet, endpoint)()

	status, err := h.payments.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, status)
}

func (h *Handler) ExpireRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/requests/{id}/expire"
	defer observe(http.MethodPost, endpoint)()

	recipientID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	if err := h.payments.Expire(r.Context(), mux.Vars(r)["id"], recipientID); err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, domain.MessageResponse{Status: "success", Message: "Payment request expired"})
}

func (h *Handler) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/requests/{id}"
	defer observe(http.MethodDelete, endpoint)()

	recipientID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	if err := h.payments.Cancel(r.Context(), mux.Vars(r)["id"], recipientID); err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	l := log.WithContext(r.Context(), h.logger)
	l.Info().Str("request_id", mux.Vars(r)["id"]).Msg("payment request cancelled by owner")
	h.ok(w, r, endpoint, http.StatusOK, domain.MessageResponse{Status: "success", Message: "Payment request cancelled"})
}

func (h *Handler) ConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/requests/{id}/confirmation"
	defer observe(http.MethodGet, endpoint)()

	payerID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	data, err := h.payments.ConfirmationData(r.Context(), mux.Vars(r)["id"], payerID)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, data)
}

func (h *Handler) ProcessActionHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/actions"
	defer observe(http.MethodPost, endpoint)()

	payerID, ok := callerAccount(r)
	if !ok {
		h.fail(w, r, endpoint, http.StatusUnauthorized, "Missing "+AccountIDHeader+" header")
		return
	}

	var req domain.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.RequestID == "" {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Missing request_id")
		return
	}

	resp, err := h.payments.ProcessAction(r.Context(), req.RequestID, payerID, req.Action)
	if err != nil {
		h.serviceError(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, http.StatusOK, resp)
}
