package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the client-side cache of a server-owned payment request.
type PaymentRequest struct {
	RequestID    string          `json:"request_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	ReceiverName string          `json:"receiver_name,omitempty"`
	QRCodeURL    string          `json:"qr_code_url,omitempty"`
	PaymentURL   string          `json:"payment_url,omitempty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at,omitzero"`
	// ExpiresAt is advisory. The client enforces its own deadline independently.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	// CounterpartyName is populated only once the request is completed.
	CounterpartyName string `json:"sender_name,omitempty"`
}

// CreateRequest is the payload for generating a new payment request.
type CreateRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description,omitempty"`
	ExpiresInMinutes int             `json:"expires_in_minutes"`
}

// CreateResponse is returned once the server has issued a request id.
type CreateResponse struct {
	RequestID string `json:"request_id"`
	QRCodeURL string `json:"qr_code_url,omitempty"`
	// QRURL is the field name used by older deployments for QRCodeURL.
	QRURL        string          `json:"qr_url,omitempty"`
	PaymentURL   string          `json:"payment_url,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	ReceiverName string          `json:"receiver_name,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// CodeURL returns whichever QR code link the server provided.
func (r CreateResponse) CodeURL() string {
	if r.QRCodeURL != "" {
		return r.QRCodeURL
	}
	return r.QRURL
}

// StatusResponse is the canonical answer of the status probe.
type StatusResponse struct {
	RequestID    string          `json:"request_id"`
	Status       Status          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	ReceiverName string          `json:"receiver_name,omitempty"`
	SenderName   string          `json:"sender_name,omitempty"`
	CreatedAt    time.Time       `json:"created_at,omitzero"`
	ExpiresAt    time.Time       `json:"expires_at,omitzero"`
}

// Action is what the paying party decides to do with a request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// ActionRequest is the DTO for the counterparty approve/decline flow.
type ActionRequest struct {
	RequestID string `json:"request_id"`
	Action    Action `json:"action"`
}

// ActionResponse is returned after a counterparty action was applied.
type ActionResponse struct {
	Status       string          `json:"status"`
	Message      string          `json:"message"`
	Action       string          `json:"action"`
	Amount       decimal.Decimal `json:"amount,omitzero"`
	ReceiverName string          `json:"receiver_name,omitempty"`
	NewBalance   decimal.Decimal `json:"new_balance,omitzero"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ConfirmationData is what the paying party sees before accepting.
type ConfirmationData struct {
	RequestID         string          `json:"request_id"`
	ReceiverName      string          `json:"receiver_name"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
}

// Account represents a user's wallet.
type Account struct {
	ID        int64           `json:"id"`
	OwnerName string          `json:"owner_name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// LedgerEntry represents one leg of a settled payment request.
// The sum of Deltas for a given RequestID must always equal 0.
type LedgerEntry struct {
	RequestID string          `json:"request_id"`
	AccountID int64           `json:"account_id"`
	Delta     decimal.Decimal `json:"delta"`
	CreatedAt time.Time       `json:"created_at"`
}

// BalanceResponse answers the wallet balance query.
type BalanceResponse struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// IdempotencyPayload stores the response state for exact-once delivery.
type IdempotencyPayload struct {
	Status         string          `json:"status"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	ResponseStatus int             `json:"response_status,omitempty"`
}
