package models

import (
	"encoding/json"
	"time"

	"github.com/punchamoorthee/qrpay/internal/domain"
)

// Account represents a user's wallet row. Balance is in minor units.
type Account struct {
	ID        int64
	OwnerName string
	Balance   int64
	CreatedAt time.Time
}

// PaymentRequest is the persisted, server-owned payment request.
type PaymentRequest struct {
	RequestID     string
	RecipientID   int64
	RecipientName string
	SenderID      *int64
	SenderName    string
	Amount        int64
	Description   string
	Status        domain.Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// LedgerEntry represents one leg of the double-entry accounting.
type LedgerEntry struct {
	RequestID string
	AccountID int64
	Delta     int64
	CreatedAt time.Time
}

// IdempotencyRecord holds the state of a request key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   json.RawMessage
	ResponseStatus int
}

// ToStatusResponse renders the record as the public status view.
func (r *PaymentRequest) ToStatusResponse() domain.StatusResponse {
	return domain.StatusResponse{
		RequestID:    r.RequestID,
		Status:       r.Status,
		Amount:       domain.FromCents(r.Amount),
		Description:  r.Description,
		ReceiverName: r.RecipientName,
		SenderName:   r.SenderName,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

// ToDomain renders the account with a decimal balance.
func (a *Account) ToDomain() domain.Account {
	return domain.Account{
		ID:        a.ID,
		OwnerName: a.OwnerName,
		Balance:   domain.FromCents(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}
