package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultNavigationDelay is how long a completed session waits before
// navigating to the receipt.
const DefaultNavigationDelay = 2 * time.Second

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
)

// Receipt is what the navigation after a completed payment carries.
type Receipt struct {
	RequestID    string
	Amount       decimal.Decimal
	Counterparty string
	Description  string
}

type BalanceRefresher interface {
	RefreshBalance(ctx context.Context) error
}

type Navigator interface {
	Navigate(r Receipt)
}

type Notifier interface {
	Notify(level NoticeLevel, msg string)
}

// Affordances disables whatever actions are still bound to a request.
type Affordances interface {
	Disable(requestID string)
}

// EffectDispatcher applies the one-time side effects of a terminal status.
// Apply depends only on its arguments and never blocks the caller; slow work
// runs in the background and can be awaited with Wait.
type EffectDispatcher struct {
	Balance     BalanceRefresher
	Navigator   Navigator
	Notifier    Notifier
	Affordances Affordances

	clock    Clock
	navDelay time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewEffectDispatcher returns a dispatcher with no collaborators. Nil
// collaborators are skipped.
func NewEffectDispatcher(clock Clock) *EffectDispatcher {
	if clock == nil {
		clock = RealClock{}
	}
	return &EffectDispatcher{
		clock:    clock,
		navDelay: DefaultNavigationDelay,
		timeout:  DefaultCallTimeout,
		logger:   log.WithComponent("dispatcher"),
	}
}

// SetNavigationDelay overrides the delay before navigating to the receipt.
func (d *EffectDispatcher) SetNavigationDelay(delay time.Duration) {
	d.navDelay = delay
}

func (d *EffectDispatcher) Apply(status domain.Status, req domain.PaymentRequest, details Details) {
	d.logger.Debug().
		Str("status", string(status)).
		Str("request_id", req.RequestID).
		Msg("applying terminal effects")

	switch status {
	case domain.StatusCompleted:
		from := details.Counterparty
		if from == "" {
			from = "payer"
		}
		d.notify(NoticeSuccess, fmt.Sprintf("Payment of %s received from %s", req.Amount.StringFixed(2), from))
		d.refreshBalance()
		receipt := Receipt{
			RequestID:    req.RequestID,
			Amount:       req.Amount,
			Counterparty: details.Counterparty,
			Description:  req.Description,
		}
		if d.Navigator != nil {
			d.clock.AfterFunc(d.navDelay, func() { d.Navigator.Navigate(receipt) })
		}
	case domain.StatusRejected, domain.StatusDeclined:
		d.notify(NoticeError, "Payment request was declined")
	case domain.StatusFailed:
		d.notify(NoticeError, "Payment failed, please try again")
	case domain.StatusCancelled:
		d.notify(NoticeInfo, "Payment request cancelled")
		if d.Affordances != nil {
			d.Affordances.Disable(req.RequestID)
		}
	case domain.StatusExpired:
		d.notify(NoticeInfo, "Payment request expired")
	default:
		d.logger.Warn().Str("status", string(status)).Msg("no effects for status")
	}
}

// Wait blocks until background balance refreshes have finished.
func (d *EffectDispatcher) Wait() {
	d.wg.Wait()
}

func (d *EffectDispatcher) notify(level NoticeLevel, msg string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(level, msg)
}

func (d *EffectDispatcher) refreshBalance() {
	if d.Balance == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.Balance.RefreshBalance(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("balance refresh failed")
		}
	}()
}
