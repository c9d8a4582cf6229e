package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	level NoticeLevel
	msg   string
}

type recorder struct {
	mu        sync.Mutex
	notices   []notice
	receipts  []Receipt
	disabled  []string
	refreshes int
}

func (r *recorder) Notify(level NoticeLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, msg})
}

func (r *recorder) Navigate(rc Receipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, rc)
}

func (r *recorder) Disable(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = append(r.disabled, requestID)
}

func (r *recorder) RefreshBalance(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	return nil
}

func newTestDispatcher(clock Clock) (*EffectDispatcher, *recorder) {
	rec := &recorder{}
	d := NewEffectDispatcher(clock)
	d.Balance = rec
	d.Navigator = rec
	d.Notifier = rec
	d.Affordances = rec
	return d, rec
}

var lunch = domain.PaymentRequest{
	RequestID:   "req-1",
	Amount:      decimal.RequireFromString("25"),
	Description: "lunch",
}

func TestDispatcher_Completed(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	d, rec := newTestDispatcher(clock)

	d.Apply(domain.StatusCompleted, lunch, Details{Counterparty: "bob"})
	d.Wait()

	rec.mu.Lock()
	require.Len(t, rec.notices, 1)
	assert.Equal(t, NoticeSuccess, rec.notices[0].level)
	assert.Contains(t, rec.notices[0].msg, "25.00")
	assert.Contains(t, rec.notices[0].msg, "bob")
	assert.Equal(t, 1, rec.refreshes)
	assert.Empty(t, rec.receipts, "navigation is delayed")
	rec.mu.Unlock()

	clock.Advance(DefaultNavigationDelay - time.Millisecond)
	rec.mu.Lock()
	assert.Empty(t, rec.receipts)
	rec.mu.Unlock()

	clock.Advance(time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.receipts, 1)
	assert.Equal(t, Receipt{
		RequestID:    "req-1",
		Amount:       lunch.Amount,
		Counterparty: "bob",
		Description:  "lunch",
	}, rec.receipts[0])
	assert.Empty(t, rec.disabled)
}

func TestDispatcher_NonCompletedStatuses(t *testing.T) {
	tests := []struct {
		status   domain.Status
		level    NoticeLevel
		disabled bool
	}{
		{domain.StatusRejected, NoticeError, false},
		{domain.StatusDeclined, NoticeError, false},
		{domain.StatusFailed, NoticeError, false},
		{domain.StatusCancelled, NoticeInfo, true},
		{domain.StatusExpired, NoticeInfo, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			clock := NewFakeClock(time.Unix(0, 0))
			d, rec := newTestDispatcher(clock)

			d.Apply(tc.status, lunch, Details{})
			d.Wait()
			clock.Advance(time.Minute)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			require.Len(t, rec.notices, 1)
			assert.Equal(t, tc.level, rec.notices[0].level)
			assert.Zero(t, rec.refreshes)
			assert.Empty(t, rec.receipts)
			if tc.disabled {
				assert.Equal(t, []string{"req-1"}, rec.disabled)
			} else {
				assert.Empty(t, rec.disabled)
			}
		})
	}
}

func TestDispatcher_NilCollaborators(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewEffectDispatcher(clock)

	assert.NotPanics(t, func() {
		for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled, domain.StatusExpired} {
			d.Apply(s, lunch, Details{})
		}
		d.Wait()
		clock.Advance(time.Minute)
	})
	assert.Zero(t, clock.Pending())
}

func TestDispatcher_WiredToController(t *testing.T) {
	h := newHarness(t)
	d, rec := newTestDispatcher(h.clock)
	require.NoError(t, h.ctl.exec(func() { h.ctl.dispatcher = d }))

	h.script(reply{status: domain.StatusCompleted, sender: "alice"})
	h.start("req-1")

	h.advanceTo(DefaultPollInterval)
	d.Wait()
	h.advanceTo(DefaultPollInterval + DefaultNavigationDelay)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.notices, 1)
	assert.Equal(t, 1, rec.refreshes)
	require.Len(t, rec.receipts, 1)
	assert.Equal(t, "alice", rec.receipts[0].Counterparty)
}
