package lifecycle

import (
	"github.com/google/uuid"
	"github.com/punchamoorthee/qrpay/internal/domain"
)

// SessionID identifies one tracking session. A new id is issued every time a
// request is started, even when the same request is resumed.
type SessionID string

func newSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Details carries what a definitive answer said beyond the status itself.
type Details struct {
	Counterparty string `json:"sender,omitempty"`
}

// Source names the component that proposed a transition.
type Source string

const (
	SourcePoller   Source = "poller"
	SourceExpiry   Source = "expiry"
	SourceCancel   Source = "cancel"
	SourceExternal Source = "external"
)

// Outcome is the single terminal result of a session.
type Outcome struct {
	Status  domain.Status
	Request domain.PaymentRequest
	Details Details
	Source  Source
}

// session is the payment request currently being tracked. Only the controller
// loop reads or writes it.
type session struct {
	id       SessionID
	request  domain.PaymentRequest
	resolved bool
	poll     *StatusPoller
	expiry   *ExpiryGuard
	end      *sessionEnd
}

// stopTimers cancels both scheduled tasks. Safe to call repeatedly.
func (s *session) stopTimers() {
	if s.poll != nil {
		s.poll.stop()
	}
	if s.expiry != nil {
		s.expiry.stop()
	}
}

func (s *session) snapshot() SessionState {
	return SessionState{
		ID:           s.id,
		Request:      s.request,
		Resolved:     s.resolved,
		PollActive:   s.poll != nil && s.poll.active(),
		ExpiryActive: s.expiry != nil && s.expiry.active(),
	}
}

// SessionState is a read-only copy of the tracked session.
type SessionState struct {
	ID           SessionID
	Request      domain.PaymentRequest
	Resolved     bool
	PollActive   bool
	ExpiryActive bool
}

type sessionEnd struct {
	done     chan struct{}
	outcome  Outcome
	resolved bool
}

func newSessionEnd() *sessionEnd {
	return &sessionEnd{done: make(chan struct{})}
}

// finish is called exactly once, from the controller loop.
func (e *sessionEnd) finish(o *Outcome) {
	if o != nil {
		e.outcome = *o
		e.resolved = true
	}
	close(e.done)
}

// SessionHandle is what callers hold on to after starting a session.
type SessionHandle struct {
	ID        SessionID
	RequestID string
	end       *sessionEnd
}

// Done is closed when the session resolves or is torn down.
func (h SessionHandle) Done() <-chan struct{} {
	return h.end.done
}

// Outcome returns the terminal outcome once Done is closed. ok is false while
// the session is still open, or when it was torn down without a resolution.
func (h SessionHandle) Outcome() (Outcome, bool) {
	select {
	case <-h.end.done:
		return h.end.outcome, h.end.resolved
	default:
		return Outcome{}, false
	}
}
