// Package lifecycle tracks one payment request at a time against a remote,
// asynchronously changing status. A recurring poll, an absolute deadline and a
// user cancellation all race to resolve the session; the controller accepts
// the first definitive proposal and discards the rest.
//
// All session state is owned by a single event loop goroutine. Timers and
// remote calls never touch it directly: they post closures to the loop, so
// the check-and-set of the resolved flag is one uninterrupted step.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 3000 * time.Millisecond
	DefaultDeadline     = 180000 * time.Millisecond
	DefaultCallTimeout  = 10 * time.Second
)

var (
	ErrMissingRequestID   = errors.New("missing request id")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrNotPending         = errors.New("payment request is no longer pending")
	ErrNoSession          = errors.New("no such active session")
	ErrCancelNotConfirmed = errors.New("cancellation not confirmed")
	ErrClosed             = errors.New("controller closed")
)

// RemoteAPI is the subset of the backend the lifecycle depends on.
type RemoteAPI interface {
	Create(ctx context.Context, req domain.CreateRequest, idempotencyKey string) (*domain.CreateResponse, error)
	Status(ctx context.Context, requestID string) (*domain.StatusResponse, error)
	Expire(ctx context.Context, requestID string) error
	Cancel(ctx context.Context, requestID string) error
}

// Dispatcher applies the side effects of a terminal status.
type Dispatcher interface {
	Apply(status domain.Status, req domain.PaymentRequest, details Details)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithPollInterval overrides the 3s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(ctl *Controller) { ctl.pollInterval = d }
}

// WithDeadline overrides the 3 minute absolute deadline.
func WithDeadline(d time.Duration) Option {
	return func(ctl *Controller) { ctl.deadline = d }
}

// WithCallTimeout bounds each background remote call.
func WithCallTimeout(d time.Duration) Option {
	return func(ctl *Controller) { ctl.callTimeout = d }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

type Controller struct {
	api          RemoteAPI
	dispatcher   Dispatcher
	clock        Clock
	pollInterval time.Duration
	deadline     time.Duration
	callTimeout  time.Duration
	logger       zerolog.Logger
	canceller    *CancellationHandler

	events    chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   sync.WaitGroup
	pending    atomic.Int64

	// Owned by the loop goroutine.
	current *session
}

// NewController starts the event loop. Call Close to stop it.
func NewController(api RemoteAPI, dispatcher Dispatcher, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:          api,
		dispatcher:   dispatcher,
		clock:        RealClock{},
		pollInterval: DefaultPollInterval,
		deadline:     DefaultDeadline,
		callTimeout:  DefaultCallTimeout,
		logger:       log.WithComponent("lifecycle"),
		events:       make(chan func()),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		baseCtx:      ctx,
		cancelBase:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.canceller = &CancellationHandler{c: c}
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			c.safely(fn)
		case <-c.stop:
			c.teardownCurrent("shutdown")
			return
		}
	}
}

// safely keeps a misbehaving callback from killing the loop.
func (c *Controller) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("lifecycle callback panicked")
		}
	}()
	fn()
}

// post hands fn to the loop. It reports false once the loop has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// exec runs fn on the loop and waits for it to finish.
func (c *Controller) exec(fn func()) error {
	ran := make(chan struct{})
	if !c.post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		// The loop may have finished fn right before exiting.
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// goAsync runs a remote call off the loop. Must be called from the loop.
func (c *Controller) goAsync(fn func(ctx context.Context)) {
	c.inflight.Add(1)
	c.pending.Add(1)
	go func() {
		defer c.inflight.Done()
		defer c.pending.Add(-1)
		ctx, cancel := context.WithTimeout(c.baseCtx, c.callTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close tears down the current session and stops the loop. In-flight remote
// calls are cancelled and awaited.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.cancelBase()
		c.inflight.Wait()
	})
}

// Create validates the amount locally, issues the request remotely and starts
// tracking it. Any session already being tracked is replaced.
func (c *Controller) Create(ctx context.Context, req domain.CreateRequest) (SessionHandle, *domain.CreateResponse, error) {
	if !req.Amount.IsPositive() {
		return SessionHandle{}, nil, ErrInvalidAmount
	}

	resp, err := c.api.Create(ctx, req, uuid.NewString())
	if err != nil {
		c.logger.Warn().Err(err).Msg("payment request creation failed")
		return SessionHandle{}, nil, err
	}

	amount := resp.Amount
	if amount.IsZero() {
		amount = req.Amount
	}
	h, err := c.Start(domain.PaymentRequest{
		RequestID:    resp.RequestID,
		Amount:       amount,
		Description:  req.Description,
		ReceiverName: resp.ReceiverName,
		QRCodeURL:    resp.CodeURL(),
		PaymentURL:   resp.PaymentURL,
		Status:       domain.StatusPending,
		CreatedAt:    c.clock.Now(),
		ExpiresAt:    resp.ExpiresAt,
	})
	if err != nil {
		return SessionHandle{}, nil, err
	}
	return h, resp, nil
}

// Resume starts tracking an existing request, e.g. after navigating back to it.
func (c *Controller) Resume(ctx context.Context, requestID string) (SessionHandle, error) {
	if requestID == "" {
		return SessionHandle{}, ErrMissingRequestID
	}

	st, err := c.api.Status(ctx, requestID)
	if err != nil {
		return SessionHandle{}, err
	}
	if st.Status != domain.StatusPending {
		return SessionHandle{}, fmt.Errorf("%w: %s", ErrNotPending, st.Status)
	}

	return c.Start(domain.PaymentRequest{
		RequestID:    requestID,
		Amount:       st.Amount,
		Description:  st.Description,
		ReceiverName: st.ReceiverName,
		Status:       domain.StatusPending,
		CreatedAt:    st.CreatedAt,
		ExpiresAt:    st.ExpiresAt,
	})
}

// Start replaces any tracked session with a new pending one and arms the
// poller and the expiry guard. A request without an id never starts.
func (c *Controller) Start(req domain.PaymentRequest) (SessionHandle, error) {
	if req.RequestID == "" {
		return SessionHandle{}, ErrMissingRequestID
	}

	var h SessionHandle
	err := c.exec(func() {
		c.teardownCurrent("replaced")

		req.Status = domain.StatusPending
		req.CounterpartyName = ""
		s := &session{
			id:      newSessionID(),
			request: req,
			end:     newSessionEnd(),
		}
		s.poll = newStatusPoller(c, s.id, req.RequestID, c.pollInterval)
		s.expiry = newExpiryGuard(c, s.id, req.RequestID, c.deadline)
		c.current = s

		s.poll.start()
		s.expiry.start()

		sessionsStarted.Inc()
		c.logger.Info().
			Str("session_id", string(s.id)).
			Str("request_id", req.RequestID).
			Str("amount", req.Amount.String()).
			Dur("poll_interval", c.pollInterval).
			Dur("deadline", c.deadline).
			Msg("tracking payment request")

		h = SessionHandle{ID: s.id, RequestID: req.RequestID, end: s.end}
	})
	if err != nil {
		return SessionHandle{}, err
	}
	return h, nil
}

// ProposeTransition offers a terminal status for a session. It reports whether
// the proposal was accepted; only the first one for a session ever is.
func (c *Controller) ProposeTransition(id SessionID, status domain.Status, details Details) bool {
	var accepted bool
	if err := c.exec(func() {
		accepted = c.propose(id, status, details, SourceExternal)
	}); err != nil {
		return false
	}
	return accepted
}

// Cancel asks the user to confirm, cancels remotely and only then resolves
// the session as cancelled.
func (c *Controller) Cancel(ctx context.Context, id SessionID, confirm ConfirmFunc) error {
	return c.canceller.RequestCancel(ctx, id, confirm)
}

// Teardown stops both timers of the session without applying any effect.
func (c *Controller) Teardown(id SessionID) {
	_ = c.exec(func() {
		if c.current == nil || c.current.id != id {
			return
		}
		c.teardownCurrent("teardown")
	})
}

// Snapshot returns a copy of the tracked session, if any.
func (c *Controller) Snapshot() (SessionState, bool) {
	var st SessionState
	var ok bool
	_ = c.exec(func() {
		if c.current != nil {
			st, ok = c.current.snapshot(), true
		}
	})
	return st, ok
}

// propose is the single choke point for status changes. Loop only.
func (c *Controller) propose(id SessionID, status domain.Status, details Details, source Source) bool {
	s := c.current
	l := c.logger.With().
		Str("session_id", string(id)).
		Str("status", string(status)).
		Str("source", string(source)).
		Logger()

	if s == nil || s.id != id {
		proposalsDiscarded.WithLabelValues("stale").Inc()
		l.Debug().Msg("discarding proposal for inactive session")
		return false
	}
	if s.resolved {
		proposalsDiscarded.WithLabelValues("resolved").Inc()
		l.Debug().Str("resolved_as", string(s.request.Status)).Msg("discarding proposal for resolved session")
		return false
	}
	if !status.Terminal() {
		proposalsDiscarded.WithLabelValues("invalid").Inc()
		l.Warn().Msg("discarding non-terminal proposal")
		return false
	}

	s.resolved = true
	s.request.Status = status
	if status == domain.StatusCompleted {
		s.request.CounterpartyName = details.Counterparty
	}
	s.stopTimers()

	outcome := Outcome{Status: status, Request: s.request, Details: details, Source: source}
	transitionsTotal.WithLabelValues(string(status), string(source)).Inc()
	l.Info().Str("request_id", s.request.RequestID).Msg("payment request resolved")

	if c.dispatcher != nil {
		c.safely(func() { c.dispatcher.Apply(status, outcome.Request, details) })
	}
	s.end.finish(&outcome)
	return true
}

// teardownCurrent drops the tracked session. Loop only.
func (c *Controller) teardownCurrent(reason string) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	s.stopTimers()
	if !s.resolved {
		c.logger.Info().
			Str("session_id", string(s.id)).
			Str("request_id", s.request.RequestID).
			Str("reason", reason).
			Msg("session torn down")
		s.end.finish(nil)
	}
}

// isLive reports whether id is the tracked, unresolved session. Loop only.
func (c *Controller) isLive(id SessionID) bool {
	return c.current != nil && c.current.id == id && !c.current.resolved
}
