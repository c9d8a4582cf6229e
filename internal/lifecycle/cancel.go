package lifecycle

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
)

// ConfirmFunc asks the user to confirm cancelling req.
type ConfirmFunc func(ctx context.Context, req domain.PaymentRequest) bool

// CancellationHandler is the user-initiated path to a terminal state. Unlike
// the poller and the expiry guard it only proposes after the server agreed.
type CancellationHandler struct {
	c *Controller
}

// RequestCancel cancels the session's request. On a remote failure the
// session stays pending and the *apiclient.APIError is returned so the
// caller can retry.
func (h *CancellationHandler) RequestCancel(ctx context.Context, id SessionID, confirm ConfirmFunc) error {
	var (
		req  domain.PaymentRequest
		gate error
	)
	if err := h.c.exec(func() {
		s := h.c.current
		switch {
		case s == nil || s.id != id:
			gate = ErrNoSession
		case s.resolved || s.request.Status != domain.StatusPending:
			gate = fmt.Errorf("%w: %s", ErrNotPending, s.request.Status)
		default:
			req = s.request
		}
	}); err != nil {
		return err
	}
	if gate != nil {
		return gate
	}

	l := h.c.logger.With().
		Str("session_id", string(id)).
		Str("request_id", req.RequestID).
		Logger()

	if confirm == nil || !confirm(ctx, req) {
		l.Info().Msg("cancellation not confirmed")
		return ErrCancelNotConfirmed
	}

	if err := h.c.api.Cancel(log.ContextWithSessionID(ctx, string(id)), req.RequestID); err != nil {
		l.Warn().Err(err).Msg("remote cancel failed, request stays pending")
		return err
	}

	var (
		accepted bool
		final    domain.Status
	)
	if err := h.c.exec(func() {
		accepted = h.c.propose(id, domain.StatusCancelled, Details{}, SourceCancel)
		if !accepted && h.c.current != nil && h.c.current.id == id {
			final = h.c.current.request.Status
		}
	}); err != nil {
		return err
	}
	if !accepted {
		// Another source resolved the session while the call was in flight.
		l.Info().Str("resolved_as", string(final)).Msg("cancel acknowledged after session resolved")
		if final == "" {
			return ErrNoSession
		}
		return fmt.Errorf("%w: %s", ErrNotPending, final)
	}
	return nil
}
