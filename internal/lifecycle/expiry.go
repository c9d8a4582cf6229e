package lifecycle

import (
	"context"
	"time"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
)

// ExpiryGuard enforces the absolute client-side deadline of a session.
type ExpiryGuard struct {
	c         *Controller
	sessionID SessionID
	requestID string
	deadline  time.Duration

	timer   Timer
	stopped bool
}

func newExpiryGuard(c *Controller, id SessionID, requestID string, deadline time.Duration) *ExpiryGuard {
	return &ExpiryGuard{c: c, sessionID: id, requestID: requestID, deadline: deadline}
}

func (g *ExpiryGuard) start() {
	g.timer = g.c.clock.AfterFunc(g.deadline, func() {
		g.c.post(g.fire)
	})
}

// fire runs on the loop. The remote expire call is best effort; the local
// outcome is expired whatever the server answers.
func (g *ExpiryGuard) fire() {
	if g.stopped {
		return
	}
	g.stopped = true
	if !g.c.isLive(g.sessionID) {
		return
	}

	l := g.c.logger.With().
		Str("session_id", string(g.sessionID)).
		Str("request_id", g.requestID).
		Logger()
	l.Info().Dur("deadline", g.deadline).Msg("deadline reached, expiring payment request")

	requestID := g.requestID
	g.c.goAsync(func(ctx context.Context) {
		ctx = log.ContextWithSessionID(ctx, string(g.sessionID))
		if err := g.c.api.Expire(ctx, requestID); err != nil {
			l.Warn().Err(err).Msg("remote expire failed")
			return
		}
		l.Debug().Msg("remote expire acknowledged")
	})

	g.c.propose(g.sessionID, domain.StatusExpired, Details{}, SourceExpiry)
}

func (g *ExpiryGuard) stop() {
	if g.stopped {
		return
	}
	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
	}
}

func (g *ExpiryGuard) active() bool {
	return !g.stopped
}
