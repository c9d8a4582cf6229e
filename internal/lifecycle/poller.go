package lifecycle

import (
	"context"
	"time"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
)

// StatusPoller probes the remote status of one session's request at a fixed
// rate. Every method runs on the controller loop.
type StatusPoller struct {
	c         *Controller
	sessionID SessionID
	requestID string
	interval  time.Duration

	timer   Timer
	probing bool
	stopped bool
}

func newStatusPoller(c *Controller, id SessionID, requestID string, interval time.Duration) *StatusPoller {
	return &StatusPoller{c: c, sessionID: id, requestID: requestID, interval: interval}
}

func (p *StatusPoller) start() {
	p.schedule()
}

func (p *StatusPoller) schedule() {
	p.timer = p.c.clock.AfterFunc(p.interval, func() {
		p.c.post(p.tick)
	})
}

func (p *StatusPoller) tick() {
	if p.stopped || !p.c.isLive(p.sessionID) {
		return
	}
	// Next tick is armed first so a slow probe does not stretch the interval.
	p.schedule()

	if p.probing {
		pollsTotal.WithLabelValues("skipped").Inc()
		p.c.logger.Debug().Str("request_id", p.requestID).Msg("previous status probe still in flight, skipping tick")
		return
	}
	p.probing = true

	p.c.goAsync(func(ctx context.Context) {
		ctx = log.ContextWithSessionID(ctx, string(p.sessionID))
		st, err := p.c.api.Status(ctx, p.requestID)
		p.c.post(func() { p.observe(st, err) })
	})
}

func (p *StatusPoller) observe(st *domain.StatusResponse, err error) {
	p.probing = false
	if p.stopped || !p.c.isLive(p.sessionID) {
		pollsTotal.WithLabelValues("stale").Inc()
		return
	}

	l := p.c.logger.With().
		Str("session_id", string(p.sessionID)).
		Str("request_id", p.requestID).
		Logger()

	if err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		l.Warn().Err(err).Msg("status probe failed, retrying on next tick")
		return
	}
	if !st.Status.Valid() {
		pollsTotal.WithLabelValues("unknown").Inc()
		l.Warn().Str("status", string(st.Status)).Msg("ignoring unknown remote status")
		return
	}
	if !st.Status.Terminal() {
		pollsTotal.WithLabelValues("pending").Inc()
		return
	}

	pollsTotal.WithLabelValues("terminal").Inc()
	p.stop()
	p.c.propose(p.sessionID, st.Status, Details{Counterparty: st.SenderName}, SourcePoller)
}

func (p *StatusPoller) stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *StatusPoller) active() bool {
	return !p.stopped
}
