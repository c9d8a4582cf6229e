package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/lifecycle"
)

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type balanceSource interface {
	Balance(ctx context.Context) (*domain.BalanceResponse, error)
}

// terminalEffects renders the one-time effects of a resolved session on the
// terminal.
type terminalEffects struct {
	mu        sync.Mutex
	out       io.Writer
	balances  balanceSource
	navigated chan struct{}
	navOnce   sync.Once
	disabled  map[string]bool
}

func newTerminalEffects(out io.Writer, balances balanceSource) *terminalEffects {
	return &terminalEffects{
		out:       out,
		balances:  balances,
		navigated: make(chan struct{}),
		disabled:  map[string]bool{},
	}
}

func (e *terminalEffects) Notify(level lifecycle.NoticeLevel, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mark := "*"
	switch level {
	case lifecycle.NoticeSuccess:
		mark = "✓"
	case lifecycle.NoticeError:
		mark = "✗"
	}
	fmt.Fprintf(e.out, "%s %s\n", mark, msg)
}

func (e *terminalEffects) RefreshBalance(ctx context.Context) error {
	bal, err := e.balances.Balance(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "  Wallet balance: %s\n", bal.Balance.StringFixed(2))
	return nil
}

func (e *terminalEffects) Navigate(r lifecycle.Receipt) {
	e.mu.Lock()
	fmt.Fprintln(e.out, "Receipt")
	fmt.Fprintf(e.out, "  Request:  %s\n", r.RequestID)
	fmt.Fprintf(e.out, "  Amount:   %s\n", r.Amount.StringFixed(2))
	if r.Counterparty != "" {
		fmt.Fprintf(e.out, "  From:     %s\n", r.Counterparty)
	}
	if r.Description != "" {
		fmt.Fprintf(e.out, "  For:      %s\n", r.Description)
	}
	e.mu.Unlock()
	e.navOnce.Do(func() { close(e.navigated) })
}

// Disable marks the request so no further action is offered for it.
func (e *terminalEffects) Disable(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled[requestID] = true
}

func (e *terminalEffects) isDisabled(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled[requestID]
}
