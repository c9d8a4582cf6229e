package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/lifecycle"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRequestCommand(a *app) *cobra.Command {
	var (
		amount      string
		description string
		expires     int
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Create a payment request and wait until it is settled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			amt, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}

			t := newTracker(a, cmd)
			defer t.close()

			handle, resp, err := t.ctl.Create(cmd.Context(), domain.CreateRequest{
				Amount:           amt,
				Description:      description,
				ExpiresInMinutes: expires,
			})
			if err != nil {
				return err
			}

			out := t.out
			fmt.Fprintf(out, "Payment request %s for %s\n", resp.RequestID, amt.StringFixed(2))
			if url := resp.CodeURL(); url != "" {
				fmt.Fprintf(out, "  QR code:  %s\n", url)
			}
			if resp.PaymentURL != "" {
				fmt.Fprintf(out, "  Pay at:   %s\n", resp.PaymentURL)
			}
			if !resp.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "  Expires:  %s\n", resp.ExpiresAt.Local().Format("15:04:05"))
			}
			return t.wait(cmd.Context(), handle)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount to request, e.g. 25.00")
	cmd.Flags().StringVar(&description, "description", "", "what the payment is for")
	cmd.Flags().IntVar(&expires, "expires", 60, "server-side expiry in minutes")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <request-id>",
		Short: "Resume tracking a pending payment request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			t := newTracker(a, cmd)
			defer t.close()

			handle, err := t.ctl.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(t.out, "Watching payment request %s\n", handle.RequestID)
			return t.wait(cmd.Context(), handle)
		},
	}
}

// tracker binds the lifecycle controller to the terminal.
type tracker struct {
	ctl        *lifecycle.Controller
	dispatcher *lifecycle.EffectDispatcher
	effects    *terminalEffects
	interrupts chan os.Signal
	in         *bufio.Reader
	out        io.Writer
}

func newTracker(a *app, cmd *cobra.Command) *tracker {
	// Effects fire from the controller's goroutines while the command prints.
	out := &lockedWriter{w: cmd.OutOrStdout()}
	effects := newTerminalEffects(out, a.client)
	d := lifecycle.NewEffectDispatcher(nil)
	d.SetNavigationDelay(a.navigationDelay)
	d.Balance = effects
	d.Navigator = effects
	d.Notifier = effects
	d.Affordances = effects

	return &tracker{
		ctl:        lifecycle.NewController(a.client, d, lifecycle.WithPollInterval(a.pollInterval)),
		dispatcher: d,
		effects:    effects,
		interrupts: a.interrupts,
		in:         bufio.NewReader(cmd.InOrStdin()),
		out:        out,
	}
}

func (t *tracker) close() {
	t.ctl.Close()
	t.dispatcher.Wait()
}

// wait blocks until the session resolves. Ctrl-C offers to cancel the
// request; a refused or failed cancel keeps waiting.
func (t *tracker) wait(ctx context.Context, h lifecycle.SessionHandle) error {
	signal.Notify(t.interrupts, os.Interrupt)
	defer signal.Stop(t.interrupts)

	fmt.Fprintln(t.out, "Waiting for payment (Ctrl-C to cancel)...")
	for {
		select {
		case <-h.Done():
			return t.finish(ctx, h)
		case <-t.interrupts:
			if t.effects.isDisabled(h.RequestID) {
				continue
			}
			err := t.ctl.Cancel(ctx, h.ID, t.confirm)
			switch {
			case err == nil:
			case errors.Is(err, lifecycle.ErrCancelNotConfirmed):
				fmt.Fprintln(t.out, "Still waiting for payment...")
			case errors.Is(err, lifecycle.ErrNotPending), errors.Is(err, lifecycle.ErrNoSession):
			default:
				fmt.Fprintf(t.out, "Could not cancel: %v\n", err)
			}
		case <-ctx.Done():
			t.ctl.Teardown(h.ID)
			return ctx.Err()
		}
	}
}

func (t *tracker) finish(ctx context.Context, h lifecycle.SessionHandle) error {
	out, ok := h.Outcome()
	if !ok {
		return errors.New("tracking stopped before the request was resolved")
	}
	switch out.Status {
	case domain.StatusCompleted:
		// Let the delayed navigation print the receipt.
		select {
		case <-t.effects.navigated:
		case <-ctx.Done():
		}
		return nil
	case domain.StatusCancelled:
		return nil
	default:
		return fmt.Errorf("payment request %s", out.Status)
	}
}

func (t *tracker) confirm(_ context.Context, req domain.PaymentRequest) bool {
	return prompt(t.in, t.out, fmt.Sprintf("Cancel payment request %s for %s?", req.RequestID, req.Amount.StringFixed(2)))
}

func prompt(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "\n%s [y/N] ", question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
