package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the current status of a payment request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(out io.Writer, st *domain.StatusResponse) {
	fmt.Fprintf(out, "%s  %s  %s\n", st.RequestID, st.Status, st.Amount.StringFixed(2))
	if st.ReceiverName != "" {
		fmt.Fprintf(out, "  To:       %s\n", st.ReceiverName)
	}
	if st.SenderName != "" {
		fmt.Fprintf(out, "  From:     %s\n", st.SenderName)
	}
	if st.Description != "" {
		fmt.Fprintf(out, "  For:      %s\n", st.Description)
	}
	if !st.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "  Expires:  %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func newCancelCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel one of your pending payment requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !yes && !prompt(bufio.NewReader(cmd.InOrStdin()), out, fmt.Sprintf("Cancel payment request %s?", args[0])) {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
			if err := a.client.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(out, "Payment request cancelled")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// newActionCommand builds approve and decline, the paying side of a request.
func newActionCommand(a *app, use, short string) *cobra.Command {
	action := domain.ActionReject
	if use == "approve" {
		action = domain.ActionAccept
	}
	var yes bool

	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if action == domain.ActionAccept {
				preview, err := a.client.Confirmation(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pay %s to %s", preview.Amount.StringFixed(2), preview.ReceiverName)
				if preview.Description != "" {
					fmt.Fprintf(out, " for %q", preview.Description)
				}
				fmt.Fprintf(out, "\n  Balance after: %s\n", preview.BalanceAfter.StringFixed(2))
				if !yes && !prompt(bufio.NewReader(cmd.InOrStdin()), out, "Confirm payment?") {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			resp, err := a.client.Act(ctx, args[0], action)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, resp.Message)
			if !resp.NewBalance.IsZero() {
				fmt.Fprintf(out, "  Wallet balance: %s\n", resp.NewBalance.StringFixed(2))
			}
			return nil
		},
	}
	if action == domain.ActionAccept {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	}
	return cmd
}

func newBalanceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show your wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			bal, err := a.client.Balance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %d: %s\n", bal.AccountID, bal.Balance.StringFixed(2))
			return nil
		},
	}
}
