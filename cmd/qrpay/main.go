package main

import (
	"fmt"
	"os"
	"time"

	"github.com/punchamoorthee/qrpay/internal/apiclient"
	"github.com/punchamoorthee/qrpay/internal/config"
	"github.com/punchamoorthee/qrpay/internal/lifecycle"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.ClientConfig
	client *apiclient.Client

	pollInterval    time.Duration
	navigationDelay time.Duration
	// interrupts receives Ctrl-C while a session is tracked.
	interrupts chan os.Signal
}

func newApp() *app {
	return &app{
		pollInterval:    lifecycle.DefaultPollInterval,
		navigationDelay: lifecycle.DefaultNavigationDelay,
		interrupts:      make(chan os.Signal, 1),
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandFor(newApp())
}

func newRootCommandFor(a *app) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "qrpay",
		Short:         "Request and settle payments by scannable code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.LogLevel == "" {
				cfg.LogLevel = "warn"
			}
			log.Reset(log.Config{Level: cfg.LogLevel, Output: cmd.ErrOrStderr(), Service: "qrpay-cli"})

			a.cfg = cfg
			a.client = apiclient.New(apiclient.Config{
				BaseURL:   cfg.APIURL,
				AccountID: cfg.AccountID,
				Timeout:   cfg.Timeout,
			})
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newRequestCommand(a),
		newWatchCommand(a),
		newStatusCommand(a),
		newCancelCommand(a),
		newActionCommand(a, "approve", "Pay a pending payment request"),
		newActionCommand(a, "decline", "Decline a pending payment request"),
		newBalanceCommand(a),
	)
	return cmd
}

// requireAccount fails early for commands that act on behalf of an account.
func (a *app) requireAccount() error {
	if a.cfg.AccountID == 0 {
		return fmt.Errorf("QRPAY_ACCOUNT_ID is required for this command")
	}
	return nil
}
