package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/qrpay/internal/api"
	"github.com/punchamoorthee/qrpay/internal/config"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/punchamoorthee/qrpay/internal/service"
	"github.com/punchamoorthee/qrpay/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := log.Base()
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Reset(log.Config{Level: cfg.LogLevel, Service: "qrpay-api"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// Initialize layers
	payments := service.NewPaymentRequestService(st, cfg.PublicBaseURL)
	handler := api.NewHandler(st, payments)

	srv := newServer(cfg.Port, api.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.Env).
			Str("public_base_url", cfg.PublicBaseURL).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
