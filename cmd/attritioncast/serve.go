package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/attritioncast/internal/api"
	"github.com/rewired-gh/attritioncast/internal/ingest"
	"github.com/rewired-gh/attritioncast/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecasting API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.cfg.GetServerConfig()
			if addr != "" {
				sc.Addr = addr
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			p, err := a.newPipeline(store)
			if err != nil {
				return err
			}
			policy, err := ingest.ParseBadDatePolicy(a.cfg.Ingest.OnBadDate)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: sc.Addr,
				Handler: api.NewServer(p, api.Options{
					DefaultHorizon: a.cfg.Forecast.DefaultHorizon,
					MaxBodyBytes:   int64(sc.MaxBodyMB) << 20,
					OnBadDate:      policy,
					Gatherer:       a.registry,
				}).Routes(),
				ReadTimeout:  sc.ReadTimeout,
				WriteTimeout: sc.WriteTimeout,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Listening on %s (model: %s, storage: %v)", sc.Addr, a.cfg.Forecast.Model, store != nil)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.Info("Shutdown signal received, cleaning up...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
