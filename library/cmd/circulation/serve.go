package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/library/shell/httpapi"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()

				if closeErr := a.close(shutdownCtx); closeErr != nil {
					a.logger.Error("closing resources failed", "error", closeErr.Error())
				}
			}()

			if migrate {
				if err = a.migrate(ctx); err != nil {
					return err
				}
			}

			if err = a.setupLocker(ctx); err != nil {
				return err
			}

			return a.serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address, e.g. :5000")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	options := []httpapi.Option{httpapi.WithRequestLogger(a.logger)}
	if a.metrics != nil {
		options = append(options, httpapi.WithRetryMetrics(a.metrics))
	}

	router, err := httpapi.NewRouter(engine, options...)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("circulation service started", "addr", a.cfg.HTTPAddr, "store", string(a.cfg.Store), "version", version)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("circulation service stopped")

	return nil
}
