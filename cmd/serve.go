package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/handlers"
	"pricewatch/middleware"
	"pricewatch/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		dryRun   bool
		runNow   bool
		noServer bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Check products on a schedule and expose the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger, dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			checker, err := scheduler.NewPriceChecker(a.runner, cfg.Schedule.ScheduleSpec(), logger.Named("checker"))
			if err != nil {
				return err
			}
			checker.Start(runNow)

			var srv *http.Server
			serverErr := make(chan error, 1)
			if !noServer {
				srv = &http.Server{
					Addr:              cfg.API.Addr(),
					Handler:           newRouter(cfg.API, checker, logger),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					logger.Info("status API listening", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						serverErr <- err
					}
				}()
			}

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err = <-serverErr:
				logger.Error("status API failed", zap.Error(err))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if srv != nil {
				if serr := srv.Shutdown(shutdownCtx); serr != nil {
					logger.Warn("status API shutdown", zap.Error(serr))
				}
			}
			if serr := checker.Stop(shutdownCtx); serr != nil {
				logger.Warn("price checker shutdown", zap.Error(serr))
			}

			if err != nil {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log alerts instead of sending them")
	cmd.Flags().BoolVar(&runNow, "run-now", true, "Run a pass immediately on startup")
	cmd.Flags().BoolVar(&noServer, "no-api", false, "Do not start the status API")
	return cmd
}

func newRouter(cfg config.APIConfig, checker handlers.Checker, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger.Named("api")))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimit))

	handlers.NewHandlers(checker, logger.Named("api")).Register(r)

	return middleware.CORSMiddleware(cfg.AllowedOrigins)(r)
}
