package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/delivery/http/router"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scrape workers and maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), e, !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the API only and leave jobs to separate worker processes")
	return cmd
}

func runServe(ctx context.Context, e *env, withWorkers bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.close()

	workersCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	waitWorkers := func() {}
	if withWorkers {
		if waitWorkers, err = a.startWorkers(workersCtx); err != nil {
			return err
		}
	}

	apiHandler := handler.NewHandler(a.services(), a.healthChecks(), e.logger)
	server := &http.Server{
		Addr:         ":" + e.cfg.ServerPort,
		Handler:      router.New(apiHandler, e.logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.logger.Info("Starting server", zap.String("port", e.cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			e.logger.Error("Could not listen on port", zap.String("port", e.cfg.ServerPort), zap.Error(err))
			cancelWorkers()
			waitWorkers()
			return err
		}
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let detached refresh triggers finish their enqueue before the queue stops.
	a.trigger.Close()
	cancelWorkers()
	waitWorkers()
	e.logger.Info("Server exiting")
	return nil
}
