package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run scrape workers and maintenance without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.close()

			wait, err := a.startWorkers(ctx)
			if err != nil {
				return err
			}
			e.logger.Info("Worker started")
			<-ctx.Done()
			e.logger.Info("Worker draining in-flight jobs")
			wait()
			return nil
		},
	}
}
