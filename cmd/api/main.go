package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/catalog-service/pkg/config"
	"github.com/user/catalog-service/pkg/logger"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "api",
		Short:         "Catalog service with scrape job processing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load config: %w", err)
			}
			l, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			e.cfg, e.logger = cfg, l
			l.Info("Logger initialized", zap.String("level", cfg.LogLevel))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newServeCommand(e),
		newWorkerCommand(e),
		newMigrateCommand(e),
	)
	return root
}
