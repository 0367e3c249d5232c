package main

import (
	"github.com/spf13/cobra"

	"github.com/user/catalog-service/internal/adapter/postgres"
)

func newMigrateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.Connect(cmd.Context(), e.cfg.PostgresDSN())
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.MigrateUp(db.DB, e.logger)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.Connect(cmd.Context(), e.cfg.PostgresDSN())
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.MigrateDown(db.DB, steps, e.logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
