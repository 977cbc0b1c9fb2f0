package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.Storage.UseMemory {
				return errors.New("migrate needs a database: set --use-memory=false and --postgres-dsn")
			}
			st, err := openStores(cmd.Context(), e.cfg, e.log, true)
			if err != nil {
				return err
			}
			st.Close()
			e.log.Info("migrations applied")
			return nil
		},
	}
}
