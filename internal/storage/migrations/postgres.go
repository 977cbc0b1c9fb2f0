package migrations

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/logging"
	"pair-agent/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Every file uses IF NOT EXISTS so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, db postgres.DB, logger logrus.FieldLogger) error {
	log := logging.Component(logger, "migrations")

	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, m := range files {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		log.WithField("file", m.name).Info("applied postgres migration")
	}
	return nil
}
