package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/db"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// loadConfig loads configuration, honoring the root --config flag when
// the caller passed one instead of relying on the discovery cascade.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load config from %s", path)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// openDatabase opens the status database and applies any pending
// migrations. Uses logger.Logger for db operations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

// openDatabaseReadOnly opens the status database without migrations or
// write access, so observers never contend with a running pipeline.
func openDatabaseReadOnly(cfg *config.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenReadOnly(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}
