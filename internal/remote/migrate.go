package remote

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp creates the dashboard collections on the server at dsn. It is
// safe to run repeatedly.
func MigrateUp(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "open migrations connection", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn("Remote migrations close failed", map[string]interface{}{"cause": cerr.Error()})
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnreachable, "ping migrations database", err)
	}

	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "initialise pgx v5 driver", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "open embedded migrations", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "initialise migrate instance", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Info("Remote schema up-to-date")
			return nil
		}
		return apperrors.Wrap(apperrors.ErrMigration, "apply remote migrations", err)
	}

	version, _, _ := m.Version()
	logging.Info("Remote schema migrated", map[string]interface{}{"version": version})
	return nil
}
