package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	logdomain "github.com/smallbiznis/posbridge/internal/logsink/domain"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&profiledomain.Profile{},
		&posdomain.Customer{},
		&transferdomain.Transfer{},
		&posdomain.Operation{},
		&billingdomain.Event{},
		&billingdomain.Tariffs{},
		&billingdomain.Period{},
		&logdomain.LogEntry{},
		&appuserdomain.AppUser{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. sqlite and mysql
// deployments use it instead of the SQL files.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
