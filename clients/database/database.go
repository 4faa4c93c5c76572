package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies any of the provided migrations not yet recorded
// against the monitor service's database, rolling back the group on
// failure so the run can be re-attempted, and returns the status of
// every known migration
func Migrate(ctx context.Context, db *bun.DB, migrations migrate.Migrations) (*migrate.MigrationSlice, error) {
	migrator := migrate.NewMigrator(db, &migrations)

	// create the bookkeeping tables that record applied migrations
	err := migrator.Init(ctx)

	if err != nil {
		return &migrate.MigrationSlice{}, err
	}

	group, err := migrator.Migrate(ctx)

	if err != nil {
		group, rollbackErr := migrator.Rollback(ctx)

		if rollbackErr != nil {
			return &migrate.MigrationSlice{}, fmt.Errorf("error %s rolling back after original error %s", rollbackErr, err)
		}

		if group.ID == 0 {
			return &migrate.MigrationSlice{}, fmt.Errorf("no groups to rollback after migration error %s", err)
		}

		return &migrate.MigrationSlice{}, fmt.Errorf("rolled back after migration error %s", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)

	if err != nil {
		return &migrate.MigrationSlice{}, err
	}

	if group.ID == 0 {
		fmt.Printf("there are no new migrations to run\n")
	}

	return &ms, nil
}
