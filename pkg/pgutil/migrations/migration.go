// Package migrations holds the helpers shared by the relayer database
// migrations and the migrate command.
package migrations

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	// ErrNoCommand is returned when the migrate command is run without arguments.
	ErrNoCommand = errors.New("no migration command provided")
	// ErrUnknownCommand is returned for a command other than init, up, down or status.
	ErrUnknownCommand = errors.New("unknown migration command")
)

const usageText = `Usage:
  relayer-migrate [-config config.yaml] <command>

Commands:
  init     create the bun migration tables
  up       apply every pending migration under the migration lock
  down     roll back the last migration group
  status   print applied and pending migrations

`

// Usage prints the migrate command usage followed by its flags.
func Usage() {
	fmt.Fprint(flag.CommandLine.Output(), usageText)
	flag.PrintDefaults()
}

// CreateSchema creates the table of every model unless it already exists.
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropTables drops the table of every model, cascading to dependents.
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", model, err)
		}
	}
	return nil
}

// TruncateTables removes all rows from the tables of the given models.
func TruncateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewTruncateTable().Model(model).Exec(ctx); err != nil {
			return fmt.Errorf("failed to truncate table for %T: %w", model, err)
		}
	}
	return nil
}

// CreateModelIndexes creates one idx_<table>_<column> index per column on
// the table of model.
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		indexName, err := modelIndexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().Model(model).Index(indexName).Column(column).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", indexName, err)
		}
	}
	return nil
}

func modelIndexName(db bun.IDB, model any, column string) (string, error) {
	if model == nil {
		return "", errors.New("model cannot be nil")
	}
	tableName := db.NewCreateIndex().Model(model).GetTableName()
	if tableName == "" {
		return "", fmt.Errorf("failed to resolve table name for model %T", model)
	}

	indexTableName := strings.NewReplacer(`"`, "", ".", "_").Replace(tableName)
	return fmt.Sprintf("idx_%s_%s", indexTableName, column), nil
}

// RunMigrations runs the migration command named by args[0].
func RunMigrations(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger, args ...string) error {
	if len(args) == 0 {
		return ErrNoCommand
	}

	switch args[0] {
	case "init":
		if err := migrator.Init(ctx); err != nil {
			return err
		}
		logger.Info("Migration tables created")
		return nil

	case "up":
		return withLock(ctx, migrator, logger, func() error {
			group, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				logger.Info("Database is up to date")
				return nil
			}
			logger.Info("Migrated", zap.Stringer("group", group))
			return nil
		})

	case "down":
		return withLock(ctx, migrator, logger, func() error {
			group, err := migrator.Rollback(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				logger.Info("No migrations to roll back")
				return nil
			}
			logger.Info("Rolled back", zap.Stringer("group", group))
			return nil
		})

	case "status":
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		logger.Info("Migration status",
			zap.Stringer("migrations", ms),
			zap.Stringer("unapplied", ms.Unapplied()),
			zap.Stringer("last_group", ms.LastGroup()))
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
}

func withLock(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger, run func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}()
	return run()
}
