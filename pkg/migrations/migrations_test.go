package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/migrations/relayerdb"
	mghelper "github.com/chainsafe/cccp-relayer/pkg/pgutil"
	"github.com/chainsafe/cccp-relayer/pkg/pgutil/migrations"
)

func TestRelayerDBMigrations_Apply(t *testing.T) {
	mghelper.RequireDockerAccess(t)
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	for _, table := range []string{"chain_state", "roundup_events", "socket_events", "bun_migrations"} {
		mghelper.AssertTableExists(t, db, table)
	}

	mghelper.AssertIndexExists(t, db, "idx_roundup_events_delivered")
	mghelper.AssertIndexExists(t, db, "idx_socket_events_status")
	mghelper.AssertIndexExists(t, db, "idx_socket_events_src_chain_id")
}

func TestMigrations_Idempotency(t *testing.T) {
	mghelper.RequireDockerAccess(t)
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Second run has nothing left to apply
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}
	mghelper.AssertTableExists(t, db, "socket_events")
}

func TestMigrations_Rollback(t *testing.T) {
	mghelper.RequireDockerAccess(t)
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// All migrations run in one group, so a rollback drops every table
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	mghelper.AssertTableNotExists(t, db, "socket_events")
	mghelper.AssertTableNotExists(t, db, "roundup_events")
	mghelper.AssertTableNotExists(t, db, "chain_state")
}

func TestRunMigrations_ApplyAndRollback(t *testing.T) {
	mghelper.RequireDockerAccess(t)
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	logger := zap.NewNop()

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	require.NoError(t, migrations.RunMigrations(ctx, migrator, logger, "init"))
	require.NoError(t, migrations.RunMigrations(ctx, migrator, logger, "up"))
	require.NoError(t, migrations.RunMigrations(ctx, migrator, logger, "status"))
	mghelper.AssertTableExists(t, db, "socket_events")

	// up again is a no-op and releases the lock
	require.NoError(t, migrations.RunMigrations(ctx, migrator, logger, "up"))

	require.NoError(t, migrations.RunMigrations(ctx, migrator, logger, "down"))
	mghelper.AssertTableNotExists(t, db, "socket_events")

	require.ErrorIs(t, migrations.RunMigrations(ctx, migrator, logger), migrations.ErrNoCommand)
}
