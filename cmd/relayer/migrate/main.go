package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/config"
	"github.com/chainsafe/cccp-relayer/pkg/migrations/relayerdb"
	"github.com/chainsafe/cccp-relayer/pkg/pgutil"
	mghelper "github.com/chainsafe/cccp-relayer/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("error creating logger: %s", err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Running migrations for relayer database", zap.String("database", cfg.Database.Database))

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, logger, flag.Args()...); err != nil {
		if errors.Is(err, mghelper.ErrNoCommand) || errors.Is(err, mghelper.ErrUnknownCommand) {
			flag.Usage()
		}
		logger.Fatal("Migration failed", zap.Error(err))
	}
}
