package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/cccp-relayer/pkg/db/dao"
	mghelper "github.com/chainsafe/cccp-relayer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating socket_events table...")
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := mghelper.CreateSchema(ctx, tx, &dao.SocketEventDao{}); err != nil {
				return err
			}
			return mghelper.CreateModelIndexes(ctx, tx, (*dao.SocketEventDao)(nil), "status", "src_chain_id")
		})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping socket_events table...")
		return mghelper.DropTables(ctx, db, &dao.SocketEventDao{})
	})
}
