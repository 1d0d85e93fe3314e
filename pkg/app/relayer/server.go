// Package relayer implements app.Runner for the relayer process.
package relayer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	apphttp "github.com/chainsafe/cccp-relayer/pkg/app/http"
	"github.com/chainsafe/cccp-relayer/pkg/config"
	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/ethereum"
	"github.com/chainsafe/cccp-relayer/pkg/pgutil"
	"github.com/chainsafe/cccp-relayer/pkg/relayer"
)

// Server holds configuration for the relayer process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new relayer Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the relayer engine and the operational HTTP server.
// It blocks until an OS shutdown signal is received, the engine reports a
// fatal error, or the HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting CCCP relayer", zap.Int("chains", len(cfg.Chains)))

	bunDB, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect relayer db: %w", err)
	}
	defer func() { _ = bunDB.Close() }()
	store := db.NewStore(bunDB)

	registry, err := ethereum.NewRegistry(ctx, cfg.Chains, logger)
	if err != nil {
		return fmt.Errorf("initialize chain providers: %w", err)
	}
	defer registry.Close()

	providers := registry.Providers()
	clients := make([]relayer.ChainClient, 0, len(providers))
	for _, p := range providers {
		clients = append(clients, p)
	}

	sender := relayer.NewQueueSender(cfg.Relayer.QueueSize, logger)
	defer sender.Close()
	go drain(sender, logger)

	engine, err := relayer.NewEngine(cfg, clients, store, sender, logger)
	if err != nil {
		return fmt.Errorf("create relayer engine: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start relayer engine: %w", err)
	}
	defer engine.Stop()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, 1)
	go func() {
		select {
		case err := <-engine.Err():
			fatal <- err
			cancel()
		case <-serveCtx.Done():
		}
	}()

	router := newRouter(engine, store, cfg.Monitoring.Enabled, logger)
	if err := apphttp.ServeAndWait(serveCtx, router, logger, &cfg.Server); err != nil {
		return err
	}

	select {
	case err := <-fatal:
		return fmt.Errorf("relayer engine: %w", err)
	default:
		return nil
	}
}

// drain logs the relay transactions handed over by the engine until the
// queue is closed. Signing and broadcasting happen outside this process.
func drain(sender *relayer.QueueSender, logger *zap.Logger) {
	for queued := range sender.Transactions() {
		req := queued.Tx.TxRequest
		fields := []zap.Field{
			zap.Uint32("chain_id", uint32(queued.ChainID)),
			zap.Uint64("gas", req.Gas),
			zap.Bool("external", queued.Tx.IsExternal),
		}
		if req.To != nil {
			fields = append(fields, zap.String("to", req.To.Hex()))
		}
		logger.Info("Relay transaction ready", fields...)
	}
}
