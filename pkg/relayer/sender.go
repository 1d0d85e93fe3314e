package relayer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/internal/metrics"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("sender closed")

// QueuedTransaction is a relay transaction addressed to a chain.
type QueuedTransaction struct {
	ChainID primitives.ChainID
	Tx      primitives.BuiltRelayTransaction
}

// QueueSender hands relay transactions to the broadcaster over a bounded
// queue. Send blocks while the queue is full.
type QueueSender struct {
	queue  chan QueuedTransaction
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQueueSender creates a sender with room for size pending transactions.
func NewQueueSender(size int, logger *zap.Logger) *QueueSender {
	return &QueueSender{
		queue:  make(chan QueuedTransaction, size),
		logger: logger,
	}
}

// Send enqueues tx for chainID.
func (q *QueueSender) Send(ctx context.Context, chainID primitives.ChainID, tx primitives.BuiltRelayTransaction) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrSenderClosed
	}

	select {
	case q.queue <- QueuedTransaction{ChainID: chainID, Tx: tx}:
		metrics.QueueDepth.Set(float64(len(q.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transactions is drained by the broadcaster. It is closed by Close.
func (q *QueueSender) Transactions() <-chan QueuedTransaction { return q.queue }

// Close stops accepting transactions and closes the queue.
func (q *QueueSender) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.queue)
	q.logger.Info("Relay queue closed", zap.Int("pending", len(q.queue)))
}
