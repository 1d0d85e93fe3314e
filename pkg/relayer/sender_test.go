package relayer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

func testTransaction(gas uint64) primitives.BuiltRelayTransaction {
	to := common.HexToAddress("0x01")
	return primitives.NewBuiltRelayTransaction(ethereum.CallMsg{
		To:    &to,
		Gas:   gas,
		Value: big.NewInt(0),
	}, true)
}

func TestQueueSender_SendAndDrain(t *testing.T) {
	sender := NewQueueSender(2, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sender.Send(ctx, 1, testTransaction(21000)))
	require.NoError(t, sender.Send(ctx, 56, testTransaction(42000)))
	sender.Close()

	var got []QueuedTransaction
	for queued := range sender.Transactions() {
		got = append(got, queued)
	}
	require.Len(t, got, 2)
	assert.Equal(t, primitives.ChainID(1), got[0].ChainID)
	assert.Equal(t, primitives.ChainID(56), got[1].ChainID)
}

func TestQueueSender_FullQueueHonoursContext(t *testing.T) {
	sender := NewQueueSender(1, zap.NewNop())
	require.NoError(t, sender.Send(context.Background(), 1, testTransaction(21000)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sender.Send(ctx, 1, testTransaction(21000))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueSender_Closed(t *testing.T) {
	sender := NewQueueSender(1, zap.NewNop())
	sender.Close()
	sender.Close()

	err := sender.Send(context.Background(), 1, testTransaction(21000))
	require.ErrorIs(t, err, ErrSenderClosed)
}
