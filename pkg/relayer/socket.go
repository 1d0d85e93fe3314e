package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/internal/metrics"
	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// SocketHandler processes Socket events of every chain and relays each
// forward status change to the chain that acts on it next.
type SocketHandler struct {
	chains   *chainSet
	tracker  *StatusTracker
	roundUps *RoundUpTracker
	sender   Sender
	builder  txBuilder
	logger   *zap.Logger
}

// NewSocketHandler creates a new socket handler
func NewSocketHandler(chains *chainSet, tracker *StatusTracker, roundUps *RoundUpTracker, sender Sender, from common.Address, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		chains:   chains,
		tracker:  tracker,
		roundUps: roundUps,
		sender:   sender,
		builder:  txBuilder{from: from},
		logger:   logger.With(zap.String("component", "socket_handler")),
	}
}

// HandleLog decodes a Socket log emitted on origin. An unknown status code is
// returned as a fatal error.
func (h *SocketHandler) HandleLog(ctx context.Context, origin ChainClient, log types.Log) error {
	msg, err := origin.Contracts().Socket.ParseSocket(log)
	if err != nil {
		return err
	}
	requestHash := common.Hash(msg.RequestHash)
	status, err := primitives.DecodeSocketStatus(msg.Status)
	if err != nil {
		return fmt.Errorf("request %s in tx %s: %w", requestHash.Hex(), log.TxHash.Hex(), err)
	}

	chainName := origin.Metadata().Name()
	metrics.EventsDetected.WithLabelValues(chainName, "socket", status.String()).Inc()

	fields := []zap.Field{
		zap.String("request", requestHash.Hex()),
		zap.String("chain", chainName),
		zap.Stringer("status", status),
		zap.String("sequence", msg.Sequence.String()),
	}
	event := &db.SocketEvent{
		RequestHash: requestHash,
		SrcChainID:  primitives.ChainID(msg.SrcChainId),
		DstChainID:  primitives.ChainID(msg.DstChainId),
		Sequence:    msg.Sequence,
		Status:      status,
		ChainID:     origin.Metadata().ID(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}

	obs, err := h.tracker.Observe(ctx, event, func(ctx context.Context) error {
		return h.relay(ctx, msg, status, fields)
	})
	if err != nil {
		return err
	}
	metrics.StatusObservations.WithLabelValues(obs.String()).Inc()

	switch obs {
	case ObservationDuplicate:
		h.logger.Debug("Duplicate socket event", fields...)
	case ObservationRegression:
		h.logger.Warn("Ignoring socket status regression", fields...)
	}
	return nil
}

func (h *SocketHandler) relay(ctx context.Context, msg *contracts.SocketMessage, status primitives.SocketEventStatus, fields []zap.Field) error {
	target, ok, err := h.route(msg, status)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Info("Socket request finished", fields...)
		return nil
	}

	if status == primitives.Accepted || status == primitives.Rejected {
		if err := h.verifyAuthoritySignatures(ctx, common.Hash(msg.RequestHash), fields); err != nil {
			return err
		}
	}

	socket := target.Contracts().Socket
	data, err := socket.PackPoll(msg, status.Code())
	if err != nil {
		return fmt.Errorf("failed to pack poll: %w", err)
	}
	tx, err := h.builder.build(ctx, target, socket.Address(), data)
	if err != nil {
		return err
	}
	if err := h.sender.Send(ctx, target.Metadata().ID(), tx); err != nil {
		return err
	}

	metrics.RelayTransactionsBuilt.WithLabelValues(target.Metadata().Name(), "poll").Inc()
	metrics.GasLimit.WithLabelValues(target.Metadata().Name()).Observe(float64(tx.TxRequest.Gas))
	h.logger.Info("Poll relay built", append(fields,
		zap.String("target", target.Metadata().Name()),
		zap.Uint64("gas", tx.TxRequest.Gas),
		zap.Bool("is_external", tx.IsExternal))...)
	return nil
}

// route picks the chain that acts on status next. ok is false for terminal
// statuses.
func (h *SocketHandler) route(msg *contracts.SocketMessage, status primitives.SocketEventStatus) (target ChainClient, ok bool, err error) {
	switch status {
	case primitives.Requested, primitives.Executed, primitives.Reverted:
		return h.chains.native, true, nil
	case primitives.Accepted:
		target, err = h.chains.get(primitives.ChainID(msg.DstChainId))
	case primitives.Rejected:
		target, err = h.chains.get(primitives.ChainID(msg.SrcChainId))
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return target, true, nil
}

// verifyAuthoritySignatures checks that the native chain holds at least one
// signature for the request recovering to an authority of its round. No
// signature threshold is checked; the destination contract enforces quorum.
func (h *SocketHandler) verifyAuthoritySignatures(ctx context.Context, requestHash common.Hash, fields []zap.Field) error {
	native := h.chains.native
	round, sigs, err := native.RequestSignatures(ctx, requestHash)
	if err != nil {
		return err
	}
	signers, err := h.authoritiesOf(ctx, round)
	if err != nil {
		return err
	}

	valid := filterSignatures(h.logger, "socket", requestHash, sigs, signers, fields...)
	if len(valid) == 0 {
		return fmt.Errorf("request %s: %w", requestHash.Hex(), ErrNoValidSignatures)
	}
	h.logger.Debug("Request signatures verified", append(fields,
		zap.String("round", round.String()),
		zap.Int("valid", len(valid)),
		zap.Int("collected", len(sigs)))...)
	return nil
}

func (h *SocketHandler) authoritiesOf(ctx context.Context, round *big.Int) ([]common.Address, error) {
	if set, ok := h.roundUps.Current(); ok && set.Round.Cmp(round) == 0 {
		return set.Authorities, nil
	}
	return h.chains.native.Authorities(ctx, round)
}
