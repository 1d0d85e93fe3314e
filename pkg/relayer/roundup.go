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

// RoundUpHandler processes authority rotations of the native chain and relays
// committed authority sets to every external chain.
type RoundUpHandler struct {
	chains  *chainSet
	tracker *RoundUpTracker
	store   db.RoundUpStore
	sender  Sender
	builder txBuilder
	logger  *zap.Logger
}

// NewRoundUpHandler creates a new round-up handler
func NewRoundUpHandler(chains *chainSet, tracker *RoundUpTracker, store db.RoundUpStore, sender Sender, from common.Address, logger *zap.Logger) *RoundUpHandler {
	return &RoundUpHandler{
		chains:  chains,
		tracker: tracker,
		store:   store,
		sender:  sender,
		builder: txBuilder{from: from},
		logger:  logger.With(zap.String("component", "roundup_handler")),
	}
}

// HandleLog decodes a RoundUp log of the native authority contract. An
// unknown status code is returned as a fatal error. A log whose delivery
// failed earlier is delivered again when it is replayed.
func (h *RoundUpHandler) HandleLog(ctx context.Context, log types.Log) error {
	native := h.chains.native
	ev, err := native.Contracts().Authority.ParseRoundUp(log)
	if err != nil {
		return err
	}
	status, err := primitives.DecodeRoundUpStatus(ev.Status)
	if err != nil {
		return fmt.Errorf("round %s in tx %s: %w", ev.Round, log.TxHash.Hex(), err)
	}

	metrics.EventsDetected.WithLabelValues(native.Metadata().Name(), "roundup", status.String()).Inc()

	fresh := h.tracker.Observe(ev.Round, status, ev.NewAuthorities)
	if !fresh && !h.tracker.Pending(ev.Round, status) {
		h.logger.Debug("Round up already observed",
			zap.String("round", ev.Round.String()),
			zap.Stringer("status", status))
		return nil
	}

	event := &db.RoundUpEvent{
		Round:       ev.Round,
		Status:      status,
		Authorities: ev.NewAuthorities,
		ChainID:     native.Metadata().ID(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}
	if err := h.store.SaveRoundUp(ctx, event); err != nil {
		return err
	}

	h.logger.Info("Round up observed",
		zap.String("round", ev.Round.String()),
		zap.Stringer("status", status),
		zap.Int("authorities", len(ev.NewAuthorities)),
		zap.Uint64("block", log.BlockNumber))

	return h.Deliver(ctx, event)
}

// Deliver relays a stored rotation downstream and marks it delivered. Only
// committed rotations produce transactions.
func (h *RoundUpHandler) Deliver(ctx context.Context, event *db.RoundUpEvent) error {
	if event.Status == primitives.NextAuthorityCommitted {
		if err := h.relay(ctx, event); err != nil {
			return err
		}
	}
	if err := h.store.MarkRoundUpDelivered(ctx, event.Round); err != nil {
		return err
	}
	h.tracker.MarkDelivered(event.Round)
	return nil
}

func (h *RoundUpHandler) relay(ctx context.Context, event *db.RoundUpEvent) error {
	native := h.chains.native

	sigs, err := native.RoundSignatures(ctx, event.Round)
	if err != nil {
		return err
	}
	hash, err := contracts.RoundUpHash(event.Round, event.Authorities)
	if err != nil {
		return err
	}

	var signers []common.Address
	if event.Round.Sign() > 0 {
		signers, err = native.Authorities(ctx, new(big.Int).Sub(event.Round, big.NewInt(1)))
		if err != nil {
			return err
		}
	}

	valid := filterSignatures(h.logger, "roundup", hash, sigs, signers, zap.String("round", event.Round.String()))
	if len(valid) == 0 {
		return fmt.Errorf("round %s: %w", event.Round, ErrNoValidSignatures)
	}
	r, s, v := placeSignatures(len(sigs), valid)

	for _, target := range h.chains.external() {
		authority := target.Contracts().Authority
		data, err := authority.PackRoundControlRelay(event.Round, event.Authorities, r, s, v)
		if err != nil {
			return fmt.Errorf("failed to pack round control relay: %w", err)
		}
		tx, err := h.builder.build(ctx, target, authority.Address(), data)
		if err != nil {
			return err
		}
		if err := h.sender.Send(ctx, target.Metadata().ID(), tx); err != nil {
			return err
		}
		metrics.RelayTransactionsBuilt.WithLabelValues(target.Metadata().Name(), "roundControlRelay").Inc()
		metrics.GasLimit.WithLabelValues(target.Metadata().Name()).Observe(float64(tx.TxRequest.Gas))

		h.logger.Info("Round control relay built",
			zap.String("round", event.Round.String()),
			zap.String("target", target.Metadata().Name()),
			zap.Uint64("gas", tx.TxRequest.Gas),
			zap.Int("signatures", len(valid)))
	}
	return nil
}

// filterSignatures recovers sigs over hash and keeps one signature per
// address in signers. An empty signer set accepts every recoverable signature.
func filterSignatures(
	logger *zap.Logger,
	kind string,
	hash common.Hash,
	sigs []primitives.Signature,
	signers []common.Address,
	fields ...zap.Field,
) []primitives.RecoveredSignature {
	recovered, failures := primitives.RecoverSignatures(hash, sigs)
	for _, f := range failures {
		metrics.SignatureFailures.WithLabelValues(kind, "unrecoverable").Inc()
		logger.Warn("Dropping unrecoverable signature",
			append(fields, zap.Int("idx", f.Idx), zap.Error(f.Err))...)
	}
	if len(signers) == 0 {
		return recovered
	}

	allowed := make(map[common.Address]struct{}, len(signers))
	for _, a := range signers {
		allowed[a] = struct{}{}
	}
	valid := recovered[:0:0]
	seen := make(map[common.Address]struct{}, len(recovered))
	for _, rs := range recovered {
		if _, ok := allowed[rs.Signer]; !ok {
			metrics.SignatureFailures.WithLabelValues(kind, "not_authority").Inc()
			logger.Warn("Dropping signature from non-authority",
				append(fields, zap.Int("idx", rs.Idx), zap.String("signer", rs.Signer.Hex()))...)
			continue
		}
		if _, dup := seen[rs.Signer]; dup {
			metrics.SignatureFailures.WithLabelValues(kind, "duplicate").Inc()
			continue
		}
		seen[rs.Signer] = struct{}{}
		valid = append(valid, rs)
	}
	return valid
}

// placeSignatures lays sigs out in arrays of the original batch size. Each
// signature keeps its batch position, which maps to an authority slot on
// chain; dropped entries are left zeroed.
func placeSignatures(size int, sigs []primitives.RecoveredSignature) (r, s [][32]byte, v []byte) {
	r = make([][32]byte, size)
	s = make([][32]byte, size)
	v = make([]byte, size)
	for _, rs := range sigs {
		if rs.Idx < 0 || rs.Idx >= size {
			continue
		}
		r[rs.Idx] = rs.Signature.R
		s[rs.Idx] = rs.Signature.S
		v[rs.Idx] = rs.Signature.V
	}
	return r, s, v
}
