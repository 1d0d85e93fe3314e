package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/cccp-relayer/pkg/db/dao"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the relayer store
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) GetChainState(ctx context.Context, chainID primitives.ChainID) (*ChainState, error) {
	row := new(dao.ChainStateDao)
	err := s.db.NewSelect().
		Model(row).
		Where("chain_id = ?", int64(chainID)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChainStateNotFound
		}
		return nil, fmt.Errorf("failed to get chain state: %w", err)
	}
	return &ChainState{
		ChainID:   primitives.ChainID(row.ChainID),
		SafeBlock: uint64(row.SafeBlock),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *pgStore) SetChainState(ctx context.Context, chainID primitives.ChainID, safeBlock uint64) error {
	row := &dao.ChainStateDao{
		ChainID:   int64(chainID),
		SafeBlock: int64(safeBlock),
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (chain_id) DO UPDATE").
		Set("safe_block = GREATEST(chain_state.safe_block, EXCLUDED.safe_block)").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set chain state: %w", err)
	}
	return nil
}

func (s *pgStore) SaveRoundUp(ctx context.Context, event *RoundUpEvent) error {
	row := toRoundUpDao(event)
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (round) DO UPDATE").
		Set("delivered = CASE WHEN EXCLUDED.status > roundup_events.status THEN FALSE ELSE roundup_events.delivered END").
		Set("delivered_at = CASE WHEN EXCLUDED.status > roundup_events.status THEN NULL ELSE roundup_events.delivered_at END").
		Set("status = GREATEST(roundup_events.status, EXCLUDED.status)").
		Set("authorities = EXCLUDED.authorities").
		Set("chain_id = EXCLUDED.chain_id").
		Set("block_number = GREATEST(roundup_events.block_number, EXCLUDED.block_number)").
		Set("tx_hash = CASE WHEN EXCLUDED.status > roundup_events.status THEN EXCLUDED.tx_hash ELSE roundup_events.tx_hash END").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save round up %s: %w", event.Round, err)
	}
	return nil
}

func (s *pgStore) ListUndeliveredRoundUps(ctx context.Context) ([]*RoundUpEvent, error) {
	var rows []dao.RoundUpEventDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("delivered = FALSE").
		Order("round ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered round ups: %w", err)
	}

	events := make([]*RoundUpEvent, 0, len(rows))
	for i := range rows {
		event, err := fromRoundUpDao(&rows[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *pgStore) MarkRoundUpDelivered(ctx context.Context, round *big.Int) error {
	_, err := s.db.NewUpdate().
		Model((*dao.RoundUpEventDao)(nil)).
		Set("delivered = TRUE").
		Set("delivered_at = ?", time.Now()).
		Where("round = ?", round.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark round up %s delivered: %w", round, err)
	}
	return nil
}

func (s *pgStore) GetSocketEvent(ctx context.Context, requestHash common.Hash) (*SocketEvent, error) {
	row := new(dao.SocketEventDao)
	err := s.db.NewSelect().
		Model(row).
		Where("request_hash = ?", requestHash.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSocketEventNotFound
		}
		return nil, fmt.Errorf("failed to get socket event: %w", err)
	}
	return fromSocketDao(row)
}

// lifecycleGuard lets an upsert through only when the incoming status can
// follow the stored one in the request lifecycle.
var lifecycleGuard = func() string {
	var pairs []string
	for from := primitives.Requested; from <= primitives.Rollbacked; from++ {
		for to := primitives.Requested; to <= primitives.Rollbacked; to++ {
			if from.Reaches(to) {
				pairs = append(pairs, fmt.Sprintf("(%d, %d)", from.Code(), to.Code()))
			}
		}
	}
	return "(socket_events.status, EXCLUDED.status) IN (" + strings.Join(pairs, ", ") + ")"
}()

func (s *pgStore) UpsertSocketEvent(ctx context.Context, event *SocketEvent) (bool, error) {
	row := toSocketDao(event)
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (request_hash) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("chain_id = EXCLUDED.chain_id").
		Set("block_number = EXCLUDED.block_number").
		Set("tx_hash = EXCLUDED.tx_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Where(lifecycleGuard).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to upsert socket event %s: %w", event.RequestHash.Hex(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func toRoundUpDao(event *RoundUpEvent) *dao.RoundUpEventDao {
	authorities := make([]string, len(event.Authorities))
	for i, a := range event.Authorities {
		authorities[i] = a.Hex()
	}
	return &dao.RoundUpEventDao{
		Round:       event.Round.String(),
		Status:      int16(event.Status.Code()),
		Authorities: authorities,
		ChainID:     int64(event.ChainID),
		BlockNumber: int64(event.BlockNumber),
		TxHash:      event.TxHash.Hex(),
		Delivered:   event.Delivered,
		CreatedAt:   time.Now(),
	}
}

func fromRoundUpDao(row *dao.RoundUpEventDao) (*RoundUpEvent, error) {
	round, ok := new(big.Int).SetString(row.Round, 10)
	if !ok {
		return nil, fmt.Errorf("invalid round %q", row.Round)
	}
	status, err := primitives.DecodeRoundUpStatus(uint8(row.Status))
	if err != nil {
		return nil, fmt.Errorf("round %s: %w", row.Round, err)
	}
	authorities := make([]common.Address, len(row.Authorities))
	for i, a := range row.Authorities {
		authorities[i] = common.HexToAddress(a)
	}
	return &RoundUpEvent{
		Round:       round,
		Status:      status,
		Authorities: authorities,
		ChainID:     primitives.ChainID(row.ChainID),
		BlockNumber: uint64(row.BlockNumber),
		TxHash:      common.HexToHash(row.TxHash),
		Delivered:   row.Delivered,
	}, nil
}

func toSocketDao(event *SocketEvent) *dao.SocketEventDao {
	sequence := "0"
	if event.Sequence != nil {
		sequence = event.Sequence.String()
	}
	return &dao.SocketEventDao{
		RequestHash: event.RequestHash.Hex(),
		SrcChainID:  int64(event.SrcChainID),
		DstChainID:  int64(event.DstChainID),
		Sequence:    sequence,
		Status:      int16(event.Status.Code()),
		ChainID:     int64(event.ChainID),
		BlockNumber: int64(event.BlockNumber),
		TxHash:      event.TxHash.Hex(),
		UpdatedAt:   time.Now(),
	}
}

func fromSocketDao(row *dao.SocketEventDao) (*SocketEvent, error) {
	sequence, ok := new(big.Int).SetString(row.Sequence, 10)
	if !ok {
		return nil, fmt.Errorf("invalid sequence %q", row.Sequence)
	}
	status, err := primitives.DecodeSocketStatus(uint8(row.Status))
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", row.RequestHash, err)
	}
	return &SocketEvent{
		RequestHash: common.HexToHash(row.RequestHash),
		SrcChainID:  primitives.ChainID(row.SrcChainID),
		DstChainID:  primitives.ChainID(row.DstChainID),
		Sequence:    sequence,
		Status:      status,
		ChainID:     primitives.ChainID(row.ChainID),
		BlockNumber: uint64(row.BlockNumber),
		TxHash:      common.HexToHash(row.TxHash),
	}, nil
}
