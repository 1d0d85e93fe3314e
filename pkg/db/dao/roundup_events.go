package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// RoundUpEventDao maps to the 'roundup_events' table. One row per round.
type RoundUpEventDao struct {
	bun.BaseModel `bun:"table:roundup_events"`
	Round         string     `json:"round" bun:",pk,type:numeric(78,0)"`
	Status        int16      `json:"status" bun:",notnull"`
	Authorities   []string   `json:"authorities" bun:",array,notnull,type:varchar(42)[]"`
	ChainID       int64      `json:"chain_id" bun:",notnull"`
	BlockNumber   int64      `json:"block_number" bun:",notnull"`
	TxHash        string     `json:"tx_hash" bun:",notnull,type:varchar(66)"`
	Delivered     bool       `json:"delivered" bun:",notnull,use_zero,default:false"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" bun:"delivered_at"`
	CreatedAt     time.Time  `json:"created_at" bun:",notnull,nullzero,default:current_timestamp"`
}
