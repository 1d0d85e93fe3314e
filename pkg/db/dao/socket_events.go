package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// SocketEventDao maps to the 'socket_events' table and holds the last
// observed status of each bridge request.
type SocketEventDao struct {
	bun.BaseModel `bun:"table:socket_events"`
	RequestHash   string    `json:"request_hash" bun:",pk,type:varchar(66)"`
	SrcChainID    int64     `json:"src_chain_id" bun:",notnull"`
	DstChainID    int64     `json:"dst_chain_id" bun:",notnull"`
	Sequence      string    `json:"sequence" bun:",notnull,type:numeric(39,0)"`
	Status        int16     `json:"status" bun:",notnull"`
	ChainID       int64     `json:"chain_id" bun:",notnull"`
	BlockNumber   int64     `json:"block_number" bun:",notnull"`
	TxHash        string    `json:"tx_hash" bun:",notnull,type:varchar(66)"`
	UpdatedAt     time.Time `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}
