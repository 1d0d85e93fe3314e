package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ChainStateDao is a data access object that maps directly to the 'chain_state' table in PostgreSQL.
type ChainStateDao struct {
	bun.BaseModel `bun:"table:chain_state"`
	ChainID       int64     `json:"chain_id" bun:",pk"`
	SafeBlock     int64     `json:"safe_block" bun:",notnull,use_zero"`
	UpdatedAt     time.Time `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}
