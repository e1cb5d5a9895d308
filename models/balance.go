// models/balance.go
package models

import (
	"time"
)

// Balance is the running signed token balance for one account, updated
// incrementally from each successful transfer. Rows are created on first
// observed transfer and never deleted.
// Table name: balances
type Balance struct {
	Account    string    `gorm:"primaryKey;type:varchar(64);not null" json:"account"`
	Balance    float64   `gorm:"not null" json:"balance"`
	LastTxHash string    `gorm:"type:varchar(64);not null" json:"last_tx_hash"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}
