// models/transaction.go
package models

import (
	"encoding/json"
	"time"
)

// Transaction is a raw ledger transaction as handed to us by the ledger
// client. Rows are immutable once written: re-submitting the same hash is a
// no-op, never an update.
// Table name: transactions
type Transaction struct {
	Hash        string          `gorm:"primaryKey;type:varchar(64);not null" json:"hash"`
	LedgerIndex int64           `gorm:"not null;index" json:"ledger_index"`
	CloseTime   time.Time       `gorm:"not null;index" json:"close_time"`
	TxJSON      json.RawMessage `gorm:"type:jsonb" json:"tx_json"`
	Meta        json.RawMessage `gorm:"type:jsonb" json:"meta"`
	Validated   bool            `gorm:"not null" json:"validated"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}
