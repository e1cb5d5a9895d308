// models/memo_record.go
package models

import (
	"time"
)

// MemoRecord is the flattened, memo-decoded view of a transaction, derived
// once per ingested hash. Amount and Fee are nil for non-transfer
// transactions (a zero on the wire is normalized to nil so "no transfer"
// and "transfer of nothing" stay distinguishable downstream).
// Table name: memo_records
type MemoRecord struct {
	Hash              string    `gorm:"primaryKey;type:varchar(64);not null" json:"hash"`
	Account           string    `gorm:"type:varchar(64);not null;index" json:"account"`
	Destination       string    `gorm:"type:varchar(64);index" json:"destination"`
	Amount            *float64  `json:"amount"`
	Fee               *float64  `json:"fee"`
	MemoFormat        string    `gorm:"type:text;not null;default:''" json:"memo_format"`
	MemoType          string    `gorm:"type:text;not null;default:'';index" json:"memo_type"`
	MemoData          string    `gorm:"type:text;not null;default:''" json:"memo_data"`
	TransactionResult string    `gorm:"type:varchar(32);index" json:"transaction_result"`
	Datetime          time.Time `gorm:"not null;index" json:"datetime"`

	Transaction Transaction `gorm:"foreignKey:Hash;references:Hash;constraint:OnDelete:CASCADE" json:"-"`
}
