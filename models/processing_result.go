// models/processing_result.go
package models

import (
	"time"
)

// ProcessingResult is the durable verdict for one transaction: whether it
// was processed, which rule matched, and the response transaction found (if
// any). Re-evaluating a hash overwrites the prior verdict and stamps a
// fresh ReviewedAt.
// Table name: processing_results
type ProcessingResult struct {
	Hash           string    `gorm:"primaryKey;type:varchar(64);not null" json:"hash"`
	Processed      bool      `gorm:"not null" json:"processed"`
	RuleName       string    `gorm:"type:varchar(128);not null" json:"rule_name"`
	ResponseTxHash *string   `gorm:"type:varchar(64)" json:"response_tx_hash"`
	Notes          string    `gorm:"type:text;not null;default:''" json:"notes"`
	ReviewedAt     time.Time `gorm:"not null;index" json:"reviewed_at"`

	Transaction Transaction `gorm:"foreignKey:Hash;references:Hash;constraint:OnDelete:CASCADE" json:"-"`
}
