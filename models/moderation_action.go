// models/moderation_action.go
package models

import (
	"time"
)

// ModerationAction is an audit row written for every authorize /
// deauthorize / flag / clear-flag transition.
// Table name: moderation_actions
type ModerationAction struct {
	ID               string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Action           string    `gorm:"type:varchar(32);not null" json:"action"`
	Address          string    `gorm:"type:varchar(64)" json:"address"`
	AuthSource       string    `gorm:"type:varchar(32);not null" json:"auth_source"`
	AuthSourceUserID string    `gorm:"type:varchar(64);not null" json:"auth_source_user_id"`
	FlagType         string    `gorm:"type:varchar(16)" json:"flag_type"`
	Actor            string    `gorm:"type:varchar(64)" json:"actor"`
	Notes            string    `gorm:"type:text;not null;default:''" json:"notes"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}
