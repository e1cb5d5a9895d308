// models/authorized_address.go
package models

import (
	"time"
)

// Flag severities. A set flag always carries an expiry and forces
// IsAuthorized to false; clearing the flag clears the expiry.
const (
	FlagTypeYellow = "YELLOW"
	FlagTypeRed    = "RED"
)

// AuthorizedAddress binds a ledger address to an external identity
// (auth_source + auth_source_user_id, e.g. a discord user). Several
// addresses may share one identity; authorization and flag transitions are
// applied to every address bound to the identity.
// Table name: authorized_addresses
type AuthorizedAddress struct {
	Address          string     `gorm:"primaryKey;type:varchar(64);not null" json:"address"`
	AuthSource       string     `gorm:"type:varchar(32);not null;index:idx_auth_identity" json:"auth_source"`
	AuthSourceUserID string     `gorm:"type:varchar(64);not null;index:idx_auth_identity" json:"auth_source_user_id"`
	IsAuthorized     bool       `gorm:"not null" json:"is_authorized"`
	FlagType         *string    `gorm:"type:varchar(16)" json:"flag_type"`
	FlagExpiresAt    *time.Time `json:"flag_expires_at"`
	DeauthorizedAt   *time.Time `json:"deauthorized_at"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}
