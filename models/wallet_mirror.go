// models/wallet_mirror.go
package models

import (
	"time"
)

// WalletMirror is a local snapshot of user wallet data from the wallet
// service, kept fresh by the wallet sync worker. It is the engine's
// only source for getWalletAddress lookups — minting never calls the
// wallet service inline.
// Table name: wallet_mirror
type WalletMirror struct {
	ID           string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;index" json:"user_id"` // External user ID
	Chain        string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Address      string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"` // Primary lookup key
	IsActive     bool      `gorm:"not null" json:"is_active"`
	LastSyncedAt time.Time `gorm:"not null" json:"last_synced_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (WalletMirror) TableName() string { return "wallet_mirror" }
