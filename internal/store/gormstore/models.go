package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet mirrors the wallets table: one row per professional, mutated
// only through the ledger's record primitive.
type Wallet struct {
	WalletID       string    `gorm:"type:uuid;primaryKey"`
	ProfessionalID string    `gorm:"not null;index:uniq_wallet_professional,unique"`
	BalanceCents   int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

func (walletRow *Wallet) BeforeCreate(tx *gorm.DB) error {
	if walletRow.WalletID == "" {
		walletRow.WalletID = uuid.NewString()
	}
	return nil
}

// WalletTransaction mirrors the wallet_transactions table. RecordedNano
// disambiguates rows created within the same second so the
// before/after snapshot chain stays inspectable in creation order.
type WalletTransaction struct {
	TransactionID      string         `gorm:"type:uuid;primaryKey"`
	WalletID           string         `gorm:"type:uuid;not null;index:idx_tx_wallet_created,priority:1"`
	Type               string         `gorm:"not null"`
	AmountCents        int64          `gorm:"not null"`
	Description        string         `gorm:"not null"`
	BalanceBeforeCents int64          `gorm:"not null"`
	BalanceAfterCents  int64          `gorm:"not null"`
	ReferenceID        *string        `gorm:"index:idx_tx_reference"`
	AdminID            *string        `gorm:""`
	AdminNote          *string        `gorm:""`
	Pending            bool           `gorm:"not null"`
	Metadata           datatypes.JSON `gorm:"not null"`
	CreatedAt          time.Time      `gorm:"not null;index:idx_tx_wallet_created,priority:2"`
	RecordedNano       int64          `gorm:"not null;autoCreateTime:nano"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (transactionRow *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if transactionRow.TransactionID == "" {
		transactionRow.TransactionID = uuid.NewString()
	}
	return nil
}

// ClickEvent mirrors the click_events table. The unique pair index is
// the authoritative guard against double-billing a client/offer pair.
type ClickEvent struct {
	ClickID        string    `gorm:"type:uuid;primaryKey"`
	OfferID        string    `gorm:"not null;index:uniq_click_offer_client,unique,priority:1"`
	ClientID       string    `gorm:"not null;index:uniq_click_offer_client,unique,priority:2"`
	ProfessionalID string    `gorm:"not null;index:idx_click_professional_created,priority:1"`
	Type           string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_click_professional_created,priority:2"`
}

func (ClickEvent) TableName() string { return "click_events" }

func (clickRow *ClickEvent) BeforeCreate(tx *gorm.DB) error {
	if clickRow.ClickID == "" {
		clickRow.ClickID = uuid.NewString()
	}
	return nil
}

// Offer mirrors the marketplace-owned offers table; billing only reads
// it to resolve the professional behind a click.
type Offer struct {
	OfferID        string    `gorm:"primaryKey"`
	ProfessionalID string    `gorm:"not null;index"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Offer) TableName() string { return "offers" }

// PlatformSetting mirrors the platform_settings key/value table.
type PlatformSetting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PlatformSetting) TableName() string { return "platform_settings" }

// Models lists every table for schema migration.
func Models() []any {
	return []any{&Wallet{}, &WalletTransaction{}, &ClickEvent{}, &Offer{}, &PlatformSetting{}}
}
