package gormstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/servineo/billing/pkg/clicks"
	"github.com/servineo/billing/pkg/wallet"
)

// SettingMinimumWalletBalance is the platform_settings key holding the
// minimum-balance policy in cents.
const SettingMinimumWalletBalance = "minimum_wallet_balance_cents"

// ClickStore implements clicks.Store using GORM. It shares the ambient
// transaction mechanism with WalletStore, so a debit recorded inside a
// click billing closure commits or rolls back with the click event.
type ClickStore struct {
	db *gorm.DB
}

// NewClickStore returns a ClickStore backed by gorm.DB.
func NewClickStore(db *gorm.DB) *ClickStore {
	return &ClickStore{db: db}
}

// WithTx executes fn within a transaction, joining any ambient one.
func (store *ClickStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore clicks.Store) error) error {
	return runInTransaction(ctx, store.db, func(ctx context.Context) error {
		return fn(ctx, store)
	})
}

func (store *ClickStore) GetOffer(ctx context.Context, offerID string) (clicks.Offer, error) {
	var row Offer
	err := connection(ctx, store.db).
		Where("offer_id = ?", offerID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return clicks.Offer{}, wrapStoreError(errorSubjectOffer, errorCodeGet, clicks.ErrOfferNotFound)
		}
		return clicks.Offer{}, wrapStoreError(errorSubjectOffer, errorCodeGet, err)
	}
	return clicks.Offer{OfferID: row.OfferID, ProfessionalID: row.ProfessionalID}, nil
}

// SaveOffer upserts a marketplace offer; billing itself never calls
// this, it is the ingestion point for the owning application.
func (store *ClickStore) SaveOffer(ctx context.Context, offer clicks.Offer) error {
	row := Offer{OfferID: offer.OfferID, ProfessionalID: offer.ProfessionalID, CreatedAt: time.Now().UTC()}
	err := connection(ctx, store.db).Save(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeCreate, err)
	}
	return nil
}

func (store *ClickStore) ClickExists(ctx context.Context, offerID string, clientID string) (bool, error) {
	var count int64
	err := connection(ctx, store.db).
		Model(&ClickEvent{}).
		Where("offer_id = ? AND client_id = ?", offerID, clientID).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectClick, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *ClickStore) InsertClickEvent(ctx context.Context, event clicks.ClickEvent) (clicks.ClickEvent, error) {
	row := ClickEvent{
		ClickID:        event.ClickID,
		OfferID:        event.OfferID,
		ClientID:       event.ClientID,
		ProfessionalID: event.ProfessionalID,
		Type:           event.Type.String(),
		CreatedAt:      time.Unix(event.CreatedUnixUTC, 0).UTC(),
	}
	if event.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	err := connection(ctx, store.db).Create(&row).Error
	if isUniqueViolation(err) {
		return clicks.ClickEvent{}, wrapStoreError(errorSubjectClick, errorCodeInsert, clicks.ErrDuplicateClick)
	}
	if err != nil {
		return clicks.ClickEvent{}, wrapStoreError(errorSubjectClick, errorCodeInsert, err)
	}
	return mapClickEvent(row)
}

func (store *ClickStore) ListClickTimes(ctx context.Context, professionalID string, sinceUnixUTC int64) ([]int64, error) {
	since := time.Unix(sinceUnixUTC, 0).UTC()
	var rows []ClickEvent
	err := connection(ctx, store.db).
		Select("created_at").
		Where("professional_id = ? AND created_at >= ?", professionalID, since).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClick, errorCodeList, err)
	}
	times := make([]int64, 0, len(rows))
	for _, row := range rows {
		times = append(times, row.CreatedAt.Unix())
	}
	return times, nil
}

func mapClickEvent(row ClickEvent) (clicks.ClickEvent, error) {
	clickType, err := clicks.ParseClickType(row.Type)
	if err != nil {
		return clicks.ClickEvent{}, wrapStoreError(errorSubjectClick, errorCodeInvalid, err)
	}
	return clicks.ClickEvent{
		ClickID:        row.ClickID,
		OfferID:        row.OfferID,
		ClientID:       row.ClientID,
		ProfessionalID: row.ProfessionalID,
		Type:           clickType,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

// SettingsStore reads platform policy values, falling back to zero when
// a key is absent so callers can apply their defaults.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore returns a SettingsStore backed by gorm.DB.
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (store *SettingsStore) MinimumWalletBalanceCents(ctx context.Context) (wallet.AmountCents, error) {
	var row PlatformSetting
	err := connection(ctx, store.db).
		Where("key = ?", SettingMinimumWalletBalance).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, wrapStoreError(errorSubjectSetting, errorCodeGet, err)
	}
	value, err := strconv.ParseInt(row.Value, 10, 64)
	if err != nil {
		return 0, wrapStoreError(errorSubjectSetting, errorCodeInvalid, err)
	}
	return wallet.AmountCents(value), nil
}

// SetMinimumWalletBalanceCents stores the policy override.
func (store *SettingsStore) SetMinimumWalletBalanceCents(ctx context.Context, minimum wallet.AmountCents) error {
	row := PlatformSetting{
		Key:       SettingMinimumWalletBalance,
		Value:     strconv.FormatInt(minimum.Int64(), 10),
		UpdatedAt: time.Now().UTC(),
	}
	if err := connection(ctx, store.db).Save(&row).Error; err != nil {
		return wrapStoreError(errorSubjectSetting, errorCodeUpdate, err)
	}
	return nil
}
