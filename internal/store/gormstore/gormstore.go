package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/servineo/billing/pkg/wallet"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore    = "store"
	errorSubjectWallet     = "wallet"
	errorSubjectTransation = "transaction"
	errorSubjectClick      = "click"
	errorSubjectOffer      = "offer"
	errorSubjectSetting    = "setting"
	errorCodeCreate        = "create"
	errorCodeDelete        = "delete"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeLookup        = "lookup"
	errorCodeUpdate        = "update"
)

// transactionContextKey carries the ambient *gorm.DB transaction so the
// wallet debit issued inside a click billing closure joins the same
// database transaction as the click insert.
type transactionContextKey struct{}

func withAmbientTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

func ambientTx(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(transactionContextKey{}).(*gorm.DB)
	return tx
}

func connection(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := ambientTx(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func runInTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if ambientTx(ctx) != nil {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withAmbientTx(ctx, tx))
	})
}

// WalletStore implements wallet.Store using GORM.
type WalletStore struct {
	db *gorm.DB
}

// NewWalletStore returns a WalletStore backed by gorm.DB.
func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

// WithTx executes fn within a transaction, joining any ambient one.
func (store *WalletStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return runInTransaction(ctx, store.db, func(ctx context.Context) error {
		return fn(ctx, store)
	})
}

// GetOrCreateWallet resolves the professional's wallet, creating it on
// first access. A conflicting concurrent insert keeps the existing
// row's id, so the row is re-read after the create attempt instead of
// trusting the uuid generated in memory.
func (store *WalletStore) GetOrCreateWallet(ctx context.Context, professionalID string) (wallet.Wallet, error) {
	db := connection(ctx, store.db)
	var row Wallet
	err := db.Where("professional_id = ?", professionalID).Take(&row).Error
	if err == nil {
		return mapWallet(row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeLookup, err)
	}

	created := Wallet{ProfessionalID: professionalID}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "professional_id"}},
		DoNothing: true,
	}).Create(&created).Error
	if err != nil && !isUniqueViolation(err) {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}

	if err := db.Where("professional_id = ?", professionalID).Take(&row).Error; err != nil {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeLookup, err)
	}
	return mapWallet(row), nil
}

// GetWalletForUpdate reads the wallet row under an exclusive lock held
// until the surrounding transaction ends. SQLite has no row locks and
// serializes writers per transaction, so the clause is postgres-only.
func (store *WalletStore) GetWalletForUpdate(ctx context.Context, walletID string) (wallet.Wallet, error) {
	query := connection(ctx, store.db)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Wallet
	err := query.
		Where("wallet_id = ?", walletID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrUnknownWallet)
		}
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(row), nil
}

func (store *WalletStore) UpdateWalletBalance(ctx context.Context, walletID string, balance wallet.AmountCents) error {
	result := connection(ctx, store.db).
		Model(&Wallet{}).
		Where("wallet_id = ?", walletID).
		Update("balance_cents", balance.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, wallet.ErrUnknownWallet)
	}
	return nil
}

func (store *WalletStore) InsertTransaction(ctx context.Context, input wallet.TransactionInput) (wallet.Transaction, error) {
	row := WalletTransaction{
		WalletID:           input.WalletID,
		Type:               input.Type.String(),
		AmountCents:        input.AmountCents.Int64(),
		Description:        input.Description,
		BalanceBeforeCents: input.BalanceBeforeCents.Int64(),
		BalanceAfterCents:  input.BalanceAfterCents.Int64(),
		ReferenceID:        optionalString(input.ReferenceID),
		AdminID:            optionalString(input.AdminID),
		AdminNote:          optionalString(input.AdminNote),
		Pending:            input.Pending,
		Metadata:           datatypesJSON(input.MetadataJSON.String()),
		CreatedAt:          time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() || input.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	if err := connection(ctx, store.db).Create(&row).Error; err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransation, errorCodeInsert, err)
	}
	return mapTransaction(row)
}

func (store *WalletStore) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, error) {
	var row WalletTransaction
	err := connection(ctx, store.db).
		Where("transaction_id = ?", transactionID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.Transaction{}, wrapStoreError(errorSubjectTransation, errorCodeGet, wallet.ErrUnknownTransaction)
		}
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransation, errorCodeGet, err)
	}
	return mapTransaction(row)
}

func (store *WalletStore) FindTransactionByReference(ctx context.Context, walletID string, referenceID string, pending bool) (*wallet.Transaction, error) {
	var row WalletTransaction
	err := connection(ctx, store.db).
		Where("wallet_id = ? AND reference_id = ? AND pending = ?", walletID, referenceID, pending).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStoreError(errorSubjectTransation, errorCodeLookup, err)
	}
	mapped, err := mapTransaction(row)
	if err != nil {
		return nil, err
	}
	return &mapped, nil
}

func (store *WalletStore) DeleteTransaction(ctx context.Context, transactionID string) (bool, error) {
	result := connection(ctx, store.db).
		Where("transaction_id = ?", transactionID).
		Delete(&WalletTransaction{})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectTransation, errorCodeDelete, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *WalletStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]wallet.Transaction, error) {
	var rows []WalletTransaction
	err := connection(ctx, store.db).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, recorded_nano DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransation, errorCodeList, err)
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapTransaction(row)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, mapped)
	}
	return transactions, nil
}

func mapWallet(row Wallet) wallet.Wallet {
	return wallet.Wallet{
		WalletID:       row.WalletID,
		ProfessionalID: row.ProfessionalID,
		BalanceCents:   wallet.AmountCents(row.BalanceCents),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}
}

func mapTransaction(row WalletTransaction) (wallet.Transaction, error) {
	transactionType, err := wallet.ParseTransactionType(row.Type)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransation, errorCodeInvalid, err)
	}
	return wallet.Transaction{
		TransactionID:      row.TransactionID,
		WalletID:           row.WalletID,
		Type:               transactionType,
		AmountCents:        wallet.AmountCents(row.AmountCents),
		Description:        row.Description,
		BalanceBeforeCents: wallet.AmountCents(row.BalanceBeforeCents),
		BalanceAfterCents:  wallet.AmountCents(row.BalanceAfterCents),
		ReferenceID:        stringOrEmpty(row.ReferenceID),
		AdminID:            stringOrEmpty(row.AdminID),
		AdminNote:          stringOrEmpty(row.AdminNote),
		Pending:            row.Pending,
		MetadataJSON:       string(row.Metadata),
		CreatedUnixUTC:     row.CreatedAt.Unix(),
	}, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
