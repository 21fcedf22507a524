package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AmountCents is an integer currency amount in minor units.
type AmountCents int64

// Int64 returns the raw cent value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// ProfessionalID identifies a wallet owner.
type ProfessionalID struct {
	value string
}

// NewProfessionalID validates and normalizes a professional id.
func NewProfessionalID(raw string) (ProfessionalID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProfessionalID{}, fmt.Errorf("%w: empty value", ErrInvalidProfessionalID)
	}
	return ProfessionalID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProfessionalID) String() string {
	return id.value
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// NewPositiveAmountCents validates an amount and ensures it is strictly positive.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

const (
	TransactionDeposit         TransactionType = "deposit"
	TransactionDebit           TransactionType = "debit"
	TransactionRefund          TransactionType = "refund"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
)

// String returns the stored representation.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionDeposit, TransactionDebit, TransactionRefund, TransactionAdminAdjustment:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// creditTypes are the transaction types CreditWallet accepts.
var creditTypes = map[TransactionType]struct{}{
	TransactionDeposit:         {},
	TransactionRefund:          {},
	TransactionAdminAdjustment: {},
}

// Wallet is the per-professional account with its running balance.
type Wallet struct {
	WalletID       string
	ProfessionalID string
	BalanceCents   AmountCents
	CreatedUnixUTC int64
}

// A single immutable line in the ledger. Pending rows are deposit
// placeholders awaiting provider confirmation; they carry no balance
// snapshots and do not count toward the wallet balance.
type Transaction struct {
	TransactionID      string
	WalletID           string
	Type               TransactionType
	AmountCents        AmountCents
	Description        string
	BalanceBeforeCents AmountCents
	BalanceAfterCents  AmountCents
	ReferenceID        string
	AdminID            string
	AdminNote          string
	Pending            bool
	MetadataJSON       string
	CreatedUnixUTC     int64
}

// TransactionInput carries a transaction row to the store.
type TransactionInput struct {
	WalletID           string
	Type               TransactionType
	AmountCents        AmountCents
	Description        string
	BalanceBeforeCents AmountCents
	BalanceAfterCents  AmountCents
	ReferenceID        string
	AdminID            string
	AdminNote          string
	Pending            bool
	MetadataJSON       MetadataJSON
	CreatedUnixUTC     int64
}

// RecordTransactionParams is the contract of the core ledger primitive.
// AmountCents is signed: positive credits, negative debits.
type RecordTransactionParams struct {
	WalletID    string
	AmountCents AmountCents
	Type        TransactionType
	Description string
	ReferenceID string
	AdminID     string
	AdminNote   string
	Metadata    MetadataJSON
}

// DebitParams debits a professional's wallet by a positive amount.
type DebitParams struct {
	ProfessionalID ProfessionalID
	AmountCents    AmountCents
	Description    string
	ReferenceID    string
	Metadata       MetadataJSON
}

// CreditParams credits a professional's wallet by a positive amount.
type CreditParams struct {
	ProfessionalID ProfessionalID
	AmountCents    AmountCents
	Type           TransactionType
	Description    string
	ReferenceID    string
	AdminID        string
	AdminNote      string
	Metadata       MetadataJSON
}

// WalletHistory bundles a wallet with its most recent transactions.
type WalletHistory struct {
	Wallet       Wallet
	Transactions []Transaction
}

// DepositStatus describes the outcome of a reconciliation attempt.
type DepositStatus string

const (
	DepositStatusNotFound  DepositStatus = "not_found"
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusCompleted DepositStatus = "completed"
)

// DepositResult is returned by CompleteDeposit.
type DepositResult struct {
	Status      DepositStatus
	Transaction *Transaction
}

// CheckoutSession is the provider's view of an externally-initiated deposit.
// PaymentIntentID is only assigned by the provider once payment settles.
type CheckoutSession struct {
	SessionID       string
	Paid            bool
	AmountCents     AmountCents
	PaymentIntentID string
}

// CheckoutProvider resolves a checkout session with the external
// payment provider. Never called while a wallet row lock is held.
type CheckoutProvider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
}

// Store is the persistence contract used by Service.
//
// WithTx runs fn within a storage transaction; nested calls join the
// ambient transaction. GetWalletForUpdate must hold an exclusive lock
// on the wallet row until the surrounding transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateWallet(ctx context.Context, professionalID string) (Wallet, error)
	GetWalletForUpdate(ctx context.Context, walletID string) (Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID string, balance AmountCents) error
	InsertTransaction(ctx context.Context, input TransactionInput) (Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (Transaction, error)
	FindTransactionByReference(ctx context.Context, walletID string, referenceID string, pending bool) (*Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID string) (bool, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error)
}
