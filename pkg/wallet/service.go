package wallet

import (
	"context"
	"fmt"
	"strings"
)

// Service contains the ledger domain logic over a Store.
type Service struct {
	store    Store
	checkout CheckoutProvider
	nowFn    func() int64
	logger   OperationLogger
}

// NewService wires a Service. The checkout provider may be nil when
// deposit reconciliation is not used.
func NewService(store Store, checkout CheckoutProvider, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, checkout: checkout, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetOrCreateWallet returns the professional's wallet, creating it with
// a zero balance on first access.
func (service *Service) GetOrCreateWallet(ctx context.Context, professionalID ProfessionalID) (Wallet, error) {
	return service.store.GetOrCreateWallet(ctx, professionalID.String())
}

// RecordTransaction is the core ledger primitive. It locks the wallet
// row, re-reads the balance under the lock, rejects any mutation that
// would drive the balance negative, and otherwise writes the
// transaction with both balance snapshots and the new balance in one
// storage transaction.
func (service *Service) RecordTransaction(ctx context.Context, params RecordTransactionParams) (Transaction, error) {
	if err := validateRecordParams(params); err != nil {
		return Transaction{}, err
	}
	var recorded Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetWalletForUpdate(ctx, params.WalletID)
		if err != nil {
			return err
		}
		balanceBefore := current.BalanceCents
		balanceAfter := balanceBefore + params.AmountCents
		if balanceAfter < 0 {
			return NewInsufficientBalanceError(balanceBefore, -params.AmountCents)
		}
		recorded, err = transactionStore.InsertTransaction(ctx, TransactionInput{
			WalletID:           params.WalletID,
			Type:               params.Type,
			AmountCents:        params.AmountCents,
			Description:        params.Description,
			BalanceBeforeCents: balanceBefore,
			BalanceAfterCents:  balanceAfter,
			ReferenceID:        params.ReferenceID,
			AdminID:            params.AdminID,
			AdminNote:          params.AdminNote,
			MetadataJSON:       params.Metadata,
			CreatedUnixUTC:     service.nowFn(),
		})
		if err != nil {
			return err
		}
		return transactionStore.UpdateWalletBalance(ctx, params.WalletID, balanceAfter)
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationRecord,
		WalletID:    params.WalletID,
		Type:        params.Type,
		AmountCents: params.AmountCents,
		ReferenceID: params.ReferenceID,
		Error:       operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// DebitWallet resolves the professional's wallet and records a negative
// transaction of type debit.
func (service *Service) DebitWallet(ctx context.Context, params DebitParams) (Transaction, error) {
	amount, err := NewPositiveAmountCents(params.AmountCents.Int64())
	if err != nil {
		return Transaction{}, err
	}
	var (
		recorded Transaction
		walletID string
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		owned, err := transactionStore.GetOrCreateWallet(ctx, params.ProfessionalID.String())
		if err != nil {
			return err
		}
		walletID = owned.WalletID
		recorded, err = service.RecordTransaction(ctx, RecordTransactionParams{
			WalletID:    owned.WalletID,
			AmountCents: -amount,
			Type:        TransactionDebit,
			Description: params.Description,
			ReferenceID: params.ReferenceID,
			Metadata:    params.Metadata,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationDebit,
		WalletID:    walletID,
		Type:        TransactionDebit,
		AmountCents: -amount,
		ReferenceID: params.ReferenceID,
		Error:       operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// CreditWallet resolves the professional's wallet and records a
// positive transaction of the given credit type.
func (service *Service) CreditWallet(ctx context.Context, params CreditParams) (Transaction, error) {
	amount, err := NewPositiveAmountCents(params.AmountCents.Int64())
	if err != nil {
		return Transaction{}, err
	}
	if _, ok := creditTypes[params.Type]; !ok {
		return Transaction{}, fmt.Errorf("%w: %q is not a credit type", ErrInvalidTransactionType, params.Type)
	}
	var (
		recorded Transaction
		walletID string
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		owned, err := transactionStore.GetOrCreateWallet(ctx, params.ProfessionalID.String())
		if err != nil {
			return err
		}
		walletID = owned.WalletID
		recorded, err = service.RecordTransaction(ctx, RecordTransactionParams{
			WalletID:    owned.WalletID,
			AmountCents: amount,
			Type:        params.Type,
			Description: params.Description,
			ReferenceID: params.ReferenceID,
			AdminID:     params.AdminID,
			AdminNote:   params.AdminNote,
			Metadata:    params.Metadata,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationCredit,
		WalletID:    walletID,
		Type:        params.Type,
		AmountCents: amount,
		ReferenceID: params.ReferenceID,
		Error:       operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// HasSufficientBalance reports whether the professional's current
// balance covers the required amount. The answer can be stale the
// moment it is returned; the only authoritative guard is
// RecordTransaction's check under the row lock.
func (service *Service) HasSufficientBalance(ctx context.Context, professionalID ProfessionalID, requiredCents AmountCents) (bool, error) {
	owned, err := service.store.GetOrCreateWallet(ctx, professionalID.String())
	if err != nil {
		return false, err
	}
	return owned.BalanceCents >= requiredCents, nil
}

// WalletWithTransactions returns the wallet and its most recent
// transactions, newest first.
func (service *Service) WalletWithTransactions(ctx context.Context, professionalID ProfessionalID, limit int) (WalletHistory, error) {
	owned, err := service.store.GetOrCreateWallet(ctx, professionalID.String())
	if err != nil {
		return WalletHistory{}, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	transactions, err := service.store.ListTransactions(ctx, owned.WalletID, limit)
	if err != nil {
		return WalletHistory{}, err
	}
	return WalletHistory{Wallet: owned, Transactions: transactions}, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func validateRecordParams(params RecordTransactionParams) error {
	if strings.TrimSpace(params.WalletID) == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidWalletID)
	}
	if params.AmountCents == 0 {
		return fmt.Errorf("%w: must be non-zero", ErrInvalidAmountCents)
	}
	if _, err := ParseTransactionType(params.Type.String()); err != nil {
		return err
	}
	return nil
}
