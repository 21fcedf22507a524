package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	descriptionDepositPending   = "Wallet deposit (awaiting payment confirmation)"
	descriptionDepositCompleted = "Wallet deposit"
)

// BeginDeposit writes the pending placeholder for an externally
// initiated deposit. The placeholder references the provider's checkout
// session id and never touches the wallet balance; CompleteDeposit
// exchanges it for a confirmed credit keyed by the payment-intent id.
func (service *Service) BeginDeposit(ctx context.Context, professionalID ProfessionalID, amount AmountCents, checkoutSessionID string) (Transaction, error) {
	validAmount, err := NewPositiveAmountCents(amount.Int64())
	if err != nil {
		return Transaction{}, err
	}
	sessionID := strings.TrimSpace(checkoutSessionID)
	if sessionID == "" {
		return Transaction{}, fmt.Errorf("%w: empty session id", ErrInvalidCheckoutSession)
	}
	var pending Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		owned, err := transactionStore.GetOrCreateWallet(ctx, professionalID.String())
		if err != nil {
			return err
		}
		pending, err = transactionStore.InsertTransaction(ctx, TransactionInput{
			WalletID:       owned.WalletID,
			Type:           TransactionDeposit,
			AmountCents:    validAmount,
			Description:    descriptionDepositPending,
			ReferenceID:    sessionID,
			Pending:        true,
			CreatedUnixUTC: service.nowFn(),
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationBeginDeposit,
		WalletID:    pending.WalletID,
		Type:        TransactionDeposit,
		AmountCents: validAmount,
		ReferenceID: sessionID,
		Error:       operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return pending, nil
}

// CompleteDeposit reconciles a pending deposit against the external
// payment provider.
//
// The placeholder row is looked up by its transaction id and carries
// the checkout session id; the completed credit is keyed by the
// provider's payment-intent id. The two distinct identifiers are what
// make duplicate webhook or poll deliveries harmless: a retry either
// finds no placeholder (not_found) or finds the completed credit by
// intent id and returns it without crediting again.
func (service *Service) CompleteDeposit(ctx context.Context, pendingTransactionID string) (DepositResult, error) {
	if service.checkout == nil {
		return DepositResult{}, fmt.Errorf("%w: checkout provider is nil", ErrInvalidServiceConfig)
	}
	if strings.TrimSpace(pendingTransactionID) == "" {
		return DepositResult{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}

	pending, err := service.store.GetTransaction(ctx, pendingTransactionID)
	if err != nil {
		if errors.Is(err, ErrUnknownTransaction) {
			return DepositResult{Status: DepositStatusNotFound}, nil
		}
		return DepositResult{}, err
	}
	if !pending.Pending || pending.Type != TransactionDeposit {
		return DepositResult{Status: DepositStatusNotFound}, nil
	}

	// Provider call happens before any locking; the wallet row lock is
	// only taken inside RecordTransaction below.
	session, err := service.checkout.GetCheckoutSession(ctx, pending.ReferenceID)
	if err != nil {
		return DepositResult{}, WrapError(operationCompleteDeposit, "checkout", "lookup", err)
	}
	if !session.Paid {
		return DepositResult{Status: DepositStatusPending}, nil
	}
	if strings.TrimSpace(session.PaymentIntentID) == "" {
		return DepositResult{}, fmt.Errorf("%w: paid session %q has no payment intent", ErrInvalidCheckoutSession, session.SessionID)
	}

	existing, err := service.store.FindTransactionByReference(ctx, pending.WalletID, session.PaymentIntentID, false)
	if err != nil {
		return DepositResult{}, err
	}
	if existing != nil {
		// Already finalized by a concurrent or retried call; drop the
		// redundant placeholder, tolerating that it may be gone.
		if _, err := service.store.DeleteTransaction(ctx, pending.TransactionID); err != nil {
			return DepositResult{}, err
		}
		return DepositResult{Status: DepositStatusCompleted, Transaction: existing}, nil
	}

	amount := session.AmountCents
	if amount <= 0 {
		amount = pending.AmountCents
	}

	var completed Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		deleted, err := transactionStore.DeleteTransaction(ctx, pending.TransactionID)
		if err != nil {
			return err
		}
		if !deleted {
			// Lost the race to another finalizer.
			return ErrUnknownTransaction
		}
		completed, err = service.RecordTransaction(ctx, RecordTransactionParams{
			WalletID:    pending.WalletID,
			AmountCents: amount,
			Type:        TransactionDeposit,
			Description: descriptionDepositCompleted,
			ReferenceID: session.PaymentIntentID,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationCompleteDeposit,
		WalletID:    pending.WalletID,
		Type:        TransactionDeposit,
		AmountCents: amount,
		ReferenceID: session.PaymentIntentID,
		Error:       operationError,
	})
	if operationError != nil {
		if errors.Is(operationError, ErrUnknownTransaction) {
			finalized, lookupErr := service.store.FindTransactionByReference(ctx, pending.WalletID, session.PaymentIntentID, false)
			if lookupErr == nil && finalized != nil {
				return DepositResult{Status: DepositStatusCompleted, Transaction: finalized}, nil
			}
			return DepositResult{Status: DepositStatusNotFound}, nil
		}
		return DepositResult{}, operationError
	}
	return DepositResult{Status: DepositStatusCompleted, Transaction: &completed}, nil
}
