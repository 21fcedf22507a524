package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet service.
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnknownTransaction      = errors.New("unknown transaction")
	ErrUnknownWallet           = errors.New("unknown wallet")
	ErrInvalidProfessionalID   = errors.New("invalid professional id")
	ErrInvalidWalletID         = errors.New("invalid wallet id")
	ErrInvalidTransactionID    = errors.New("invalid transaction id")
	ErrInvalidAmountCents      = errors.New("invalid amount cents")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidCheckoutSession  = errors.New("invalid checkout session")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrBalanceSnapshotMismatch = errors.New("balance snapshot mismatch")
)

// InsufficientBalanceError reports a rejected debit with the balance
// observed under the lock and the amount the caller needed.
type InsufficientBalanceError struct {
	BalanceCents  AmountCents
	RequiredCents AmountCents
}

// Error returns the formatted message including the shortfall.
func (insufficient InsufficientBalanceError) Error() string {
	shortfall := insufficient.RequiredCents - insufficient.BalanceCents
	return fmt.Sprintf("insufficient balance: have %d, need %d (short %d)", insufficient.BalanceCents, insufficient.RequiredCents, shortfall)
}

// Is matches the ErrInsufficientBalance sentinel.
func (insufficient InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// NewInsufficientBalanceError builds the structured failure.
func NewInsufficientBalanceError(balance AmountCents, required AmountCents) error {
	return InsufficientBalanceError{BalanceCents: balance, RequiredCents: required}
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
