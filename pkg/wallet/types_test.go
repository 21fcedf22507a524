package wallet

import (
	"errors"
	"testing"
)

func TestNewProfessionalIDTrimsAndValidates(t *testing.T) {
	t.Parallel()
	id, err := NewProfessionalID("  pro-1  ")
	if err != nil {
		t.Fatalf("professional id: %v", err)
	}
	if id.String() != "pro-1" {
		t.Fatalf("expected trimmed value, got %q", id.String())
	}
	if _, err := NewProfessionalID("   "); !errors.Is(err, ErrInvalidProfessionalID) {
		t.Fatalf("expected ErrInvalidProfessionalID, got %v", err)
	}
}

func TestNewPositiveAmountCents(t *testing.T) {
	t.Parallel()
	if _, err := NewPositiveAmountCents(1); err != nil {
		t.Fatalf("positive amount: %v", err)
	}
	for _, raw := range []int64{0, -5} {
		if _, err := NewPositiveAmountCents(raw); !errors.Is(err, ErrInvalidAmountCents) {
			t.Fatalf("expected ErrInvalidAmountCents for %d, got %v", raw, err)
		}
	}
}

func TestNewMetadataJSON(t *testing.T) {
	t.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if metadata.String() != "{}" {
		t.Fatalf("expected empty object default, got %q", metadata.String())
	}
	if _, err := NewMetadataJSON("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		t.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestParseTransactionType(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"deposit", "debit", "refund", "admin_adjustment"} {
		if _, err := ParseTransactionType(raw); err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	if _, err := ParseTransactionType("payout"); !errors.Is(err, ErrInvalidTransactionType) {
		t.Fatalf("expected ErrInvalidTransactionType, got %v", err)
	}
}

func TestInsufficientBalanceErrorDetail(t *testing.T) {
	t.Parallel()
	err := NewInsufficientBalanceError(30, 100)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected sentinel match, got %v", err)
	}
	var detail InsufficientBalanceError
	if !errors.As(err, &detail) {
		t.Fatalf("expected InsufficientBalanceError, got %T", err)
	}
	if detail.BalanceCents != 30 || detail.RequiredCents != 100 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestWrapErrorPreservesMetadata(t *testing.T) {
	t.Parallel()
	underlying := errors.New("boom")
	wrapped := WrapError("record", "transaction", "insert", underlying)
	if !errors.Is(wrapped, underlying) {
		t.Fatalf("expected unwrap to underlying, got %v", wrapped)
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		t.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "record" || operationError.Subject() != "transaction" || operationError.Code() != "insert" {
		t.Fatalf("unexpected metadata: %+v", operationError)
	}
	if WrapError("record", "transaction", "insert", nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}
