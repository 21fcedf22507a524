package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// Fifty cents funds exactly five ten-cent debits; the rest must fail
// with insufficient balance and leave no rows behind.
func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store, nil)
	professionalID := mustProfessionalID(t, "pro-concurrent")
	owned := mustWallet(t, store, "pro-concurrent")
	mustRecord(t, service, owned.WalletID, 50, TransactionDeposit)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for index := 0; index < attempts; index++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = service.DebitWallet(context.Background(), DebitParams{
				ProfessionalID: professionalID,
				AmountCents:    10,
			})
		}(index)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, result := range results {
		switch {
		case result == nil:
			succeeded++
		case errors.Is(result, ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected debit error: %v", result)
		}
	}
	if succeeded != 5 || rejected != 5 {
		t.Fatalf("expected 5 successes and 5 rejections, got %d and %d", succeeded, rejected)
	}
	if got := store.mustWalletByID(t, owned.WalletID).BalanceCents; got != 0 {
		t.Fatalf("expected drained balance, got %d", got)
	}
	// One deposit plus five debit rows; rejected attempts leave nothing.
	rows := store.transactionsFor(owned.WalletID)
	if got := len(rows); got != 6 {
		t.Fatalf("expected 6 ledger rows, got %d", got)
	}
	// The snapshots must chain in creation order: every row picks up
	// exactly where its predecessor left off, even under contention.
	if rows[0].BalanceBeforeCents != 0 {
		t.Fatalf("expected the first row to start from zero, got %+v", rows[0])
	}
	for index := 1; index < len(rows); index++ {
		previous, current := rows[index-1], rows[index]
		if current.BalanceBeforeCents != previous.BalanceAfterCents {
			t.Fatalf("broken snapshot chain at row %d: %d follows %d", index, current.BalanceBeforeCents, previous.BalanceAfterCents)
		}
		if current.BalanceAfterCents != current.BalanceBeforeCents+current.AmountCents {
			t.Fatalf("inconsistent snapshots at row %d: %+v", index, current)
		}
	}
}
