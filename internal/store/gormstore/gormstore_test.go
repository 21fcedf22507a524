package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/servineo/billing/pkg/clicks"
	"github.com/servineo/billing/pkg/wallet"
)

func TestGetOrCreateWalletIsIdempotent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)

	created, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if created.BalanceCents != 0 || created.WalletID == "" {
		t.Fatalf("unexpected wallet: %+v", created)
	}
	again, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if again.WalletID != created.WalletID {
		t.Fatalf("expected one wallet per professional, got %s and %s", created.WalletID, again.WalletID)
	}

	var count int64
	if err := db.Model(&Wallet{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 wallet row, got %d", count)
	}
}

func TestGetOrCreateWalletReturnsThePersistedRow(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)

	// A wallet created by another writer must win over any id generated
	// in memory during the create attempt.
	existing := Wallet{WalletID: "11111111-2222-3333-4444-555555555555", ProfessionalID: "pro-raced"}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	resolved, err := store.GetOrCreateWallet(context.Background(), "pro-raced")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if resolved.WalletID != existing.WalletID {
		t.Fatalf("expected the stored id %s, got %s", existing.WalletID, resolved.WalletID)
	}

	// Freshly created wallets must hand back an id that exists as a row.
	created, err := store.GetOrCreateWallet(context.Background(), "pro-fresh")
	if err != nil {
		t.Fatalf("get or create fresh: %v", err)
	}
	var row Wallet
	if err := db.Where("wallet_id = ?", created.WalletID).Take(&row).Error; err != nil {
		t.Fatalf("expected wallet row %s to exist: %v", created.WalletID, err)
	}
	if row.ProfessionalID != "pro-fresh" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestBalanceEqualsSumOfConfirmedTransactions(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)
	service := mustLedgerService(t, store)
	professionalID := mustStoreProfessionalID(t, "pro-1")

	if _, err := service.CreditWallet(context.Background(), wallet.CreditParams{
		ProfessionalID: professionalID,
		AmountCents:    1000,
		Type:           wallet.TransactionDeposit,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	for range [3]struct{}{} {
		if _, err := service.DebitWallet(context.Background(), wallet.DebitParams{
			ProfessionalID: professionalID,
			AmountCents:    10,
		}); err != nil {
			t.Fatalf("debit: %v", err)
		}
	}
	// A pending deposit placeholder must not count toward the balance.
	if _, err := service.BeginDeposit(context.Background(), professionalID, 5000, "sess-1"); err != nil {
		t.Fatalf("begin deposit: %v", err)
	}

	owned, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	var sum int64
	err = db.Model(&WalletTransaction{}).
		Where("wallet_id = ? AND pending = ?", owned.WalletID, false).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if owned.BalanceCents.Int64() != sum || sum != 970 {
		t.Fatalf("balance %d diverged from confirmed sum %d", owned.BalanceCents, sum)
	}
}

func TestListTransactionsOrdersNewestFirst(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)
	owned, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}

	// Same created-at second; recorded_nano must break the tie.
	sameSecond := int64(1_700_000_000)
	for _, amount := range []int64{100, 200, 300} {
		if _, err := store.InsertTransaction(context.Background(), wallet.TransactionInput{
			WalletID:       owned.WalletID,
			Type:           wallet.TransactionDeposit,
			AmountCents:    wallet.AmountCents(amount),
			CreatedUnixUTC: sameSecond,
		}); err != nil {
			t.Fatalf("insert %d: %v", amount, err)
		}
	}

	rows, err := store.ListTransactions(context.Background(), owned.WalletID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].AmountCents != 300 || rows[1].AmountCents != 200 || rows[2].AmountCents != 100 {
		t.Fatalf("expected newest first, got %+v", rows)
	}
}

func TestFindTransactionByReferenceHonorsPendingFlag(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)
	owned, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if _, err := store.InsertTransaction(context.Background(), wallet.TransactionInput{
		WalletID:    owned.WalletID,
		Type:        wallet.TransactionDeposit,
		AmountCents: 500,
		ReferenceID: "sess-1",
		Pending:     true,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := store.FindTransactionByReference(context.Background(), owned.WalletID, "sess-1", true)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if pending == nil || !pending.Pending {
		t.Fatalf("expected pending row, got %+v", pending)
	}
	confirmed, err := store.FindTransactionByReference(context.Background(), owned.WalletID, "sess-1", false)
	if err != nil {
		t.Fatalf("find confirmed: %v", err)
	}
	if confirmed != nil {
		t.Fatalf("expected no confirmed row, got %+v", confirmed)
	}
}

func TestDeleteTransactionReportsMisses(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)
	owned, err := store.GetOrCreateWallet(context.Background(), "pro-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	inserted, err := store.InsertTransaction(context.Background(), wallet.TransactionInput{
		WalletID:    owned.WalletID,
		Type:        wallet.TransactionDeposit,
		AmountCents: 500,
		Pending:     true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	deleted, err := store.DeleteTransaction(context.Background(), inserted.TransactionID)
	if err != nil || !deleted {
		t.Fatalf("expected delete to hit, got %v %v", deleted, err)
	}
	deleted, err = store.DeleteTransaction(context.Background(), inserted.TransactionID)
	if err != nil || deleted {
		t.Fatalf("expected delete to miss, got %v %v", deleted, err)
	}
}

func TestUpdateWalletBalanceUnknownWallet(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewWalletStore(db)

	err := store.UpdateWalletBalance(context.Background(), "missing", 100)
	if !errors.Is(err, wallet.ErrUnknownWallet) {
		t.Fatalf("expected ErrUnknownWallet, got %v", err)
	}
}

func TestClickEventUniquePairConstraint(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewClickStore(db)

	event := clicks.ClickEvent{OfferID: "offer-1", ClientID: "client-1", ProfessionalID: "pro-1", Type: clicks.ClickOfferView}
	if _, err := store.InsertClickEvent(context.Background(), event); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := store.InsertClickEvent(context.Background(), event); !errors.Is(err, clicks.ErrDuplicateClick) {
		t.Fatalf("expected ErrDuplicateClick, got %v", err)
	}
}

func TestClickDebitRollsBackWithTheClickEvent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	clickStore := NewClickStore(db)
	walletStore := NewWalletStore(db)
	service := mustLedgerService(t, walletStore)
	professionalID := mustStoreProfessionalID(t, "pro-1")

	// Zero balance, so the debit inside the click transaction must fail
	// and drag the already-inserted click event down with it.
	err := clickStore.WithTx(context.Background(), func(ctx context.Context, txStore clicks.Store) error {
		event, err := txStore.InsertClickEvent(ctx, clicks.ClickEvent{
			OfferID:        "offer-1",
			ClientID:       "client-1",
			ProfessionalID: "pro-1",
			Type:           clicks.ClickOfferView,
		})
		if err != nil {
			return err
		}
		_, err = service.DebitWallet(ctx, wallet.DebitParams{
			ProfessionalID: professionalID,
			AmountCents:    10,
			ReferenceID:    event.ClickID,
		})
		return err
	})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var count int64
	if err := db.Model(&ClickEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rolled-back click event, got %d rows", count)
	}
}

func TestSaveOfferAndGetOffer(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewClickStore(db)

	if err := store.SaveOffer(context.Background(), clicks.Offer{OfferID: "offer-1", ProfessionalID: "pro-1"}); err != nil {
		t.Fatalf("save offer: %v", err)
	}
	offer, err := store.GetOffer(context.Background(), "offer-1")
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if offer.ProfessionalID != "pro-1" {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if _, err := store.GetOffer(context.Background(), "missing"); !errors.Is(err, clicks.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestListClickTimesFiltersByProfessionalAndWindow(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewClickStore(db)

	base := int64(1_700_000_000)
	insert := func(offerID, clientID, professionalID string, createdAt int64) {
		t.Helper()
		if _, err := store.InsertClickEvent(context.Background(), clicks.ClickEvent{
			OfferID:        offerID,
			ClientID:       clientID,
			ProfessionalID: professionalID,
			Type:           clicks.ClickOfferView,
			CreatedUnixUTC: createdAt,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("offer-1", "client-1", "pro-1", base)
	insert("offer-1", "client-2", "pro-1", base+60)
	insert("offer-1", "client-3", "pro-1", base-7200)
	insert("offer-2", "client-1", "pro-2", base)

	times, err := store.ListClickTimes(context.Background(), "pro-1", base-3600)
	if err != nil {
		t.Fatalf("list times: %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("expected 2 clicks in window, got %v", times)
	}
	if times[0] != base || times[1] != base+60 {
		t.Fatalf("expected ascending times, got %v", times)
	}
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewSettingsStore(db)

	minimum, err := store.MinimumWalletBalanceCents(context.Background())
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if minimum != 0 {
		t.Fatalf("expected zero for an absent key, got %d", minimum)
	}

	if err := store.SetMinimumWalletBalanceCents(context.Background(), 500); err != nil {
		t.Fatalf("set: %v", err)
	}
	minimum, err = store.MinimumWalletBalanceCents(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if minimum != 500 {
		t.Fatalf("expected 500, got %d", minimum)
	}

	if err := store.SetMinimumWalletBalanceCents(context.Background(), 750); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	minimum, err = store.MinimumWalletBalanceCents(context.Background())
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if minimum != 750 {
		t.Fatalf("expected 750, got %d", minimum)
	}
}

// --- helpers ---

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustLedgerService(t *testing.T, store wallet.Store) *wallet.Service {
	t.Helper()
	service, err := wallet.NewService(store, nil, func() int64 { return 1_700_000_000 })
	if err != nil {
		t.Fatalf("wallet service: %v", err)
	}
	return service
}

func mustStoreProfessionalID(t *testing.T, raw string) wallet.ProfessionalID {
	t.Helper()
	value, err := wallet.NewProfessionalID(raw)
	if err != nil {
		t.Fatalf("professional id: %v", err)
	}
	return value
}
