package clicks

import (
	"context"
	"fmt"

	"github.com/servineo/billing/pkg/wallet"
)

// ClickType enumerates billable interaction kinds.
type ClickType string

const (
	ClickOfferView    ClickType = "offer_view"
	ClickOfferContact ClickType = "offer_contact"
)

// String returns the stored representation.
func (clickType ClickType) String() string {
	return string(clickType)
}

// Description returns the human-readable debit description for the type.
func (clickType ClickType) Description() string {
	switch clickType {
	case ClickOfferContact:
		return "Click charge: client revealed contact details"
	default:
		return "Click charge: client viewed offer"
	}
}

// ParseClickType validates a click type, defaulting empty input to
// offer_view.
func ParseClickType(raw string) (ClickType, error) {
	switch ClickType(raw) {
	case ClickOfferView, ClickOfferContact:
		return ClickType(raw), nil
	case "":
		return ClickOfferView, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidClickType, raw)
}

// ClickEvent is one billable interaction between a client and a
// professional's offer. Created once, atomically paired with its debit,
// immutable thereafter.
type ClickEvent struct {
	ClickID        string
	OfferID        string
	ClientID       string
	ProfessionalID string
	Type           ClickType
	CreatedUnixUTC int64
}

// Offer is the read-only marketplace record billing resolves a click
// against.
type Offer struct {
	OfferID        string
	ProfessionalID string
}

// ClickParams carries one click to RecordClickAndCharge.
type ClickParams struct {
	OfferID  string
	ClientID string
	Type     ClickType
}

// DayCount is one bucket of the trailing click histogram.
type DayCount struct {
	Day    string
	Clicks int64
}

// Stats aggregates clicks over a trailing window.
type Stats struct {
	TotalClicks    int64
	TotalCostCents wallet.AmountCents
	ClicksByDay    []DayCount
}

// Decision is the dry-run answer of CanProcessClick.
type Decision struct {
	CanProcess bool
	Reason     string
}

// Policy holds the billing constants that are deliberately not baked
// into the ledger.
type Policy struct {
	ClickFeeCents wallet.AmountCents
}

// DefaultPolicy returns the platform defaults.
func DefaultPolicy() Policy {
	return Policy{ClickFeeCents: DefaultClickFeeCents}
}

// Store is the persistence contract used by Service. WithTx must let
// ledger calls made inside fn join the same storage transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOffer(ctx context.Context, offerID string) (Offer, error)
	ClickExists(ctx context.Context, offerID string, clientID string) (bool, error)
	InsertClickEvent(ctx context.Context, event ClickEvent) (ClickEvent, error)
	ListClickTimes(ctx context.Context, professionalID string, sinceUnixUTC int64) ([]int64, error)
}

// Ledger is the narrow wallet surface click billing depends on.
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, professionalID wallet.ProfessionalID) (wallet.Wallet, error)
	DebitWallet(ctx context.Context, params wallet.DebitParams) (wallet.Transaction, error)
}

// Settings supplies the platform minimum-balance policy.
type Settings interface {
	MinimumWalletBalanceCents(ctx context.Context) (wallet.AmountCents, error)
}

// DuplicateGuard is an optional fast-path cache of already-billed
// (offer, client) pairs. It is advisory: the store's uniqueness check
// stays authoritative, and guard failures never block billing.
type DuplicateGuard interface {
	Seen(ctx context.Context, offerID string, clientID string) (bool, error)
	Remember(ctx context.Context, offerID string, clientID string) error
}
