package clicks

import (
	"context"
	"fmt"
	"strings"

	"github.com/servineo/billing/pkg/wallet"
)

const (
	// DefaultClickFeeCents is charged per billable click.
	DefaultClickFeeCents wallet.AmountCents = 10
	// DefaultMinimumWalletBalanceCents applies when the settings store
	// has no override.
	DefaultMinimumWalletBalanceCents wallet.AmountCents = 200

	// DefaultStatsWindowDays bounds ClickStats when the caller passes a
	// non-positive window.
	DefaultStatsWindowDays = 30

	secondsPerDay = int64(24 * 60 * 60)
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithDuplicateGuard wires a fast-path duplicate cache.
func WithDuplicateGuard(guard DuplicateGuard) ServiceOption {
	return func(service *Service) {
		service.guard = guard
	}
}

// Service converts click events into policy-gated ledger debits.
type Service struct {
	store    Store
	ledger   Ledger
	settings Settings
	guard    DuplicateGuard
	policy   Policy
	nowFn    func() int64
}

// NewService wires a Service. The settings dependency may be nil, in
// which case the default minimum balance applies.
func NewService(store Store, ledger Ledger, settings Settings, policy Policy, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if policy.ClickFeeCents <= 0 {
		return nil, fmt.Errorf("%w: click fee must be positive", ErrInvalidPolicy)
	}
	service := &Service{store: store, ledger: ledger, settings: settings, policy: policy, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// RecordClickAndCharge bills one client-clicks-offer event: it resolves
// the offer, refuses duplicates per (offer, client), applies the
// minimum-balance and affordability gates, and atomically pairs the
// click event with a ledger debit referencing it. A failed charge never
// leaves a click event behind.
func (service *Service) RecordClickAndCharge(ctx context.Context, params ClickParams) (ClickEvent, error) {
	offerID := strings.TrimSpace(params.OfferID)
	if offerID == "" {
		return ClickEvent{}, fmt.Errorf("%w: empty value", ErrInvalidOfferID)
	}
	clientID := strings.TrimSpace(params.ClientID)
	if clientID == "" {
		return ClickEvent{}, fmt.Errorf("%w: empty value", ErrInvalidClientID)
	}
	clickType, err := ParseClickType(params.Type.String())
	if err != nil {
		return ClickEvent{}, err
	}

	if service.guard != nil {
		seen, guardErr := service.guard.Seen(ctx, offerID, clientID)
		if guardErr == nil && seen {
			return ClickEvent{}, ErrDuplicateClick
		}
		// A guard failure degrades to the authoritative store check.
	}

	var event ClickEvent
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		offer, err := txStore.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		exists, err := txStore.ClickExists(ctx, offerID, clientID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateClick
		}
		professionalID, err := wallet.NewProfessionalID(offer.ProfessionalID)
		if err != nil {
			return err
		}
		owned, err := service.ledger.GetOrCreateWallet(ctx, professionalID)
		if err != nil {
			return err
		}
		if err := service.applyBalanceGates(ctx, owned.BalanceCents); err != nil {
			return err
		}
		event, err = txStore.InsertClickEvent(ctx, ClickEvent{
			OfferID:        offerID,
			ClientID:       clientID,
			ProfessionalID: offer.ProfessionalID,
			Type:           clickType,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		_, err = service.ledger.DebitWallet(ctx, wallet.DebitParams{
			ProfessionalID: professionalID,
			AmountCents:    service.policy.ClickFeeCents,
			Description:    clickType.Description(),
			ReferenceID:    event.ClickID,
		})
		return err
	})
	if err != nil {
		return ClickEvent{}, err
	}
	if service.guard != nil {
		// Best effort; the unique constraint remains the authority.
		_ = service.guard.Remember(ctx, offerID, clientID)
	}
	return event, nil
}

// CanProcessClick re-runs the balance gates without mutating anything,
// for UI gating. The two failure modes carry distinct reasons.
func (service *Service) CanProcessClick(ctx context.Context, professionalID wallet.ProfessionalID) (Decision, error) {
	owned, err := service.ledger.GetOrCreateWallet(ctx, professionalID)
	if err != nil {
		return Decision{}, err
	}
	minimum, err := service.minimumBalance(ctx)
	if err != nil {
		return Decision{}, err
	}
	if owned.BalanceCents < minimum {
		return Decision{
			CanProcess: false,
			Reason:     fmt.Sprintf("wallet balance %d is below the minimum requirement of %d cents", owned.BalanceCents, minimum),
		}, nil
	}
	if owned.BalanceCents < service.policy.ClickFeeCents {
		return Decision{
			CanProcess: false,
			Reason:     fmt.Sprintf("wallet balance %d cannot cover the %d cent click fee", owned.BalanceCents, service.policy.ClickFeeCents),
		}, nil
	}
	return Decision{CanProcess: true}, nil
}

// applyBalanceGates enforces the stay-visible minimum before the plain
// affordability check; both failures surface as insufficient balance
// with the amount the gate needed.
func (service *Service) applyBalanceGates(ctx context.Context, balance wallet.AmountCents) error {
	minimum, err := service.minimumBalance(ctx)
	if err != nil {
		return err
	}
	if balance < minimum {
		return wallet.NewInsufficientBalanceError(balance, minimum)
	}
	if balance < service.policy.ClickFeeCents {
		return wallet.NewInsufficientBalanceError(balance, service.policy.ClickFeeCents)
	}
	return nil
}

func (service *Service) minimumBalance(ctx context.Context) (wallet.AmountCents, error) {
	if service.settings == nil {
		return DefaultMinimumWalletBalanceCents, nil
	}
	minimum, err := service.settings.MinimumWalletBalanceCents(ctx)
	if err != nil {
		return 0, err
	}
	if minimum <= 0 {
		return DefaultMinimumWalletBalanceCents, nil
	}
	return minimum, nil
}
