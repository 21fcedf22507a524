package httpapi

// WalletEnvelope wraps wallet payloads returned by the API endpoints.
type WalletEnvelope struct {
	Wallet WalletPayload `json:"wallet"`
}

// WalletPayload describes the wallet balance and transaction history.
type WalletPayload struct {
	WalletID       string               `json:"wallet_id"`
	ProfessionalID string               `json:"professional_id"`
	BalanceCents   int64                `json:"balance_cents"`
	Transactions   []TransactionPayload `json:"transactions"`
}

// TransactionPayload mirrors the ledger transaction contract for the UI.
type TransactionPayload struct {
	TransactionID      string `json:"transaction_id"`
	Type               string `json:"type"`
	AmountCents        int64  `json:"amount_cents"`
	Description        string `json:"description"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	ReferenceID        string `json:"reference_id,omitempty"`
	Pending            bool   `json:"pending"`
	CreatedUnixUTC     int64  `json:"created_unix_utc"`
}

// DepositRequest starts a deposit against a provider checkout session.
type DepositRequest struct {
	AmountCents       int64  `json:"amount_cents"`
	CheckoutSessionID string `json:"checkout_session_id"`
}

// DepositEnvelope reports a reconciliation outcome.
type DepositEnvelope struct {
	Status      string              `json:"status"`
	Transaction *TransactionPayload `json:"transaction,omitempty"`
}

// ClickRequest bills one click against an offer.
type ClickRequest struct {
	OfferID   string `json:"offer_id"`
	ClickType string `json:"click_type"`
}

// ClickEnvelope returns the recorded click event.
type ClickEnvelope struct {
	ClickID        string `json:"click_id"`
	OfferID        string `json:"offer_id"`
	ClientID       string `json:"client_id"`
	ProfessionalID string `json:"professional_id"`
	Type           string `json:"type"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

// StatsEnvelope aggregates clicks over a trailing window.
type StatsEnvelope struct {
	TotalClicks    int64             `json:"total_clicks"`
	TotalCostCents int64             `json:"total_cost_cents"`
	ClicksByDay    []DayCountPayload `json:"clicks_by_day"`
}

// DayCountPayload is one histogram bucket.
type DayCountPayload struct {
	Day    string `json:"day"`
	Clicks int64  `json:"clicks"`
}

// EligibilityEnvelope is the dry-run answer for UI gating.
type EligibilityEnvelope struct {
	CanProcess bool   `json:"can_process"`
	Reason     string `json:"reason,omitempty"`
}

// AdjustmentRequest credits a professional's wallet manually.
type AdjustmentRequest struct {
	ProfessionalID string `json:"professional_id"`
	AmountCents    int64  `json:"amount_cents"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	Note           string `json:"note"`
}

// MinimumBalanceRequest overrides the platform minimum-balance policy.
type MinimumBalanceRequest struct {
	MinimumCents int64 `json:"minimum_cents"`
}

// ErrorEnvelope encodes API errors.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload contains the code and message for user-visible errors.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
