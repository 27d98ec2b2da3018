// internal/domain/payment/entity.go
package payment

import "time"

// Plan identifies a subscription plan.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

type SubscriptionKind string

const (
	SubscriptionAutoRecurring SubscriptionKind = "auto_recurring"
	SubscriptionOneTime       SubscriptionKind = "one_time"
)

// PlanPrice is one plan's price within a quote: the formatted amount the
// page shows and the raw amount in the country's minor currency unit.
type PlanPrice struct {
	DisplayAmount string  `json:"display_amount"`
	RawAmount     float64 `json:"raw_amount"`
}

// PricingQuote is a country-gated price sheet. It is fetched fresh per page
// visit and has no identity beyond the fetch that produced it.
type PricingQuote struct {
	CountryCode   string             `json:"country_code"`
	CurrencyLabel string             `json:"currency"`
	Plans         map[Plan]PlanPrice `json:"plans"`
}

// Has reports whether the quote prices the given plan.
func (q *PricingQuote) Has(plan Plan) bool {
	if q == nil {
		return false
	}
	_, ok := q.Plans[plan]
	return ok
}

// PendingPayment is the reference of a payment that has been initiated and
// redirected to the provider but not yet confirmed. It survives the
// round-trip to the provider in tab-scoped storage.
type PendingPayment struct {
	Reference string `json:"reference"`
	Plan      Plan   `json:"plan"`
}

// SubscriptionStatus is the backend's read-only view of the user's current
// subscription; the client consumes and forwards it, never computes it.
type SubscriptionStatus struct {
	Active        bool             `json:"active"`
	Plan          Plan             `json:"plan"`
	ExpiresAt     time.Time        `json:"expires_at"`
	DaysRemaining int              `json:"days_remaining"`
	InGracePeriod bool             `json:"in_grace_period"`
	AutoRenew     bool             `json:"auto_renew_enabled"`
	Kind          SubscriptionKind `json:"subscription_kind"`
}

// HistoryEntry is one row of the user's payment history.
type HistoryEntry struct {
	Reference string    `json:"reference"`
	Plan      Plan      `json:"plan"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paid_at"`
}
