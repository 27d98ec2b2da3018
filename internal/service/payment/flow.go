// Package payment orchestrates the subscription purchase: country
// detection, country-gated pricing, payment initiation, the redirect to the
// provider's hosted page and the status polling that reconciles the
// round-trip.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"surely-client/internal/domain/payment"
	"surely-client/internal/geo"
	"surely-client/internal/httpclient"
	"surely-client/internal/nav"
	xerrors "surely-client/internal/pkg/errors"
	"surely-client/internal/service/session"
	"surely-client/internal/storage"

	"go.uber.org/zap"
)

const pendingKey = "surely:pending_payment"

// referenceParams are the query parameter names providers use to hand the
// payment reference back on the return trip.
var referenceParams = []string{"reference", "trxref", "tx_ref", "transaction_id"}

const (
	defaultGraceDelay    = 2 * time.Second
	defaultPollInterval  = 5 * time.Second
	defaultRedirectDelay = time.Second
	defaultPollLimit     = 36
)

// State is the payment flow state.
type State int

const (
	StateIdle State = iota
	StateDetectingCountry
	StatePricingLoaded
	StateInitiating
	StateRedirecting
	StateVerifying
	StateSucceeded
	StateFailed
	StateError
)

// Outcome is the terminal classification of a verification run.
type Outcome int

const (
	// OutcomeSucceeded: payment confirmed, pending marker cleared.
	OutcomeSucceeded Outcome = iota
	// OutcomeFailed: the backend reported a terminal non-success status;
	// pending marker cleared.
	OutcomeFailed
	// OutcomeUnverified: verification could not complete (transport error,
	// malformed response or still pending at the poll limit). The pending
	// marker is kept so a reload retries verification.
	OutcomeUnverified
)

type Flow struct {
	api       *httpclient.Client
	geo       *geo.Client
	sessions  *session.Service
	state     storage.Store
	navigator nav.Navigator
	logger    *zap.Logger

	defaultCountry string

	graceDelay    time.Duration
	pollInterval  time.Duration
	redirectDelay time.Duration
	pollLimit     int
	sleep         func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	st      State
	quote   *payment.PricingQuote
	country string
	onState func(State)
}

func New(api *httpclient.Client, geoClient *geo.Client, sessions *session.Service, state storage.Store, navigator nav.Navigator, defaultCountry string, logger *zap.Logger) *Flow {
	return &Flow{
		api:            api,
		geo:            geoClient,
		sessions:       sessions,
		state:          state,
		navigator:      navigator,
		logger:         logger,
		defaultCountry: strings.ToUpper(defaultCountry),
		graceDelay:     defaultGraceDelay,
		pollInterval:   defaultPollInterval,
		redirectDelay:  defaultRedirectDelay,
		pollLimit:      defaultPollLimit,
		sleep:          sleepCtx,
		st:             StateIdle,
	}
}

// SetTimings overrides the verification grace delay, poll interval and
// pre-redirect delay.
func (f *Flow) SetTimings(grace, poll, redirect time.Duration) {
	f.graceDelay = grace
	f.pollInterval = poll
	f.redirectDelay = redirect
}

// SetPollLimit overrides the maximum number of status polls per
// verification run.
func (f *Flow) SetPollLimit(limit int) {
	f.pollLimit = limit
}

// SetStateListener registers the page-layer callback invoked on every state
// transition.
func (f *Flow) SetStateListener(fn func(State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

// Quote returns the last fetched pricing quote, if any.
func (f *Flow) Quote() *payment.PricingQuote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quote
}

// DetectCountry resolves the visitor's country via the geolocation service,
// falling back to the configured default on any failure.
func (f *Flow) DetectCountry(ctx context.Context) string {
	f.setState(StateDetectingCountry)

	code, err := f.geo.CountryCode(ctx)
	if err != nil {
		f.logger.Warn("country detection failed, using default",
			zap.String("default", f.defaultCountry), zap.Error(err))
		code = f.defaultCountry
	}

	f.mu.Lock()
	f.country = code
	f.mu.Unlock()
	return code
}

// LoadPricing fetches the price sheet for the detected country, retrying
// exactly once against the default country before surfacing an error. The
// quote is never cached across page visits.
func (f *Flow) LoadPricing(ctx context.Context) (*payment.PricingQuote, error) {
	country := f.countryOrDefault()

	quote, err := f.fetchPricing(ctx, country)
	if err != nil && country != f.defaultCountry {
		f.logger.Warn("pricing fetch failed, retrying with default country",
			zap.String("country", country), zap.Error(err))
		quote, err = f.fetchPricing(ctx, f.defaultCountry)
	}
	if err != nil {
		f.setState(StateError)
		return nil, err
	}

	f.mu.Lock()
	f.quote = quote
	f.mu.Unlock()
	f.setState(StatePricingLoaded)
	return quote, nil
}

func (f *Flow) fetchPricing(ctx context.Context, country string) (*payment.PricingQuote, error) {
	q := url.Values{"country_code": {country}}
	resp, err := f.api.Do(ctx, http.MethodGet, "/payments/pricing?"+q.Encode(), nil, false)
	if err != nil {
		return nil, err
	}
	var quote payment.PricingQuote
	if err := resp.DecodeJSON(&quote); err != nil {
		return nil, xerrors.New(xerrors.KindRequest, "unexpected pricing response")
	}
	return &quote, nil
}

// Initiate starts a hosted payment for a plan present in the current quote.
// On success the pending payment is persisted and, after a short
// user-visible redirecting state, navigation moves to the provider's
// authorization URL.
func (f *Flow) Initiate(ctx context.Context, plan payment.Plan, enableAutoRenew bool) (*payment.InitiateResponse, error) {
	f.mu.Lock()
	quote := f.quote
	f.mu.Unlock()

	if plan == "" || !quote.Has(plan) {
		return nil, xerrors.Validation("please select an available plan")
	}

	f.setState(StateInitiating)

	body := payment.InitiateRequest{
		Plan:            strings.ToLower(string(plan)),
		CountryCode:     f.countryOrDefault(),
		EnableAutoRenew: enableAutoRenew,
	}
	resp, err := f.api.Do(ctx, http.MethodPost, "/payments/initiate", body, true)
	if err != nil {
		f.setState(StateError)
		return nil, err
	}

	var ir payment.InitiateResponse
	if err := resp.DecodeJSON(&ir); err != nil {
		f.setState(StateError)
		return nil, xerrors.New(xerrors.KindRequest, "unexpected initiation response")
	}
	if ir.AuthorizationURL == "" || ir.Reference == "" {
		f.setState(StateError)
		return nil, xerrors.New(xerrors.KindRequest, "payment initiation returned no authorization details")
	}

	if err := f.writePending(ctx, payment.PendingPayment{Reference: ir.Reference, Plan: plan}); err != nil {
		f.setState(StateError)
		return nil, xerrors.New(xerrors.KindRequest, "could not track the payment")
	}

	f.logger.Info("payment initiated",
		zap.String("plan", body.Plan),
		zap.String("reference", ir.Reference),
	)

	f.setState(StateRedirecting)
	if err := f.sleep(ctx, f.redirectDelay); err != nil {
		return &ir, nil
	}
	f.navigator.Assign(ir.AuthorizationURL)
	return &ir, nil
}

// ReturnReference detects a provider return trip: a reference under any of
// the provider aliases in the query string, falling back to the persisted
// pending payment. Absence means a normal page load.
func (f *Flow) ReturnReference(ctx context.Context) (string, bool) {
	query := f.navigator.Query()
	for _, param := range referenceParams {
		if ref := query.Get(param); ref != "" {
			return ref, true
		}
	}
	if pending, ok := f.readPending(ctx); ok {
		return pending.Reference, true
	}
	return "", false
}

// Verify polls the payment status until a terminal classification. The
// first poll waits a grace delay so the backend's webhook processing can
// land; "pending" reschedules up to the poll limit.
func (f *Flow) Verify(ctx context.Context, reference string) (Outcome, error) {
	f.setState(StateVerifying)

	if err := f.sleep(ctx, f.graceDelay); err != nil {
		f.setState(StateError)
		return OutcomeUnverified, xerrors.New(xerrors.KindNetwork, "verification cancelled")
	}

	for attempt := 1; ; attempt++ {
		resp, err := f.api.Do(ctx, http.MethodGet, "/payments/status/"+url.PathEscape(reference), nil, true)
		if err != nil {
			// Transport-level trouble is not a business failure: keep the
			// pending marker so a reload retries verification.
			f.setState(StateError)
			return OutcomeUnverified, err
		}

		var sr payment.StatusResponse
		if err := resp.DecodeJSON(&sr); err != nil {
			f.setState(StateError)
			return OutcomeUnverified, xerrors.New(xerrors.KindRequest, "unexpected status response")
		}

		switch strings.ToLower(sr.Status) {
		case "success":
			f.clearPending(ctx)
			f.setState(StateSucceeded)
			f.refreshAfterSuccess(ctx)
			return OutcomeSucceeded, nil

		case "pending":
			if attempt >= f.pollLimit {
				f.logger.Warn("verification still pending at poll limit",
					zap.String("reference", reference), zap.Int("polls", attempt))
				f.setState(StateError)
				return OutcomeUnverified, xerrors.New(xerrors.KindTimeout,
					"we could not verify the payment yet, contact support if you were charged")
			}
			if err := f.sleep(ctx, f.pollInterval); err != nil {
				f.setState(StateError)
				return OutcomeUnverified, xerrors.New(xerrors.KindNetwork, "verification cancelled")
			}

		default:
			f.clearPending(ctx)
			f.setState(StateFailed)
			f.logger.Info("payment failed",
				zap.String("reference", reference), zap.String("status", sr.Status))
			return OutcomeFailed, nil
		}
	}
}

// CurrentSubscription fetches the authenticated user's subscription view.
func (f *Flow) CurrentSubscription(ctx context.Context) (*payment.SubscriptionStatus, error) {
	resp, err := f.api.Do(ctx, http.MethodGet, "/payments/me", nil, true)
	if err != nil {
		return nil, err
	}
	var status payment.SubscriptionStatus
	if err := resp.DecodeJSON(&status); err != nil {
		return nil, xerrors.New(xerrors.KindRequest, "unexpected subscription response")
	}
	return &status, nil
}

// History fetches the user's payment history.
func (f *Flow) History(ctx context.Context) ([]payment.HistoryEntry, error) {
	resp, err := f.api.Do(ctx, http.MethodGet, "/payments/history", nil, true)
	if err != nil {
		return nil, err
	}
	var hr payment.HistoryResponse
	if err := resp.DecodeJSON(&hr); err == nil && hr.Payments != nil {
		return hr.Payments, nil
	}
	var entries []payment.HistoryEntry
	if err := resp.DecodeJSON(&entries); err != nil {
		return nil, xerrors.New(xerrors.KindRequest, "unexpected history response")
	}
	return entries, nil
}

func (f *Flow) refreshAfterSuccess(ctx context.Context) {
	if _, ok := f.sessions.LoadCurrentUser(ctx); !ok {
		f.logger.Warn("profile refresh after payment failed")
	}
	if _, err := f.CurrentSubscription(ctx); err != nil {
		f.logger.Warn("subscription refresh after payment failed", zap.Error(err))
	}
}

func (f *Flow) countryOrDefault() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.country != "" {
		return strings.ToUpper(f.country)
	}
	return f.defaultCountry
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.st = s
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *Flow) readPending(ctx context.Context) (*payment.PendingPayment, bool) {
	raw, found, err := f.state.Get(ctx, pendingKey)
	if err != nil || !found {
		return nil, false
	}
	var pending payment.PendingPayment
	if err := json.Unmarshal([]byte(raw), &pending); err != nil || pending.Reference == "" {
		return nil, false
	}
	return &pending, true
}

func (f *Flow) writePending(ctx context.Context, pending payment.PendingPayment) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending payment: %w", err)
	}
	return f.state.Set(ctx, pendingKey, string(data))
}

func (f *Flow) clearPending(ctx context.Context) {
	if err := f.state.Delete(ctx, pendingKey); err != nil {
		f.logger.Warn("failed to clear pending payment", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
