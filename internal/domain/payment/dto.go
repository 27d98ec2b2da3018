// internal/domain/payment/dto.go
package payment

// InitiateRequest starts a hosted payment. Plan is lowercased and the
// country code uppercased before sending.
type InitiateRequest struct {
	Plan            string `json:"plan"`
	CountryCode     string `json:"country_code"`
	EnableAutoRenew bool   `json:"enable_auto_renew"`
}

// InitiateResponse carries the provider redirect. Both fields are required;
// the absence of either is a hard error.
type InitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	Message          string `json:"message,omitempty"`
}

// StatusResponse is the payment status endpoint's envelope. Status is one of
// "success", "pending", or a provider-specific failure value.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HistoryResponse wraps GET /payments/history.
type HistoryResponse struct {
	Payments []HistoryEntry `json:"payments"`
}
