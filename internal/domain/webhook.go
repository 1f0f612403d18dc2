package domain

import "time"

// WebhookEvent is one inbound webhook delivery, appended to the event log
type WebhookEvent struct {
	ID         string    `json:"id"`
	Provider   Provider  `json:"provider"`
	TenantID   *string   `json:"tenant_id,omitempty"`
	MerchantID string    `json:"merchant_id,omitempty"` // hint extracted from payload
	Event      string    `json:"event"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebhookSubscription is a provider-held subscription. It is never persisted locally.
type WebhookSubscription struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	TargetURL string `json:"target_url"`
	Active    bool   `json:"active"`
}

// RegistrationResult reports the outcome of a full webhook re-registration
type RegistrationResult struct {
	Registered []string `json:"registered"`
	Failed     []string `json:"failed"`
	Inactive   []string `json:"inactive,omitempty"`
}
