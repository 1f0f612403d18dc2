package application

// Background task types
const (
	TaskRegisterWebhooks    = "webhooks:register"
	TaskEnrichAuthorization = "tokens:enrich_authorization"
)

// StoreTaskPayload is the payload of every store scoped task
type StoreTaskPayload struct {
	StoreID string `json:"store_id"`
}
