package entity

import (
	"time"

	"merchant-connect-layer/internal/domain"
)

// MongoWebhookEventDoc represents an inbound webhook in MongoDB
type MongoWebhookEventDoc struct {
	ID         string    `bson:"_id"`
	Provider   string    `bson:"provider"`
	TenantID   *string   `bson:"tenantId"`
	MerchantID string    `bson:"merchantId,omitempty"`
	Event      string    `bson:"event"`
	Payload    string    `bson:"payload"`
	CreatedAt  time.Time `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoWebhookEventDoc) ToDomain() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:         d.ID,
		Provider:   domain.Provider(d.Provider),
		TenantID:   d.TenantID,
		MerchantID: d.MerchantID,
		Event:      d.Event,
		Payload:    []byte(d.Payload),
		CreatedAt:  d.CreatedAt,
	}
}

// MongoWebhookEventDocFromDomain converts a domain entity to a MongoDB document
func MongoWebhookEventDocFromDomain(e *domain.WebhookEvent) *MongoWebhookEventDoc {
	return &MongoWebhookEventDoc{
		ID:         e.ID,
		Provider:   string(e.Provider),
		TenantID:   e.TenantID,
		MerchantID: e.MerchantID,
		Event:      e.Event,
		Payload:    string(e.Payload),
		CreatedAt:  e.CreatedAt,
	}
}

// MongoTenantDoc represents a tenant in MongoDB
type MongoTenantDoc struct {
	ID        string     `bson:"_id"`
	Name      string     `bson:"name"`
	Email     string     `bson:"email,omitempty"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoTenantDoc) ToDomain() *domain.Tenant {
	return &domain.Tenant{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		DeletedAt: d.DeletedAt,
		CreatedAt: d.CreatedAt,
	}
}

// MongoTenantDocFromDomain converts a domain entity to a MongoDB document
func MongoTenantDocFromDomain(t *domain.Tenant) *MongoTenantDoc {
	return &MongoTenantDoc{
		ID:        t.ID,
		Name:      t.Name,
		Email:     t.Email,
		DeletedAt: t.DeletedAt,
		CreatedAt: t.CreatedAt,
	}
}
