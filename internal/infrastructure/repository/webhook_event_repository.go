package repository

import (
	"context"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoWebhookEventRepository implements ports.WebhookEventRepository using MongoDB
type MongoWebhookEventRepository struct {
	collection *mongo.Collection
}

// NewMongoWebhookEventRepository creates a new MongoDB webhook event repository
func NewMongoWebhookEventRepository(db *mongo.Database) *MongoWebhookEventRepository {
	return &MongoWebhookEventRepository{
		collection: db.Collection("webhook_events"),
	}
}

// EnsureIndexes creates the indexes used by the recovery queries
func (r *MongoWebhookEventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "merchantId", Value: 1}}},
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "tenantId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create webhook event indexes: %w", err)
	}
	return nil
}

// Append logs a webhook event
func (r *MongoWebhookEventRepository) Append(ctx context.Context, event *domain.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := entity.MongoWebhookEventDocFromDomain(event)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}
	return nil
}

// DistinctTenantIDs returns the tenant ids seen in the provider's webhook history
func (r *MongoWebhookEventRepository) DistinctTenantIDs(ctx context.Context, provider domain.Provider, merchantHint string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"provider": string(provider),
		"tenantId": bson.M{"$type": "string"},
	}
	if merchantHint != "" {
		filter["merchantId"] = merchantHint
	}

	values, err := r.collection.Distinct(ctx, "tenantId", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook tenants: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
