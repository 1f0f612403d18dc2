package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/repository/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queryTimeout = 5 * time.Second

// MongoStoreRepository implements ports.StoreRepository using MongoDB
type MongoStoreRepository struct {
	collection *mongo.Collection
}

// NewMongoStoreRepository creates a new MongoDB store repository
func NewMongoStoreRepository(db *mongo.Database) *MongoStoreRepository {
	return &MongoStoreRepository{
		collection: db.Collection("stores"),
	}
}

// EnsureIndexes creates the lookup indexes and the partial unique index that
// allows one live store per (provider, merchantId)
func (r *MongoStoreRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "merchantId", Value: 1}},
			Options: options.Index().
				SetName("uniq_live_provider_merchant").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"isActive":   true,
					"merchantId": bson.M{"$type": "string"},
				}),
		},
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "providerUuid", Value: 1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "provider", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create store indexes: %w", err)
	}
	return nil
}

// Create inserts a new store
func (r *MongoStoreRepository) Create(ctx context.Context, store *domain.Store) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := entity.MongoStoreDocFromDomain(store)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateStore
		}
		return fmt.Errorf("failed to create store: %w", err)
	}
	return nil
}

// Update replaces the stored document
func (r *MongoStoreRepository) Update(ctx context.Context, store *domain.Store) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := entity.MongoStoreDocFromDomain(store)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": store.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateStore
		}
		return fmt.Errorf("failed to update store: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStoreNotFound
	}
	return nil
}

// GetByID retrieves a store by its id, deleted or not
func (r *MongoStoreRepository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// FindByMerchantID retrieves the live store for a provider merchant
func (r *MongoStoreRepository) FindByMerchantID(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	return r.findOne(ctx, bson.M{
		"provider":   string(provider),
		"merchantId": merchantID,
		"isActive":   true,
	}, nil)
}

// FindDeletedByMerchantID retrieves the most recently deleted store for a provider merchant
func (r *MongoStoreRepository) FindDeletedByMerchantID(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "deletedAt", Value: -1}})
	return r.findOne(ctx, bson.M{
		"provider":   string(provider),
		"merchantId": merchantID,
		"isActive":   false,
	}, opts)
}

// FindByProviderUUID retrieves the live store for a provider uuid
func (r *MongoStoreRepository) FindByProviderUUID(ctx context.Context, provider domain.Provider, providerUUID string) (*domain.Store, error) {
	return r.findOne(ctx, bson.M{
		"provider":     string(provider),
		"providerUuid": providerUUID,
		"isActive":     true,
	}, nil)
}

// ListByTenant retrieves the live stores of a tenant. An empty provider lists all providers.
func (r *MongoStoreRepository) ListByTenant(ctx context.Context, tenantID string, provider domain.Provider) ([]*domain.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"tenantId": tenantID, "isActive": true}
	if provider != "" {
		filter["provider"] = string(provider)
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer cursor.Close(ctx)

	var stores []*domain.Store
	for cursor.Next(ctx) {
		var doc entity.MongoStoreDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode store: %w", err)
		}
		stores = append(stores, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return stores, nil
}

func (r *MongoStoreRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc entity.MongoStoreDoc
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return doc.ToDomain(), nil
}
