package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoTenantRepository implements ports.TenantDirectory using MongoDB
type MongoTenantRepository struct {
	collection *mongo.Collection
}

// NewMongoTenantRepository creates a new MongoDB tenant repository
func NewMongoTenantRepository(db *mongo.Database) *MongoTenantRepository {
	return &MongoTenantRepository{
		collection: db.Collection("tenants"),
	}
}

// FindTenant retrieves a tenant by id
func (r *MongoTenantRepository) FindTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc entity.MongoTenantDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return doc.ToDomain(), nil
}

// CreateTenant creates a tenant named after the store profile
func (r *MongoTenantRepository) CreateTenant(ctx context.Context, profile *domain.StoreProfile) (*domain.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tenant := newTenant(profile)
	if _, err := r.collection.InsertOne(ctx, entity.MongoTenantDocFromDomain(tenant)); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

func newTenant(profile *domain.StoreProfile) *domain.Tenant {
	return &domain.Tenant{
		ID:        uuid.NewString(),
		Name:      profile.Name,
		Email:     profile.Email,
		CreatedAt: time.Now(),
	}
}
