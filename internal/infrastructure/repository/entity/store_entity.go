package entity

import (
	"time"

	"merchant-connect-layer/internal/domain"
)

// MongoStoreDoc represents a store in MongoDB.
// IsActive mirrors DeletedAt == nil so the unique index can be partial.
type MongoStoreDoc struct {
	ID           string  `bson:"_id"`
	TenantID     *string `bson:"tenantId"`
	Provider     string  `bson:"provider"`
	MerchantID   *string `bson:"merchantId"`
	ProviderUUID string  `bson:"providerUuid,omitempty"`

	AccessToken        string     `bson:"accessToken"`
	RefreshToken       string     `bson:"refreshToken"`
	AuthorizationToken string     `bson:"authorizationToken"`
	TokenExpiresAt     *time.Time `bson:"tokenExpiresAt"`
	LastTokenRefreshAt *time.Time `bson:"lastTokenRefreshAt,omitempty"`

	Status            string     `bson:"status"`
	ConsecutiveErrors int        `bson:"consecutiveErrors"`
	LastError         string     `bson:"lastError,omitempty"`
	LastErrorAt       *time.Time `bson:"lastErrorAt,omitempty"`

	Name     string `bson:"name"`
	Email    string `bson:"email,omitempty"`
	Phone    string `bson:"phone,omitempty"`
	Domain   string `bson:"domain,omitempty"`
	LogoURL  string `bson:"logoUrl,omitempty"`
	Plan     string `bson:"plan,omitempty"`
	Currency string `bson:"currency,omitempty"`
	Locale   string `bson:"locale,omitempty"`

	OrdersCount    int64      `bson:"ordersCount"`
	ProductsCount  int64      `bson:"productsCount"`
	CustomersCount int64      `bson:"customersCount"`
	StatsSyncedAt  *time.Time `bson:"statsSyncedAt,omitempty"`

	IsActive  bool       `bson:"isActive"`
	DeletedAt *time.Time `bson:"deletedAt"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoStoreDoc) ToDomain() *domain.Store {
	return &domain.Store{
		ID:                          d.ID,
		TenantID:                    d.TenantID,
		Provider:                    domain.Provider(d.Provider),
		MerchantID:                  d.MerchantID,
		ProviderUUID:                d.ProviderUUID,
		EncryptedAccessToken:        d.AccessToken,
		EncryptedRefreshToken:       d.RefreshToken,
		EncryptedAuthorizationToken: d.AuthorizationToken,
		TokenExpiresAt:              d.TokenExpiresAt,
		LastTokenRefreshAt:          d.LastTokenRefreshAt,
		Status:                      domain.StoreStatus(d.Status),
		ConsecutiveErrors:           d.ConsecutiveErrors,
		LastError:                   d.LastError,
		LastErrorAt:                 d.LastErrorAt,
		Name:                        d.Name,
		Email:                       d.Email,
		Phone:                       d.Phone,
		Domain:                      d.Domain,
		LogoURL:                     d.LogoURL,
		Plan:                        d.Plan,
		Currency:                    d.Currency,
		Locale:                      d.Locale,
		OrdersCount:                 d.OrdersCount,
		ProductsCount:               d.ProductsCount,
		CustomersCount:              d.CustomersCount,
		StatsSyncedAt:               d.StatsSyncedAt,
		DeletedAt:                   d.DeletedAt,
		CreatedAt:                   d.CreatedAt,
		UpdatedAt:                   d.UpdatedAt,
	}
}

// MongoStoreDocFromDomain converts a domain entity to a MongoDB document
func MongoStoreDocFromDomain(s *domain.Store) *MongoStoreDoc {
	return &MongoStoreDoc{
		ID:                 s.ID,
		TenantID:           s.TenantID,
		Provider:           string(s.Provider),
		MerchantID:         s.MerchantID,
		ProviderUUID:       s.ProviderUUID,
		AccessToken:        s.EncryptedAccessToken,
		RefreshToken:       s.EncryptedRefreshToken,
		AuthorizationToken: s.EncryptedAuthorizationToken,
		TokenExpiresAt:     s.TokenExpiresAt,
		LastTokenRefreshAt: s.LastTokenRefreshAt,
		Status:             string(s.Status),
		ConsecutiveErrors:  s.ConsecutiveErrors,
		LastError:          s.LastError,
		LastErrorAt:        s.LastErrorAt,
		Name:               s.Name,
		Email:              s.Email,
		Phone:              s.Phone,
		Domain:             s.Domain,
		LogoURL:            s.LogoURL,
		Plan:               s.Plan,
		Currency:           s.Currency,
		Locale:             s.Locale,
		OrdersCount:        s.OrdersCount,
		ProductsCount:      s.ProductsCount,
		CustomersCount:     s.CustomersCount,
		StatsSyncedAt:      s.StatsSyncedAt,
		IsActive:           s.DeletedAt == nil,
		DeletedAt:          s.DeletedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
