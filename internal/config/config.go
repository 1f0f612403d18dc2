package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"merchant-connect-layer/internal/application"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"
)

// ProviderConfig holds one provider's OAuth client registration
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AppID        string
	// WebhookSecret verifies inbound deliveries when set
	WebhookSecret string
}

// Enabled reports whether the provider has credentials
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Config holds the service configuration
type Config struct {
	Port     string
	AppURL   string
	LogLevel string

	MongoURI      string
	MongoDatabase string

	// RedisAddr enables the shared state store and the asynq task queue
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EncryptionKey string
	DashboardURL  string
	// AdminToken guards the admin routes. Empty disables them.
	AdminToken string

	WebhookSettleDelay time.Duration
	WorkerConcurrency  int
	// ProviderTimeout bounds each outbound provider call
	ProviderTimeout time.Duration
	// CallbackTimeout bounds code exchange plus profile fetch on the OAuth callback
	CallbackTimeout time.Duration

	Salla ProviderConfig
	Zid   ProviderConfig
	Other ProviderConfig
	// OtherScopes is the comma separated scope list for the generic provider
	OtherScopes string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	settle, err := getDuration("WEBHOOK_SETTLE_DELAY", application.DefaultSettleDelay)
	if err != nil {
		return nil, err
	}
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	concurrency, err := getInt("WORKER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := getDuration("PROVIDER_TIMEOUT", httpx.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	callbackTimeout, err := getDuration("CALLBACK_TIMEOUT", application.DefaultCallbackTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		AppURL:   strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "merchant_connect"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		DashboardURL:  getEnv("DASHBOARD_URL", "http://localhost:5173"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),

		WebhookSettleDelay: settle,
		WorkerConcurrency:  concurrency,
		ProviderTimeout:    providerTimeout,
		CallbackTimeout:    callbackTimeout,

		Salla: ProviderConfig{
			ClientID:      os.Getenv("SALLA_CLIENT_ID"),
			ClientSecret:  os.Getenv("SALLA_CLIENT_SECRET"),
			AppID:         os.Getenv("SALLA_APP_ID"),
			WebhookSecret: os.Getenv("SALLA_WEBHOOK_SECRET"),
		},
		Zid: ProviderConfig{
			ClientID:      os.Getenv("ZID_CLIENT_ID"),
			ClientSecret:  os.Getenv("ZID_CLIENT_SECRET"),
			AppID:         os.Getenv("ZID_APP_ID"),
			WebhookSecret: os.Getenv("ZID_WEBHOOK_SECRET"),
		},
		Other: ProviderConfig{
			ClientID:     os.Getenv("OTHER_API_KEY"),
			ClientSecret: os.Getenv("OTHER_API_SECRET"),
			// the generic provider signs webhooks with the app secret
			WebhookSecret: os.Getenv("OTHER_API_SECRET"),
		},
		OtherScopes: getEnv("OTHER_SCOPES", "read_products,read_orders,read_customers"),
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY environment variable is required")
	}
	if cfg.ProviderTimeout <= 0 || cfg.CallbackTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT and CALLBACK_TIMEOUT must be positive")
	}
	return cfg, nil
}

// RedirectURL is the OAuth callback registered with a provider
func (c *Config) RedirectURL(provider string) string {
	return c.AppURL + "/oauth/" + provider + "/callback"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
