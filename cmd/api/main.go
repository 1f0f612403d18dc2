package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"merchant-connect-layer/internal/application"
	"merchant-connect-layer/internal/application/webhook_handlers"
	"merchant-connect-layer/internal/config"
	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/api"
	"merchant-connect-layer/internal/infrastructure/encryption"
	"merchant-connect-layer/internal/infrastructure/metrics"
	"merchant-connect-layer/internal/infrastructure/onboarding"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"
	"merchant-connect-layer/internal/infrastructure/providers/other"
	"merchant-connect-layer/internal/infrastructure/providers/salla"
	"merchant-connect-layer/internal/infrastructure/providers/zid"
	"merchant-connect-layer/internal/infrastructure/pubsub"
	"merchant-connect-layer/internal/infrastructure/repository"
	"merchant-connect-layer/internal/infrastructure/state"
	"merchant-connect-layer/internal/infrastructure/tasks"
	"merchant-connect-layer/internal/ports"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg(".env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(cfg.MongoDatabase)

	storeRepo := repository.NewMongoStoreRepository(db)
	eventRepo := repository.NewMongoWebhookEventRepository(db)
	tenantRepo := repository.NewMongoTenantRepository(db)
	if err := storeRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create store indexes")
	}
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create webhook event indexes")
	}

	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	recorder := metrics.NewRecorder()

	// Shared state and background work run on Redis when configured
	var (
		stateStore ports.StateStore
		queue      ports.TaskQueue
		localQueue *tasks.LocalQueue
		redisOpt   asynq.RedisClientOpt
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		stateStore = state.NewRedisStore(redisClient)

		redisOpt = asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		asynqQueue := tasks.NewAsynqQueue(redisOpt, logger)
		defer asynqQueue.Close()
		queue = asynqQueue
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, using in-process state store and task queue")
		stateStore = state.NewMemoryStore()
		localQueue = tasks.NewLocalQueue(256, cfg.WorkerConcurrency, recorder, logger)
		queue = localQueue
	}

	// Provider adapters, only for providers with credentials
	var (
		adapters     []ports.ProviderAdapter
		webhookAPIs  []ports.WebhookAPI
		verifiers    = map[domain.Provider]api.WebhookVerifier{}
		appIDs       = map[domain.Provider]string{}
		otherAdapter *other.Adapter
	)
	if cfg.Salla.Enabled() {
		a := salla.NewAdapter(salla.Config{
			ClientID:     cfg.Salla.ClientID,
			ClientSecret: cfg.Salla.ClientSecret,
			RedirectURL:  cfg.RedirectURL(string(domain.ProviderSalla)),
		}, httpx.NewClient(domain.ProviderSalla, cfg.ProviderTimeout, logger), logger)
		adapters = append(adapters, a)
		webhookAPIs = append(webhookAPIs, a)
		verifiers[domain.ProviderSalla] = api.HMACVerifier{Header: "X-Salla-Signature", Secret: cfg.Salla.WebhookSecret}
		if cfg.Salla.WebhookSecret == "" {
			logger.Warn().Msg("SALLA_WEBHOOK_SECRET not set, salla webhooks will be rejected")
		}
		appIDs[domain.ProviderSalla] = cfg.Salla.AppID
	}
	if cfg.Zid.Enabled() {
		a := zid.NewAdapter(zid.Config{
			ClientID:     cfg.Zid.ClientID,
			ClientSecret: cfg.Zid.ClientSecret,
			RedirectURL:  cfg.RedirectURL(string(domain.ProviderZid)),
		}, httpx.NewClient(domain.ProviderZid, cfg.ProviderTimeout, logger), logger)
		adapters = append(adapters, a)
		webhookAPIs = append(webhookAPIs, a)
		verifiers[domain.ProviderZid] = api.HMACVerifier{Header: "X-Zid-Signature", Secret: cfg.Zid.WebhookSecret}
		if cfg.Zid.WebhookSecret == "" {
			logger.Warn().Msg("ZID_WEBHOOK_SECRET not set, zid webhooks will be rejected")
		}
		appIDs[domain.ProviderZid] = cfg.Zid.AppID
	}
	if cfg.Other.Enabled() {
		otherAdapter = other.NewAdapter(other.Config{
			APIKey:      cfg.Other.ClientID,
			APISecret:   cfg.Other.ClientSecret,
			RedirectURL: cfg.RedirectURL(string(domain.ProviderOther)),
			Scopes:      strings.Split(cfg.OtherScopes, ","),
		}, &http.Client{Timeout: cfg.ProviderTimeout}, logger)
		adapters = append(adapters, otherAdapter)
		webhookAPIs = append(webhookAPIs, otherAdapter)
		verifiers[domain.ProviderOther] = api.RequestVerifierFunc(otherAdapter.VerifyWebhook)
	}
	if len(adapters) == 0 {
		logger.Warn().Msg("No provider credentials configured")
	}

	// Initialize application services
	issuer := application.NewStateIssuer(stateStore, logger)
	resolver := application.NewIdentityResolver(storeRepo, eventRepo, tenantRepo, encryptionService, recorder, logger)
	tokens := application.NewTokenLifecycle(storeRepo, encryptionService, adapters, queue, recorder, logger)
	webhookManager := application.NewWebhookManager(webhookAPIs, cfg.WebhookSettleDelay, recorder, logger)

	connectService := application.NewConnectService(
		adapters,
		issuer,
		resolver,
		tokens,
		webhookManager,
		storeRepo,
		tenantRepo,
		onboarding.NewLogProvisioner(logger),
		queue,
		encryptionService,
		application.ConnectConfig{
			WebhookBaseURL:  cfg.AppURL,
			AppIDs:          appIDs,
			CallbackTimeout: cfg.CallbackTimeout,
		},
		recorder,
		logger,
	)

	// Background task processing
	if localQueue != nil {
		for taskType, handler := range connectService.TaskHandlers() {
			localQueue.Handle(taskType, handler)
		}
		localQueue.Start(ctx)
		defer localQueue.Close()
	} else {
		worker := tasks.NewAsynqWorker(redisOpt, cfg.WorkerConcurrency, connectService.TaskHandlers(), recorder, logger)
		if err := worker.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start task worker")
		}
		defer worker.Shutdown()
	}

	// Initialize webhook ingestion and register handlers
	webhookPubSub := pubsub.NewWebhookPubSub(logger)
	ingestService := application.NewWebhookIngestService(eventRepo, resolver, recorder, logger)
	ingestService.RegisterHandler(webhook_handlers.NewAppUninstalledHandler(logger, connectService))
	ingestService.RegisterHandler(webhook_handlers.NewOrderHandler(logger))
	ingestService.RegisterHandler(webhook_handlers.NewProductHandler(logger))
	ingestService.RegisterHandler(webhook_handlers.NewCustomerHandler(logger))
	ingestService.RegisterHandler(webhookPubSub)

	router := api.NewRouter(api.Options{
		Connect:      connectService,
		Ingest:       ingestService,
		Events:       webhookPubSub,
		Verifiers:    verifiers,
		Metrics:      recorder.Handler(),
		DashboardURL: cfg.DashboardURL,
		AdminToken:   cfg.AdminToken,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Starting API server")
		logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down server gracefully")
	}
}
