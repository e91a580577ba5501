package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "bazaar/internal/app/services/auth"
	"bazaar/internal/domain/chat"
	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
	"bazaar/internal/infra/broker/kafka"
	"bazaar/internal/infra/config"
	"bazaar/internal/infra/db/mongo"
	ginserver "bazaar/internal/infra/http/gin"
	"bazaar/internal/infra/obs"
	"bazaar/internal/infra/security"
	"bazaar/internal/infra/storage/memory"
	"bazaar/internal/infra/storage/s3"
	"bazaar/internal/realtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.JWTSecret = getenv("JWT_SECRET", "dev-secret-do-not-use")
		cfg.JWTTTL = 24 * time.Hour
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	tokens := security.TokenManager{Secret: []byte(cfg.JWTSecret), TTL: cfg.JWTTTL}
	authService := &authsvc.Service{
		Users:     stores.users,
		Passwords: security.BcryptHasher{},
		Tokens:    tokens,
		Logger:    logger,
	}

	gateway := realtime.NewGateway(logger, realtime.NewInMemoryRegistry(), stores.conversations, stores.messages, stores.users, tokens)

	brokerCleanup := wireBroker(ctx, cfg, logger, gateway)
	defer brokerCleanup()

	photos := buildUploader(cfg, logger)

	handlers := ginserver.Handlers{
		Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
		Chat: ginserver.ChatHandler{
			Conversations: stores.conversations,
			Messages:      stores.messages,
			Users:         stores.users,
			Listings:      stores.listings,
			Logger:        logger,
		},
		Listing:  ginserver.ListingHandler{Listings: stores.listings, Photos: photos, Logger: logger},
		Realtime: gateway.HandleHTTP,
		AuthMiddleware: ginserver.AuthMiddleware{
			Verifier: tokens,
			Users:    stores.users,
			Logger:   logger,
		}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: stores.ready,
	}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "instance_id", gateway.InstanceID)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type stores struct {
	conversations chat.ConversationStore
	messages      chat.MessageStore
	users         domainuser.Repository
	listings      domainlistings.Repository
	ready         func() error
}

// buildStores connects to Mongo when MONGO_URI is set and falls back to
// in-memory storage otherwise (dev mode, nothing survives a restart).
func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, func(), error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-memory storage")
		return stores{
			conversations: memory.NewConversationStore(),
			messages:      memory.NewMessageStore(),
			users:         memory.NewUserRepository(),
			listings:      memory.NewListingRepository(),
			ready:         func() error { return nil },
		}, func() {}, nil
	}

	client, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Error("mongo close failed", "error", err)
		}
	}

	conversations := mongo.NewConversationRepository(client.DB)
	messages := mongo.NewMessageRepository(client.DB)
	users := mongo.NewUserRepository(client.DB)
	listings := mongo.NewListingRepository(client.DB)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, ensure := range []func(context.Context) error{
		conversations.EnsureIndexes,
		messages.EnsureIndexes,
		users.EnsureIndexes,
		listings.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			cleanup()
			return stores{}, nil, err
		}
	}

	logger.Info("mongo storage ready", "database", cfg.MongoDB)
	return stores{
		conversations: conversations,
		messages:      messages,
		users:         users,
		listings:      listings,
		ready:         func() error { return client.Ping(ctx) },
	}, cleanup, nil
}

// wireBroker attaches Kafka event publishing and the cross-instance presence
// consumer when brokers are configured. Single-instance deployments run
// without it.
func wireBroker(ctx context.Context, cfg config.Config, logger *slog.Logger, gateway *realtime.Gateway) func() {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, realtime events stay in-process")
		return func() {}
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Error("kafka producer init failed, continuing without broker", "error", err)
		return func() {}
	}
	publisher := &kafka.ChatPublisher{
		Producer:      producer,
		EventTopic:    cfg.KafkaPrefix + "chat.events",
		PresenceTopic: cfg.KafkaPrefix + "chat.presence",
		Logger:        logger,
	}
	gateway.Events = publisher
	gateway.Presence = publisher

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "bazaar-presence-"+gateway.InstanceID, nil, kafka.PresenceHandler{
		Evictor: gateway,
		Logger:  logger,
	}, logger)
	if err != nil {
		logger.Error("kafka consumer init failed, presence eviction disabled", "error", err)
		return func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka producer close failed", "error", err)
			}
		}
	}
	go func() {
		if err := consumer.Run(ctx, []string{publisher.PresenceTopic}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("presence consumer stopped", "error", err)
		}
	}()

	logger.Info("kafka wired", "brokers", cfg.KafkaBrokers, "event_topic", publisher.EventTopic, "presence_topic", publisher.PresenceTopic)
	return func() {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka consumer close failed", "error", err)
		}
		if err := producer.Close(); err != nil {
			logger.Error("kafka producer close failed", "error", err)
		}
	}
}

func buildUploader(cfg config.Config, logger *slog.Logger) s3.Uploader {
	client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
	if err != nil {
		logger.Warn("object storage unavailable, photo uploads disabled", "error", err)
		return s3.NoopUploader{}
	}
	return client
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
