package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ShreyashF130/copit-backend/internal/crypto"
	"github.com/ShreyashF130/copit-backend/internal/engine"
	"github.com/ShreyashF130/copit-backend/internal/events"
	"github.com/ShreyashF130/copit-backend/internal/httpapi"
	"github.com/ShreyashF130/copit-backend/internal/messenger"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/reconciler"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/session"
	"github.com/ShreyashF130/copit-backend/internal/shipping"
	"github.com/ShreyashF130/copit-backend/internal/sweeper"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

type Config struct {
	HTTPPort       string
	DBPath         string
	MigrationsPath string

	// Optional durable session backing; empty keeps sessions in memory.
	RedisAddr  string
	SessionTTL time.Duration

	// Optional broker for order events; empty disables publishing.
	KafkaBrokers string

	WhatsAppToken string
	PhoneNumberID string
	VerifyToken   string
	AdminSecret   string

	CheckoutBaseURL  string
	ManualPayBaseURL string
	ChatDeepLink     string

	// AES key for merchant credential decryption; empty disables it.
	EncryptionKey string

	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "orchestrator.db"),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "migrations"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		SessionTTL:       25 * time.Hour,
		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		WhatsAppToken:    getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:    getEnv("PHONE_NUMBER_ID", ""),
		VerifyToken:      getEnv("VERIFY_TOKEN", ""),
		AdminSecret:      getEnv("ADMIN_SECRET", ""),
		CheckoutBaseURL:  getEnv("CHECKOUT_BASE_URL", "http://localhost:8080/checkout"),
		ManualPayBaseURL: getEnv("MANUAL_PAY_BASE_URL", "http://localhost:8080/pay/manual"),
		ChatDeepLink:     getEnv("CHAT_DEEP_LINK", "https://wa.me/0000000000"),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		ShutdownTimeout:  10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	cipher, err := crypto.New([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sessions = session.NewRedisStore(client, cfg.SessionTTL)
		logger.Info("session store: redis", "addr", cfg.RedisAddr)
	} else {
		sessions = session.NewMemoryStore()
		logger.Info("session store: in-memory (sessions lost on restart)")
	}
	locks := session.NewKeyedLock()
	tokens := token.NewIssuer()

	sender := messenger.NewMetaClient("", cfg.PhoneNumberID, cfg.WhatsAppToken, logger)
	gateway := payment.NewRazorpayClient("", logger)
	courier := shipping.NewShiprocketClient("", logger)
	shops := engine.NewShopConfigReader(repo, cipher)

	eng := engine.New(sessions, locks, repo, tokens, sender, gateway, shops, engine.Config{
		CheckoutBaseURL:  cfg.CheckoutBaseURL,
		ManualPayBaseURL: cfg.ManualPayBaseURL,
	}, logger)

	rec := reconciler.New(repo, shops, sessions, locks, sender, logger)
	eng.SetApprover(rec)

	srv := httpapi.NewServer(eng, rec, tokens, repo, httpapi.Config{
		VerifyToken:     cfg.VerifyToken,
		AdminSecret:     cfg.AdminSecret,
		CheckoutBaseURL: cfg.CheckoutBaseURL,
		ChatDeepLink:    cfg.ChatDeepLink,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recovery := sweeper.NewRecoverySweeper(sessions, locks, sender, logger)
	watchdog := sweeper.NewDeliveryWatchdog(repo, shops, courier, sessions, locks, sender, logger)
	go recovery.Run(ctx)
	go watchdog.Run(ctx)

	if cfg.KafkaBrokers != "" {
		publisher := events.NewPublisher(repo, logger, strings.Split(cfg.KafkaBrokers, ",")...)
		defer publisher.Close()
		go publisher.Run(ctx)
		logger.Info("order event publisher started", "brokers", cfg.KafkaBrokers)
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("orchestrator listening", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
