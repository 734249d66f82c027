package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"go.uber.org/zap"

	"github.com/openclave/walletauth/adapters/challenge"
	"github.com/openclave/walletauth/adapters/events"
	"github.com/openclave/walletauth/adapters/repo/postgres"
	"github.com/openclave/walletauth/adapters/tokenizer"
	"github.com/openclave/walletauth/internal/config"
	"github.com/openclave/walletauth/internal/db"
	"github.com/openclave/walletauth/ports"
	"github.com/openclave/walletauth/service"
	transport "github.com/openclave/walletauth/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(logger); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	signKey, err := loadSignKey(cfg.TokenSignKeyHex)
	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, "migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	var eventPub ports.EventPublisher = events.NopPublisher{}
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Warn("event publisher unavailable, security events will be dropped", zap.Error(err))
	} else {
		eventPub = events.NewWatermillPublisher(publisher)
	}

	sessionService := service.NewSessionService(
		postgres.NewDeviceRepo(pool),
		postgres.NewSessionRepo(pool),
		logger,
	)
	sessionService.SetSessionTTL(cfg.SessionTTL)

	tokenService := service.NewTokenService(
		tokenizer.NewJWTTokenizer(signKey),
		postgres.NewRefreshTokenRepo(pool),
		postgres.NewSessionRepo(pool),
		eventPub,
		logger,
	)
	tokenService.SetTTLs(cfg.AccessTTL, cfg.RefreshTTL, cfg.SessionTTL)

	authService := service.NewAuthService(
		challenge.NewRedisStore(redisClient),
		postgres.NewUserRepo(pool),
		postgres.NewWalletRepo(pool),
		sessionService,
		tokenService,
		logger,
	)
	authService.SetChallengeTTL(cfg.ChallengeTTL)
	if cfg.AllowSignatureRecovery {
		authService.EnableRecovery()
	}
	if cfg.DevBypassSignature {
		authService.EnableSignatureBypass()
	}

	go sessionService.RunSweeper(ctx, cfg.SweepInterval)

	router := transport.SetupRouter(authService, tokenService, logger)

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// loadSignKey decodes a hex-encoded EC private key, or generates an
// ephemeral P-256 key when none is configured.
func loadSignKey(keyHex string) (*ecdsa.PrivateKey, error) {
	if keyHex == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	der, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode TOKEN_SIGN_KEY: %w", err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse TOKEN_SIGN_KEY: %w", err)
	}
	return key, nil
}
