package main

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/contestauth/internal/config"
	"github.com/dtroode/contestauth/internal/identity"
	"github.com/dtroode/contestauth/internal/logger"
	"github.com/dtroode/contestauth/internal/model"
	"github.com/dtroode/contestauth/internal/repository/sqlstore"
	"github.com/dtroode/contestauth/internal/service"
	"github.com/dtroode/contestauth/internal/storage/memory"
	storage "github.com/dtroode/contestauth/internal/storage/minio"
	"github.com/dtroode/contestauth/internal/storage/rtdb"
	"github.com/dtroode/contestauth/internal/worker"
)

// app holds the wired services for a single command invocation.
type app struct {
	cfg         *config.Config
	logger      *logger.Logger
	db          *sqlstore.Connection
	identity    *identity.Client
	coordinator *service.Coordinator
	pool        *worker.Pool
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logger.New(cfg.LogLevel)

	db, err := sqlstore.NewConnection(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	accountRepo := sqlstore.NewAccountRepository(db)
	sessionRepo := sqlstore.NewSessionRepository(db)

	identityClient := identity.New(cfg.Provider, logger)
	if !identityClient.Enabled() {
		logger.Info("remote identity provider disabled, using local accounts only")
	}

	documents, err := newDocumentStore(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sessionManager := service.NewSessionManager(sessionRepo, identityClient, logger)
	otpStore := service.NewOTPStore(documents, cfg.OTP.TTL, logger)
	coordinator := service.NewCoordinator(accountRepo, sessionManager, identityClient, otpStore, logger, cfg.Session.LocalTTL)

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		identity:    identityClient,
		coordinator: coordinator,
		pool:        worker.NewPool(cfg.Workers.Size, logger),
	}, nil
}

// Close waits for running tasks and releases the database.
func (a *app) Close() {
	a.pool.Close()
	a.identity.SignOut()
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}

// newDocumentStore picks the backend that keeps password reset codes.
func newDocumentStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.DocumentStore, error) {
	switch cfg.OTP.Backend {
	case config.OTPBackendMinio:
		minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
			Secure: cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		storageClient, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage client: %w", err)
		}
		return storageClient, nil

	case config.OTPBackendRTDB:
		url := cfg.OTP.DatabaseURL
		if url == "" || url == config.PlaceholderDatabaseURL || !cfg.Provider.Configured() {
			logger.Warn("realtime database not configured, reset codes are kept in memory")
			return memory.NewStore(), nil
		}
		return rtdb.NewClient(url, cfg.Provider.APIKey, cfg.Provider.Timeout), nil

	default:
		return memory.NewStore(), nil
	}
}

// run executes fn on the worker pool and waits for its outcome.
func run[T any](ctx context.Context, a *app, fn func(context.Context) T) (T, error) {
	task := worker.Submit(a.pool, ctx, func(ctx context.Context) (T, error) {
		return fn(ctx), nil
	})
	return task.Wait(ctx)
}
