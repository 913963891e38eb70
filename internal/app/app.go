// Package app wires the application graph from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evcharge/internal/auth"
	"evcharge/internal/billing"
	"evcharge/internal/bot"
	"evcharge/internal/cache"
	"evcharge/internal/config"
	"evcharge/internal/ocr"
	"evcharge/internal/report"
	"evcharge/internal/session"
	"evcharge/internal/storage"
	libdb "evcharge/libs/db"
	libredis "evcharge/libs/redis"
)

// App owns the bot and every resource behind it.
type App struct {
	bot         *bot.Bot
	db          *sql.DB
	bolt        *storage.Bolt
	redisClient *redis.Client
	gemini      *ocr.Gemini
	logger      *zap.Logger
}

// New constructs the application graph. The storage backend is chosen once:
// Postgres when a DSN is configured, bbolt when a data file is, in-memory
// otherwise.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{logger: logger}

	sessionStore, tariffStore, err := app.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var activeStore *cache.Store
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redisClient = client
		activeStore = cache.NewStore(client, cfg.Redis.TTL)
	}

	engines, err := app.buildEngines(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	tariffs := billing.NewTariffService(tariffStore, logger)
	sessions := session.NewService(sessionStore, tariffs, activeStore, logger)
	reports := report.NewGenerator(sessionStore, logger)
	recognizer := ocr.NewRecognizer(engines, cfg.OCR.Timeout, logger)
	authz := auth.NewAuthorizer(cfg.Telegram.OwnerID, cfg.AllowedPhoneList(), logger)

	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.OwnerID, sessions, tariffs, reports, recognizer, authz, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.bot = b
	return app, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (storage.SessionStore, storage.TariffStore, error) {
	switch {
	case cfg.Storage.PostgresDSN != "":
		sqlDB, err := libdb.NewPostgresDB(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		a.db = sqlDB
		pg := storage.NewPostgres(sqlDB)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.logger.Info("using postgres storage")
		return pg, storage.NewPostgresTariffs(sqlDB), nil
	case cfg.Storage.BoltPath != "":
		b, err := storage.NewBolt(cfg.Storage.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		a.bolt = b
		a.logger.Info("using bbolt storage", zap.String("path", cfg.Storage.BoltPath))
		return b, storage.NewBoltTariffs(b), nil
	default:
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemory(), storage.NewMemoryTariffs(), nil
	}
}

func (a *App) buildEngines(ctx context.Context, cfg *config.Config) ([]ocr.Engine, error) {
	var engines []ocr.Engine
	if cfg.OCR.GeminiAPIKey != "" {
		g, err := ocr.NewGemini(ctx, cfg.OCR.GeminiAPIKey, cfg.OCR.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.gemini = g
		engines = append(engines, g)
	}
	if cfg.OCR.AzureEndpoint != "" && cfg.OCR.AzureKey != "" {
		az, err := ocr.NewAzureVision(cfg.OCR.AzureEndpoint, cfg.OCR.AzureKey)
		if err != nil {
			return nil, err
		}
		engines = append(engines, az)
	}
	if len(engines) == 0 {
		a.logger.Warn("no ocr engine configured, readings must be typed manually")
	}
	return engines, nil
}

// Run polls Telegram until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.bot.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.bolt != nil {
		if err := a.bolt.Close(); err != nil {
			a.logger.Warn("failed to close bolt", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			a.logger.Warn("failed to close gemini client", zap.Error(err))
		}
	}
}
