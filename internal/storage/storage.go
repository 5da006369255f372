// Package storage opens the conversation backend selected by configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/smartspark/backend/internal/config"
	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
	"github.com/zhouzirui/smartspark/backend/internal/storage/mongo"
	"github.com/zhouzirui/smartspark/backend/internal/storage/postgres"
	"github.com/zhouzirui/smartspark/backend/internal/storage/sqlite"
)

// Open connects to the configured backend. The caller owns the returned store
// and must Close it on shutdown.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (chat.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURL, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Info("conversation store ready", zap.String("driver", cfg.Driver), zap.String("database", cfg.Database))
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("conversation store ready", zap.String("driver", cfg.Driver), zap.String("path", cfg.SQLitePath))
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info("conversation store ready", zap.String("driver", cfg.Driver))
		return store, nil
	case config.DriverMemory:
		log.Warn("using in-memory conversation store; history is lost on restart")
		return chat.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
