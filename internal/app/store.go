package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chatline/internal/config"
	"chatline/internal/database"
	"chatline/internal/repository"
)

// Store is the conversation store together with the connection behind it.
type Store struct {
	*repository.ConversationStore
	DB    *sql.DB
	Redis *redis.Client
}

// OpenStore opens the KV backend selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case "", "sqlite":
		db, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		slog.Info("Successfully connected to SQLite database.", "path", cfg.DatabasePath)
		return &Store{ConversationStore: repository.NewConversationStore(repository.NewSQLiteKV(db)), DB: db}, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("Successfully connected to Redis.", "addr", cfg.RedisAddr)
		return &Store{ConversationStore: repository.NewConversationStore(repository.NewRedisKV(rdb, "")), Redis: rdb}, nil

	case "memory":
		slog.Warn("Using in-memory store, conversations are lost on exit.")
		return &Store{ConversationStore: repository.NewConversationStore(repository.NewMemoryKV())}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (s *Store) Close() error {
	switch {
	case s.DB != nil:
		return s.DB.Close()
	case s.Redis != nil:
		return s.Redis.Close()
	}
	return nil
}
