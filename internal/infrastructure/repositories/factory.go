package repositories

import (
	"context"
	"fmt"

	"murmur/internal/core/ports"
	"murmur/internal/infrastructure/repositories/memory"
	redisrepo "murmur/internal/infrastructure/repositories/redis"
	"murmur/internal/infrastructure/repositories/sqlstore"
	"murmur/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory opens the configured store backend and hands out repositories for it.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	db          *gorm.DB
	logger      *zap.SugaredLogger

	users    ports.UserRepository
	messages ports.MessageRepository
}

// NewRepositoryFactory connects to the configured driver. A driver that
// cannot be reached is an error; there is no silent fallback to memory.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Store.Driver,
		logger: logger,
	}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		factory.users = memory.NewMemoryUserRepository()
		factory.messages = memory.NewMemoryMessageRepository()

	case config.StoreDriverSQLite:
		db, err := sqlstore.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		factory.db = db
		factory.users = sqlstore.NewSQLUserRepository(db)
		factory.messages = sqlstore.NewSQLMessageRepository(db)

	case config.StoreDriverRedis:
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			return nil, err
		}
		factory.redisClient = client
		factory.users = redisrepo.NewRedisUserRepository(client)
		factory.messages = redisrepo.NewRedisMessageRepository(client)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	logger.Infow("store ready", "driver", cfg.Store.Driver)
	return factory, nil
}

// Driver returns the name of the active backend.
func (f *RepositoryFactory) Driver() string {
	return f.driver
}

func (f *RepositoryFactory) UserRepository() ports.UserRepository {
	return f.users
}

func (f *RepositoryFactory) MessageRepository() ports.MessageRepository {
	return f.messages
}

// Close releases backend connections.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	if f.db != nil {
		return sqlstore.Close(f.db)
	}
	return nil
}

// HealthCheck pings the active backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	if f.db != nil {
		sqlDB, err := f.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return nil
}
