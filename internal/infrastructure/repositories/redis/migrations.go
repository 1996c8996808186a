package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"murmur/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	schemaLockKey        = keyPrefix + "schema:lock"
	schemaLockTTL        = 30 * time.Second
	currentSchemaVersion = 2
)

// Migration is one forward step of the key layout.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations. Processes sharing one Redis take
// turns through a lock, and the version is read only once the lock is held.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) (err error) {
	lock := distributed.NewLock(client, schemaLockKey, schemaLockTTL)
	if err := lock.Lock(ctx); err != nil {
		return fmt.Errorf("failed to take schema lock: %w", err)
	}
	defer func() {
		if unlockErr := lock.Unlock(context.WithoutCancel(ctx)); unlockErr != nil && err == nil {
			err = fmt.Errorf("failed to release schema lock: %w", unlockErr)
		}
	}()

	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version, "name", migration.Name)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "initial layout",
			// keys are created lazily; nothing to do
			Up: func(ctx context.Context, client *redis.Client) error { return nil },
		},
		{
			Version: 2,
			Name:    "per-author message counters",
			Up:      backfillAuthorCounts,
		},
	}
}

// backfillAuthorCounts rebuilds the author counter hash from stored messages.
func backfillAuthorCounts(ctx context.Context, client *redis.Client) error {
	ids, err := client.ZRange(ctx, messageIndexKey, 0, -1).Result()
	if err != nil {
		return err
	}

	counts := make(map[string]int64)
	for start := 0; start < len(ids); start += 500 {
		end := start + 500
		if end > len(ids) {
			end = len(ids)
		}
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, messageKey(id))
		}
		values, err := client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var rec messageRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return err
			}
			counts[rec.AuthorID]++
		}
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, authorCountsKey)
		for author, n := range counts {
			pipe.HSet(ctx, authorCountsKey, author, n)
		}
		return nil
	})
	return err
}
