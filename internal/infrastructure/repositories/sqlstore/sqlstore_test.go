package sqlstore

import (
	"testing"

	"murmur/internal/core/ports"
	"murmur/internal/infrastructure/repositories/repotest"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestSQLUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) ports.UserRepository {
		return NewSQLUserRepository(openTestDB(t))
	})
}

func TestSQLMessageRepository(t *testing.T) {
	repotest.RunMessageRepository(t, func(t *testing.T) ports.MessageRepository {
		return NewSQLMessageRepository(openTestDB(t))
	})
}
