package memory

import (
	"testing"

	"murmur/internal/core/ports"
	"murmur/internal/infrastructure/repositories/repotest"
)

func TestMemoryUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) ports.UserRepository {
		return NewMemoryUserRepository()
	})
}

func TestMemoryMessageRepository(t *testing.T) {
	repotest.RunMessageRepository(t, func(t *testing.T) ports.MessageRepository {
		return NewMemoryMessageRepository()
	})
}
