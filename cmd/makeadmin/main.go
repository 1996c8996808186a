// Command makeadmin grants the ADMIN role to a registered account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"murmur/internal/core/services"
	repositories "murmur/internal/infrastructure/repositories"
	"murmur/pkg/config"
	"murmur/pkg/logger"
)

func main() {
	email := flag.String("email", "", "email of the account to promote")
	configPath := flag.String("config", "configs/config.yaml", "path to the server configuration")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: makeadmin -email user@example.com [-config configs/config.yaml]")
		os.Exit(2)
	}

	if err := run(*configPath, *email); err != nil {
		fmt.Fprintf(os.Stderr, "makeadmin: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, email string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Store.Driver == config.StoreDriverMemory {
		return errors.New("store.driver is memory; nothing would persist")
	}

	zapLogger := logger.New("warn")
	defer zapLogger.Sync()

	factory, err := repositories.NewRepositoryFactory(cfg, zapLogger.Sugar())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admins := services.NewAdminService(factory.UserRepository(), factory.MessageRepository(), nil, nil, nil, zapLogger.Sugar())
	user, err := admins.Promote(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to promote %s: %w", email, err)
	}

	fmt.Printf("%s (%s) is now %s\n", user.Email, user.ID, user.Role)
	return nil
}
