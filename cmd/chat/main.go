package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"murmur/internal/core/services"
	httphandlers "murmur/internal/handlers/http"
	"murmur/internal/infrastructure/monitoring"
	"murmur/internal/infrastructure/reliability"
	repositories "murmur/internal/infrastructure/repositories"
	wsinfra "murmur/internal/infrastructure/signal"
	"murmur/pkg/circuitbreaker"
	"murmur/pkg/config"
	"murmur/pkg/logger"
	"murmur/pkg/retry"
	"murmur/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/murmur/config.yaml",
	"config.yaml",
}

func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("MURMUR_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	var lastErr error
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err == nil {
			return cfg, path, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, "", lastErr
	}

	// no file anywhere: defaults plus environment
	cfg, err := config.Load("")
	return cfg, "defaults", err
}

func main() {
	cfg, source, err := loadConfig()
	if err != nil {
		// logger is not configured yet
		logger.New("info").Sugar().Fatalw("failed to load configuration", "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	log.Infow("configuration loaded", "source", source, "store", cfg.Store.Driver)

	if cfg.Auth.JWTSecret == config.DefaultConfig().Auth.JWTSecret {
		log.Warn("auth.jwt_secret is the built-in default; set MURMUR_JWT_SECRET in production")
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "murmur",
		Version:     "dev",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Storage
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Reliability.RetryAttempts
	retryCfg.InitialDelay = cfg.Reliability.RetryDelay
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = cfg.Reliability.BreakerThreshold
	cbCfg.Timeout = cfg.Reliability.BreakerTimeout
	guard := reliability.NewGuard(retryCfg, cbCfg, log)

	userRepo := reliability.NewUserRepository(repoFactory.UserRepository(), guard)
	messageRepo := reliability.NewMessageRepository(repoFactory.MessageRepository(), guard)

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	// Core
	authService := services.NewAuthService(userRepo, services.AuthConfig{
		JWTSecret:        cfg.Auth.JWTSecret,
		AccessTokenTTL:   cfg.Auth.AccessTokenTTL,
		IdentityCacheTTL: cfg.Auth.IdentityCacheTTL,
		BcryptCost:       cfg.Auth.BcryptCost,
	}, log)

	registry := services.NewConnectionRegistry(authService, log)
	hub := wsinfra.NewHub(registry.IsJoined, collector, log)

	chatService := services.NewChatService(registry, messageRepo, userRepo, hub, services.ChatConfig{
		MessagesPerPage:  cfg.Chat.MessagesPerPage,
		MaxContentLength: cfg.Chat.MaxContentLength,
	}, log)
	chatService.SetMetrics(collector)

	presenceService := services.NewPresenceService(registry, hub, log)
	presenceService.SetMetrics(collector)

	guestService := services.NewGuestService(userRepo, chatService, services.GuestConfig{
		APIKey:       cfg.Widget.APIKey,
		DefaultLimit: cfg.Widget.DefaultLimit,
		MaxLimit:     cfg.Widget.MaxLimit,
	}, log)
	if cfg.Widget.APIKey == "" {
		log.Warn("widget.api_key is empty; widget message endpoints will answer 503")
	}
	adminService := services.NewAdminService(userRepo, messageRepo, registry, hub, authService, log)

	// Realtime transport
	wsOpts := wsinfra.Options{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		SendQueueSize:     cfg.Signal.SendQueueSize,
		MaxMessageSize:    cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		MessagesPerSecond: cfg.RateLimiting.WebSocket.MessagesPerSecond,
		Burst:             cfg.RateLimiting.WebSocket.Burst,
		AllowedOrigins:    cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.ConnectionsPerMinute = cfg.RateLimiting.WebSocket.ConnectionsPerMinute
		wsOpts.MaxConcurrent = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	wsServer := wsinfra.NewWebSocketServer(hub, presenceService, chatService, collector, wsOpts, log)

	// Health
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddStoreCheck("store", repoFactory, 2*time.Second)
	healthChecker.AddStoreCheck("store_breaker", guard, time.Second)
	healthChecker.AddMessageStoreCheck(messageRepo, 2*time.Second)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	healthChecker.StartBackgroundChecks(bgCtx, cfg.Monitoring.MetricsInterval)
	go sweepLimiters(bgCtx, wsServer, time.Minute)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := httphandlers.RouterDeps{
		Config:      cfg,
		Logger:      zapLogger,
		Auth:        authService,
		Chat:        chatService,
		Guests:      guestService,
		Admin:       adminService,
		Health:      healthChecker,
		Metrics:     collector,
		Connections: hub.Count,
		WebSocket:   wsServer.HandleWebSocket,
	}
	if cfg.Monitoring.PrometheusEnabled {
		deps.MetricsHandler = promhttp.Handler()
		log.Info("prometheus metrics enabled")
	}
	router := httphandlers.NewRouter(deps)

	// websocket writers reset their own write deadline on every frame
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting murmur chat server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down murmur chat server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	stopBackground()

	// hijacked websocket connections are not tracked by Shutdown
	hub.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	authService.Stop()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("murmur chat server stopped")
}

func sweepLimiters(ctx context.Context, s *wsinfra.WebSocketServer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepLimiters(10 * time.Minute)
		}
	}
}
