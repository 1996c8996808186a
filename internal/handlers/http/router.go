package http

import (
	"net/http"

	"murmur/internal/core/services"
	"murmur/internal/infrastructure/middleware"
	"murmur/internal/infrastructure/monitoring"
	"murmur/pkg/config"
	"murmur/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps is everything the HTTP surface is built from.
type RouterDeps struct {
	Config *config.Config
	Logger *zap.Logger

	Auth   services.AuthService
	Chat   *services.ChatService
	Guests *services.GuestService
	Admin  *services.AdminService

	Health      *monitoring.HealthChecker
	Metrics     *monitoring.PrometheusCollector // nil disables request metrics
	Connections func() int

	WebSocket      http.HandlerFunc
	MetricsHandler http.Handler // nil leaves /metrics unrouted
}

// NewRouter wires middleware and every route onto a fresh gin engine.
func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Logger.Sugar()

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	if d.Config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	if d.Metrics != nil {
		router.Use(middleware.RequestLoggerMiddleware(logger.NewContextLogger(d.Logger), d.Metrics))
	} else {
		router.Use(middleware.RequestLoggerMiddleware(logger.NewContextLogger(d.Logger), nil))
	}
	router.Use(middleware.ErrorHandlerMiddleware(log))

	health := NewHealthHandler(d.Health, d.Connections)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	if d.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}
	if d.WebSocket != nil {
		router.GET(d.Config.Signal.Path, gin.WrapF(d.WebSocket))
	}

	api := router.Group("/api")
	api.Use(middleware.NewHTTPRateLimitMiddleware(d.Config))

	authHandler := NewAuthHandler(d.Auth)
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", middleware.AuthMiddleware(d.Auth), authHandler.Me)
	}

	messageHandler := NewMessageHandler(d.Chat)
	messages := api.Group("/messages", middleware.AuthMiddleware(d.Auth))
	{
		messages.GET("", messageHandler.List)
		messages.POST("", messageHandler.Create)
		messages.PATCH("/:id", messageHandler.Update)
		messages.DELETE("/:id", messageHandler.Delete)
	}

	widgetHandler := NewWidgetHandler(d.Guests, d.Config.Widget.PublicURL, d.Config.Chat.PollInterval)
	widget := api.Group("/widget")
	{
		widget.GET("/config", widgetHandler.Config)
		keyed := widget.Group("", middleware.WidgetKeyMiddleware(d.Guests))
		keyed.GET("/messages", widgetHandler.List)
		keyed.POST("/messages", widgetHandler.Post)
	}

	adminHandler := NewAdminHandler(d.Admin)
	admin := api.Group("/admin", middleware.AuthMiddleware(d.Auth), middleware.AdminMiddleware(d.Admin))
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.POST("/users/:id", adminHandler.SetActive)
		admin.GET("/stats", adminHandler.Stats)
	}

	return router
}
