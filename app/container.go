package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"relaychat/app/config"
	"relaychat/internal/adapters"
	"relaychat/internal/handlers"
	"relaychat/internal/ports"
	"relaychat/internal/services"
	websocket "relaychat/internal/websocet"
)

type Container struct {
	isShuttingDown bool

	GinEngine   *gin.Engine
	Config      *config.Config
	Redis       *redis.Client
	RateLimiter *RateLimiter

	Metrics        *Metrics
	Logger         *slog.Logger
	TracerProvider *tracesdk.TracerProvider
	Tracer         trace.Tracer

	Server *http.Server

	SessionService      *services.SessionService
	NotificationService *services.NotificationService
	Core                *services.Core

	AuthHandler         *handlers.AuthHandler
	NotificationHandler *handlers.NotificationHandler
	WebSocketHandler    *handlers.WebsocetHandler

	WsHub *websocket.Hub
}

func NewContainer() (*Container, error) {
	container := &Container{}

	if err := container.initCore(); err != nil {
		return nil, err
	}

	if err := container.initProductionFeatures(); err != nil {
		return nil, err
	}

	return container, nil
}

func (c *Container) initCore() error {
	var cfg, err = config.LoadConfig()
	if err != nil {
		return err
	}
	c.Config = &cfg

	c.Logger = c.initLogger()

	if err = c.initTracing(); err != nil {
		return err
	}

	var sessionRepo ports.SessionRepository
	var notificationRepo ports.NotificationRepository
	if cfg.Redis.Enabled {
		c.Redis = c.initRedis()
		sessionRepo = adapters.NewRedisSessionRepository(c.Redis)
		notificationRepo = adapters.NewRedisNotificationRepository(c.Redis)
	} else {
		sessionRepo = services.NewMemorySessionStore()
		notificationRepo = services.NewMemoryNotificationStore()
	}

	c.WsHub = websocket.NewHub(c.Logger)
	go c.WsHub.Run()

	registry := services.NewRegistry(c.WsHub, c.Logger)
	presence := services.NewPresenceEngine(c.WsHub, c.Logger)
	rooms := services.NewRoomManager(registry, c.WsHub, c.Logger)
	router := services.NewMessageRouter(registry, rooms, c.WsHub, c.Logger)
	c.NotificationService = services.NewNotificationService(notificationRepo, c.WsHub, cfg.Relay.NotificationHistory, c.Logger)

	c.Core = services.NewCore(registry, presence, rooms, router, c.NotificationService, c.Logger)
	c.WsHub.SetCore(c.Core)

	if cfg.Redis.Enabled && cfg.Relay.Backplane {
		backplane := adapters.NewRedisBackplane(c.Redis, c.Logger)
		if err := c.WsHub.SetBackplane(backplane); err != nil {
			c.Logger.Error("backplane subscribe failed", "error", err)
			return err
		}
	}

	c.SessionService, err = services.NewSessionService(sessionRepo, []byte(cfg.JWT.SecretKey), cfg.JWT.SessionTTL, c.Logger)
	if err != nil {
		c.Logger.Error("session service initialize error", "error", err.Error())
		return err
	}

	c.RateLimiter = NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	c.AuthHandler = handlers.NewAuthHandler(c.SessionService, c.Logger)
	c.NotificationHandler = handlers.NewNotificationHandler(c.NotificationService, c.Logger)
	c.WebSocketHandler = handlers.NewWebSocketHandler(c.WsHub, c.SessionService, cfg.Relay.AllowedOrigins, cfg.Relay.SendBuffer, c.Logger)

	c.Server = c.initServer()
	c.GinEngine = c.initGinEngine()
	c.Server.Handler = c.GinEngine

	return nil
}

func (c *Container) initProductionFeatures() error {
	c.initMetrics()

	c.initHealthRoutes(c.GinEngine)

	c.GinEngine.Use(services.SecurityMiddleware())
	c.GinEngine.Use(services.RequestIDMiddleware())
	c.GinEngine.Use(MetricsMiddleware(c.Metrics))

	c.WsHub.SetMetrics(c.Metrics.ActiveWebSockets, c.Metrics.DecryptFailures)
	c.Core.Router.SetDeliveredHook(c.Metrics.MessagesDelivered.Inc)

	return nil
}

func (c *Container) initMetrics() {
	c.Metrics = &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request duration",
			},
			[]string{"method", "endpoint"},
		),
		ActiveWebSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_websockets",
			Help: "Currently open websocket connections",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_routed_total",
			Help: "Chat messages fanned out by the router",
		}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_decrypt_failures_total",
			Help: "Dropped frames that failed envelope decryption",
		}),
	}
	prometheus.MustRegister(
		c.Metrics.RequestsTotal,
		c.Metrics.RequestDuration,
		c.Metrics.ActiveWebSockets,
		c.Metrics.MessagesDelivered,
		c.Metrics.DecryptFailures,
	)
}

func (c *Container) initTracing() error {
	if !c.Config.Tracing.Enabled {
		c.Logger.Info("tracing disabled")
		return nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(c.Config.Tracing.Endpoint)))
	if err != nil {
		return err
	}

	c.TracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(c.Config.Tracing.ServiceName),
			attribute.String("environment", c.Config.Environment.Current),
		)),
	)

	otel.SetTracerProvider(c.TracerProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	c.Tracer = c.TracerProvider.Tracer("relaychat-app")

	c.Logger.Info("tracing initialized", "endpoint", c.Config.Tracing.Endpoint)
	return nil
}

func (c *Container) initHealthRoutes(eng *gin.Engine) {
	eng.GET("/health", func(ctx *gin.Context) {
		health := map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if c.Redis != nil {
			if err := c.Redis.Ping().Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				ctx.JSON(503, health)
				return
			}
			health["redis"] = "healthy"
		}

		ctx.JSON(200, health)
	})

	eng.GET("/ready", func(ctx *gin.Context) {
		if c.isShuttingDown {
			ctx.JSON(503, gin.H{"status": "shutting down"})
			return
		}
		ctx.JSON(200, gin.H{"status": "ready"})
	})

	eng.GET("/live", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "live"})
	})

	eng.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (c *Container) initGinEngine() *gin.Engine {
	var eng = gin.Default()

	if c.Config.Tracing.Enabled {
		eng.Use(otelgin.Middleware(c.Config.Tracing.ServiceName))
	}

	api := eng.Group("/api")

	api.Use(RateLimitMiddleware(c.RateLimiter))
	{
		api.POST("/auth", c.AuthHandler.Authenticate)
		api.POST("/keys", c.AuthHandler.ExchangeKeys)
		api.POST("/logout", c.AuthHandler.Logout)

		notificationsGroup := api.Group("/notifications")
		{
			notificationsGroup.POST("", c.NotificationHandler.Create)
			notificationsGroup.GET("", c.NotificationHandler.List)
		}

		api.GET("/ws", c.WebSocketHandler.HandleWebSocket)
	}

	return eng
}

func (c *Container) initLogger() *slog.Logger {
	var logger *slog.Logger
	if c.Config.Environment.Current == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(logger)
	return logger
}

func (c *Container) initRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
}

func (c *Container) initServer() *http.Server {
	return &http.Server{
		Addr:         ":" + c.Config.Server.Port,
		ReadTimeout:  time.Duration(c.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(c.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(c.Config.Server.IdleTimeout) * time.Second,
	}
}

func (c *Container) Close() error {
	c.isShuttingDown = true

	if c.TracerProvider != nil {
		if err := c.TracerProvider.Shutdown(context.Background()); err != nil {
			c.Logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}

	if c.Redis != nil {
		return c.Redis.Close()
	}

	return nil
}
