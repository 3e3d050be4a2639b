package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/api"
	"github.com/hstudio-dev/glasschat/internal/auth"
	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/call"
	"github.com/hstudio-dev/glasschat/internal/chat"
	"github.com/hstudio-dev/glasschat/internal/config"
	"github.com/hstudio-dev/glasschat/internal/db"
	"github.com/hstudio-dev/glasschat/internal/delivery"
	"github.com/hstudio-dev/glasschat/internal/media"
	"github.com/hstudio-dev/glasschat/internal/middleware"
	"github.com/hstudio-dev/glasschat/internal/observ"
	"github.com/hstudio-dev/glasschat/internal/presence"
	mongostore "github.com/hstudio-dev/glasschat/internal/repository/mongodb"
	pgstore "github.com/hstudio-dev/glasschat/internal/repository/postgres"
	"github.com/hstudio-dev/glasschat/internal/session"
	"github.com/hstudio-dev/glasschat/internal/suggest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Telemetry
	// ---------------------------------------------------------------
	shutdownTelemetry, err := observ.InitTelemetry(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// ---------------------------------------------------------------
	// 4. Connect to stores: Postgres (code registry), Mongo
	//    (conversation documents), Redis (change fan-out)
	// ---------------------------------------------------------------
	database, err := db.NewPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer database.Close()

	mongoDB, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB, logger)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Close(closeCtx)
	}()

	rdb, err := db.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	// ---------------------------------------------------------------
	// 5. Repositories
	// ---------------------------------------------------------------
	convStore := mongostore.NewConversationStore(mongoDB.Database())
	msgStore := mongostore.NewMessageStore(mongoDB.Database())
	codeStore := pgstore.NewAccessCodeStore(database.Pool())

	// ---------------------------------------------------------------
	// 6. Domain engines
	// ---------------------------------------------------------------
	eventBus := bus.NewRedisBus(rdb, logger)
	presenceEngine := presence.NewEngine(convStore, eventBus, logger)
	deliveryEngine := delivery.NewEngine(msgStore, eventBus, logger)
	callCoordinator := call.NewCoordinator(convStore, eventBus, cfg.RingTimeout, logger)
	uploader := media.NewHostUploader(cfg.MediaHostURL, cfg.MediaHostKey)
	chatService := chat.NewService(msgStore, convStore, uploader, eventBus, logger)
	suggestClient := suggest.NewClient(cfg.SuggestAPIURL, cfg.SuggestAPIKey, logger)

	gate, err := auth.NewGate(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials,
		cfg.AdminEmail, cfg.AdminPasswordHash, logger)
	if err != nil {
		return fmt.Errorf("init identity gate: %w", err)
	}

	// ---------------------------------------------------------------
	// 7. Handlers
	// ---------------------------------------------------------------
	authHandler := api.NewAuthHandler(codeStore, gate, cfg.JWTSecret, cfg.TokenTTL, logger)
	codeHandler := api.NewAccessCodeHandler(codeStore, convStore, eventBus, logger)
	messageHandler := api.NewMessageHandler(msgStore, chatService, logger)
	suggestHandler := api.NewSuggestHandler(chatService, suggestClient, logger)
	wsHandler := api.NewWSHandler(session.Deps{
		Convs:    convStore,
		Msgs:     msgStore,
		Codes:    codeStore,
		Bus:      eventBus,
		Presence: presenceEngine,
		Delivery: deliveryEngine,
		Calls:    callCoordinator,
		Chat:     chatService,
		Logger:   logger,
	}, logger)

	// ---------------------------------------------------------------
	// 8. HTTP server and routes
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Public: load balancers health-check without credentials.
	router.GET("/v1/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"postgres": "ok", "mongo": "ok", "redis": "ok"}
		if err := database.Health(c.Request.Context()); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := mongoDB.Health(c.Request.Context()); err != nil {
			checks["mongo"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	router.POST("/v1/auth/login", authHandler.Login)
	router.POST("/v1/auth/admin", authHandler.AdminLogin)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/ws", wsHandler.Serve)
	v1.GET("/conversations/:id/messages", messageHandler.List)
	v1.POST("/conversations/:id/messages", messageHandler.Send)
	v1.PATCH("/conversations/:id/messages/:mid", messageHandler.Edit)

	admin := v1.Group("")
	admin.Use(middleware.RequireAdmin())

	admin.DELETE("/conversations/:id/messages/:mid", messageHandler.Delete)
	admin.DELETE("/conversations/:id/messages", messageHandler.Clear)
	admin.POST("/conversations/:id/suggest", suggestHandler.Replies)
	admin.POST("/codes", codeHandler.Create)
	admin.GET("/codes", codeHandler.List)
	admin.PATCH("/codes/:id", codeHandler.SetStatus)
	admin.DELETE("/codes/:id", codeHandler.Delete)
	admin.POST("/codes/cleanup", codeHandler.Cleanup)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting glasschat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
