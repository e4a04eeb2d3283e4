package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"messagehub/internal/api"
	"messagehub/internal/auth"
	"messagehub/internal/cache"
	"messagehub/internal/config"
	"messagehub/internal/logger"
	"messagehub/internal/moderation"
	"messagehub/internal/ratelimit"
	"messagehub/internal/redis"
	"messagehub/internal/service/messaging"
	"messagehub/internal/storage"
	"messagehub/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("MESSAGEHUB_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(logger.FromConfig(cfg.Logging))

	dbType := cfg.BasicConfig.DBDriver
	slog.Info("opening database", slog.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		fatal("migrate database", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		fatal("create redis client", err)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	moderator, err := moderation.FromConfig(ctx, cfg)
	if err != nil {
		fatal("init moderation", err)
	}
	fieldCipher, err := messaging.FieldCipherFromEnv()
	if err != nil {
		fatal("init field cipher", err)
	}
	msgService := messaging.NewService(db,
		messaging.WithModerator(moderator),
		messaging.WithCache(cache.NewMessageCache(rdb, cache.DefaultTTL)),
		messaging.WithFieldCipher(fieldCipher),
		messaging.WithPasswordConfig(&auth.PasswordConfig{
			Cost:      cfg.Auth.BcryptCost,
			MinLength: cfg.Auth.PasswordMinLength,
		}),
	)

	authService := auth.NewService(db, rdb, auth.Options{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	authService.SetUserLookup(msgService)

	notifier := worker.NewNotifier(rdb, worker.Options{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		InstanceID:  logger.InstanceID(),
	})
	defer notifier.Close()
	msgService.SetNotifier(notifier)

	cleanupTasks := []messaging.CleanupTask{{Name: "token blacklist", Run: authService.PurgeExpiredBlacklist}}
	var limiter ratelimit.Limiter
	if rdb.Enabled() {
		limiter = ratelimit.NewRedisWindow(rdb, cfg.Middleware.RateLimit, cfg.Middleware.RateWindow())
	} else {
		window := ratelimit.NewWindow(cfg.Middleware.RateLimit, cfg.Middleware.RateWindow())
		limiter = window
		cleanupTasks = append(cleanupTasks, messaging.CleanupTask{
			Name: "rate limit windows",
			Run:  func(context.Context) (int64, error) { return int64(window.Prune()), nil },
		})
	}
	msgService.StartNotificationCleaner(ctx,
		time.Duration(cfg.BasicConfig.NotificationCleanInterval)*time.Minute,
		time.Duration(cfg.BasicConfig.NotificationRetention)*time.Hour,
		cleanupTasks...,
	)

	requestLog, err := logger.RotatingFile(cfg.Middleware.RequestLog)
	if err != nil {
		fatal("open request log", err)
	}
	defer requestLog.Close()

	handlers, err := api.NewHandler(msgService, authService, notifier, api.Options{
		Middleware: cfg.Middleware,
		Limiter:    limiter,
		RequestLog: requestLog,
	})
	if err != nil {
		fatal("init handlers", err)
	}
	if os.Getenv("GIN_MODE") == "" && logger.DetectEnv() == logger.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// notification streams end when the process is asked to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.Info("server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server stopped", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", slog.Any("err", err))
	}
	slog.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("err", err))
	os.Exit(1)
}
