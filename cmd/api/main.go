package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	"campusmarket/internal/adapter/api"
	"campusmarket/internal/adapter/api/handler"
	apimiddleware "campusmarket/internal/adapter/api/middleware"
	"campusmarket/internal/adapter/api/router"
	"campusmarket/internal/infrastructure/auth"
	"campusmarket/internal/infrastructure/firebase"
	"campusmarket/internal/infrastructure/metrics"
	"campusmarket/internal/infrastructure/pubsub"
	"campusmarket/internal/infrastructure/queue"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/internal/infrastructure/websocket"
	"campusmarket/internal/usecase"
	"campusmarket/pkg/config"
	"campusmarket/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Configure(cfg.LogLevel, cfg.IsDevelopment(), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var firebaseOpts []option.ClientOption
	if cfg.FirebaseProject != "" {
		firebaseOpts, err = firebase.ClientOptions(cfg)
		if err != nil {
			logger.Error("Failed to load Firebase credentials: %v", err)
			os.Exit(1)
		}
	}

	st, err := openStore(ctx, cfg, firebaseOpts)
	if err != nil {
		logger.Error("Failed to open conversation store: %v", err)
		os.Exit(1)
	}
	defer st.close()

	var verifier apimiddleware.TokenVerifier
	if cfg.UseFirebaseAuth() {
		verifier, err = firebase.NewAuthClient(ctx, cfg, firebaseOpts)
		if err != nil {
			logger.Error("Failed to initialize Firebase Auth: %v", err)
			os.Exit(1)
		}
	} else {
		verifier = auth.NewJWTManager(cfg.JWTSecret, 0)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	wsManager := websocket.NewManager(m)

	var (
		dispatcher usecase.NotificationDispatcher
		drain      func()
	)
	if cfg.RedisURL != "" {
		redisClient, err := pubsub.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		broker := pubsub.NewRedisBroker(redisClient, cfg.RedisChannel, wsManager)
		go func() {
			if err := broker.Run(ctx); err != nil {
				logger.Error("Redis broker stopped: %v", err)
			}
		}()

		redisOpt, err := queue.ParseRedisOpt(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid REDIS_URL: %v", err)
			os.Exit(1)
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		queued := queue.NewAsynqDispatcher(asynqClient, cfg.NotifyTimeout, m)
		dispatcher = queued
		drain = queued.Wait
		worker := queue.NewWorker(redisOpt, usecase.NewNotifier(st.conversations, broker, m), 0)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("Notification worker stopped: %v", err)
			}
		}()
		logger.Info("Notifications fan out through Redis channel %s", cfg.RedisChannel)
	} else {
		async := usecase.NewAsyncDispatcher(usecase.NewNotifier(st.conversations, wsManager, m), cfg.NotifyTimeout, m)
		dispatcher = async
		drain = async.Wait
	}

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: cfg.MessageRatePerMinute, Burst: cfg.MessageRateBurst},
	})
	rateLimiter.StartCleanupRoutine(ctx)

	chatUseCase := usecase.NewChatUseCase(st.conversations, st.catalog, dispatcher, rateLimiter, m)

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	handler.Setup(chatUseCase, handler.Options{
		WSManager:      wsManager,
		AuthMiddleware: authMiddleware,
		WSSendBuffer:   cfg.WSSendBuffer,
		StoreDriver:    cfg.StoreDriver,
		StorePing:      st.ping,
	})

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(apimiddleware.Metrics(m))

	e.Validator = api.NewValidator()

	router.Setup(e, authMiddleware, rateLimiter)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown: %v", err)
	}
	wsManager.CloseAll()
	drain()
}
