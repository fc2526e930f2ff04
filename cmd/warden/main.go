package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/blackhole-dns/warden/adapters/events"
	"github.com/blackhole-dns/warden/adapters/store"
	"github.com/blackhole-dns/warden/internal/credential"
	"github.com/blackhole-dns/warden/ports"
	"github.com/blackhole-dns/warden/service"
	"github.com/blackhole-dns/warden/transport/http"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the hash of the given password and exit")
	flag.Parse()

	if *hashPassword != "" {
		fmt.Println(credential.HashPassword(*hashPassword))
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	addr := envOr("WARDEN_ADDR", ":9000")

	cfg := service.Config{
		PasswordHash:      os.Getenv("WARDEN_PASSWORD_HASH"),
		SessionTimeout:    envDuration("WARDEN_SESSION_TIMEOUT", 0),
		LocalAuthRequired: envBool("WARDEN_LOCAL_AUTH_REQUIRED"),
	}

	if cfg.PasswordHash == "" {
		logger.Warn("no password hash configured, API authentication is disabled")
	}

	// Without Redis the engine falls back to process-local throttling and
	// no event publishing.
	var (
		throttle ports.ThrottleStore = store.NewMemoryStore()
		eventPub ports.EventPublisher = events.NewNoopPublisher()
	)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("failed to parse Redis URL", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(opts)
		throttle = store.NewRedisStore(redisClient)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			logger.Error("failed to create Redis publisher", "error", err)
			os.Exit(1)
		}
		eventPub = events.NewWatermillPublisher(publisher)
	}

	authService := service.NewAuthService(cfg, throttle, eventPub, logger)

	router := http.SetupRouter(authService)

	srv := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	// Sessions do not survive the process.
	authService.DeleteAllSessions()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
