package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"attendance/internal/attendance"
	"attendance/internal/audit"
	"attendance/internal/config"
	"attendance/internal/handler"
	"attendance/internal/queue"
	"attendance/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, closer, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	log.Printf("store backend: %s", cfg.StoreBackend)

	var redisClient *store.Redis
	if cfg.NeedsRedis() {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Printf("warning: redis not reachable at %s", cfg.RedisAddr)
		}
	}

	policy, err := attendance.ParseStatusPolicy(cfg.StatusPolicy)
	if err != nil {
		return err
	}
	opts := attendance.Options{
		StatusPolicy:    policy,
		CheckStudentRef: cfg.CheckStudentRef,
	}
	if cfg.LockBackend == "redis" {
		opts.Locker = store.NewRedisLocker(redisClient.Client, "", cfg.LockTTL)
		log.Println("write lock: redis")
	}

	var rdb *redis.Client
	if redisClient != nil {
		rdb = redisClient.Client
	}
	q, err := queue.New(cfg.QueueBackend, rdb, 256)
	if err != nil {
		return err
	}
	opts.Publisher = q
	if cfg.QueueBackend == "memory" || cfg.QueueBackend == "" {
		// nothing else reads an in-process queue
		go func() {
			if err := audit.NewConsumer(nil).Run(ctx, q); err != nil {
				log.Printf("audit consumer stopped: %v", err)
			}
		}()
	}

	svc := attendance.NewService(snapshots, opts)

	checks := []handler.HealthCheck{{Name: "store", Check: snapshots.Healthy}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: redisClient.Healthy})
	}
	router := handler.NewRouter(handler.New(svc, checks...), handler.RouterOptions{
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		AccessLog:       true,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
