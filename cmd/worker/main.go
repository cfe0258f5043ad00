package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendance/internal/audit"
	"attendance/internal/config"
	"attendance/internal/queue"
	"attendance/internal/store"
)

// Worker consumes change events from the Redis queue and writes the audit log.
func main() {
	cfg := config.Load()
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	log.Println("worker started, waiting for messages...")
	if err := audit.NewConsumer(nil).Run(ctx, q); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}
