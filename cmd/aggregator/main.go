package main

import (
	"bid-aggregator/internal/api/handlers"
	"bid-aggregator/internal/api/middleware"
	"bid-aggregator/internal/config"
	"bid-aggregator/internal/domain"
	"bid-aggregator/internal/infrastructure/amqp"
	"bid-aggregator/internal/infrastructure/leader"
	"bid-aggregator/internal/infrastructure/redis"
	"bid-aggregator/internal/infrastructure/websocket"
	"bid-aggregator/internal/services"
	"bid-aggregator/pkg/logger"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize the aggregation core
	ledger := services.NewLedger()
	registry := services.NewSubscriberRegistry(log)
	broadcaster := services.NewBroadcaster(registry, log)
	aggregator := services.NewAggregator(ledger, registry, broadcaster, log)

	// Initialize bid source
	var (
		source       domain.BidSource
		instanceLock domain.InstanceLock
	)
	// consumer names come from config and may repeat across processes
	lockOwner := cfg.Stream.Consumer + ":" + uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch cfg.Stream.Driver {
	case config.DriverRedis:
		rdb := redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Stream.Address,
			Password: cfg.Stream.Password,
			DB:       cfg.Stream.DB,
		})
		defer rdb.Close()

		// Test Redis connection
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "address", cfg.Stream.Address, "error", err)
			os.Exit(1)
		}

		if cfg.Leader.Enabled {
			instanceLock = leader.NewRedisInstanceLock(rdb, cfg.Stream.Group, cfg.Leader.TTL, log)
			if err := instanceLock.Acquire(ctx, lockOwner); err != nil {
				log.Error("Failed to acquire aggregator lock", "group", cfg.Stream.Group, "error", err)
				os.Exit(1)
			}
		}

		source = redis.NewStreamSource(rdb, redis.StreamSourceConfig{
			Stream:    cfg.Stream.Topic,
			Group:     cfg.Stream.Group,
			Consumer:  cfg.Stream.Consumer,
			Block:     cfg.Stream.Block,
			BatchSize: cfg.Stream.BatchSize,
		}, log)

	case config.DriverAMQP:
		conn, err := amqp.Dial(ctx, cfg.Stream.AMQPURL, 5, time.Second, log)
		if err != nil {
			log.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		queueSource, err := amqp.NewQueueSource(conn, cfg.Stream.Topic, cfg.Stream.Consumer, int(cfg.Stream.BatchSize), log)
		if err != nil {
			log.Error("Failed to create queue consumer", "error", err)
			os.Exit(1)
		}
		source = queueSource
	}

	// Initialize stats reporter
	reporter := services.NewStatsReporter(cfg.Reporter.Schedule, aggregator, log)
	if err := reporter.Start(context.Background()); err != nil {
		log.Error("Failed to start stats reporter", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	wsHandler := websocket.NewWebSocketHandler(aggregator, websocket.SubscriberOptions{
		BufferSize:   cfg.Subscriber.BufferSize,
		WriteTimeout: cfg.Subscriber.WriteTimeout,
		PingInterval: cfg.Subscriber.PingInterval,
	}, log)
	ledgerHandler := handlers.NewLedgerHandler(aggregator, log)

	// Setup routes
	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	router.Handle("/ws", wsHandler)
	ledgerHandler.Register(router)

	// Bind before consuming so a taken port fails fast
	listener, err := net.Listen("tcp", cfg.ServerAddress())
	if err != nil {
		log.Error("Failed to bind websocket server", "address", cfg.ServerAddress(), "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Handler: router,
	}

	go func() {
		log.Info("Starting bid aggregator", "address", listener.Addr().String(), "driver", cfg.Stream.Driver)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Start consuming bids
	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := source.Subscribe(consumeCtx, aggregator.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Bid consumer failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bid aggregator...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	stopConsuming()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("Bid consumer did not stop in time")
	}
	if err := source.Close(); err != nil {
		log.Error("Failed to close bid source", "error", err)
	}

	if err := reporter.Stop(); err != nil {
		log.Error("Failed to stop stats reporter", "error", err)
	}

	if instanceLock != nil {
		if err := instanceLock.Release(shutdownCtx, lockOwner); err != nil {
			log.Error("Failed to release aggregator lock", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Bid aggregator stopped")
}
