package main

import (
	"bid-aggregator/internal/api/handlers"
	"bid-aggregator/internal/config"
	"bid-aggregator/internal/domain"
	"bid-aggregator/internal/infrastructure/amqp"
	"bid-aggregator/internal/infrastructure/redis"
	"bid-aggregator/pkg/logger"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Initialize bid publisher
	var publisher domain.BidPublisher
	switch cfg.Stream.Driver {
	case config.DriverRedis:
		rdb := redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Stream.Address,
			Password: cfg.Stream.Password,
			DB:       cfg.Stream.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "address", cfg.Stream.Address, "error", err)
			os.Exit(1)
		}
		publisher = redis.NewStreamPublisher(rdb, cfg.Stream.Topic)

	case config.DriverAMQP:
		conn, err := amqp.Dial(ctx, cfg.Stream.AMQPURL, 5, time.Second, log)
		if err != nil {
			log.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		queuePublisher, err := amqp.NewQueuePublisher(conn, cfg.Stream.Topic)
		if err != nil {
			log.Error("Failed to create queue publisher", "error", err)
			os.Exit(1)
		}
		publisher = queuePublisher
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
		MaxAge: 86400,
	}))

	bidHandler := handlers.NewBidHandler(publisher, log)
	bidHandler.Register(e)

	go func() {
		log.Info("Starting bid producer", "address", cfg.ProducerAddress(), "topic", cfg.Stream.Topic)
		if err := e.Start(cfg.ProducerAddress()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bid producer...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := publisher.Close(); err != nil {
		log.Error("Failed to close bid publisher", "error", err)
	}

	log.Info("Bid producer stopped")
}
