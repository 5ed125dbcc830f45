package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"catalog-service/config"
	"catalog-service/internal/api"
	"catalog-service/internal/broker"
	"catalog-service/internal/progress"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
	"catalog-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog service")

	tp, err := util.InitTracer("catalog-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
	}
	log.Println("Redis connected")

	progressStore := progress.NewStore(redisClient, cfg.Import.ProgressTTL)

	producer := broker.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	enqueuer := broker.NewEnqueuer(producer,
		cfg.Kafka.ImportTopic, cfg.Kafka.BulkDeleteTopic,
		cfg.Import.ImportTaskTTL, cfg.Import.BulkTaskTTL)

	webhookService := service.NewWebhookService(db, cfg.Webhook.Timeout)
	defer webhookService.Close()

	importService := service.NewImportService(db, db, progressStore, webhookService,
		cfg.Import.BatchSize, cfg.Import.ProgressInterval)
	deleteService := service.NewBulkDeleteService(db, db, progressStore, webhookService,
		cfg.Import.BatchSize, cfg.Import.ProgressInterval)

	retry := broker.RetryPolicy{
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseDelay:   cfg.Worker.RetryBaseDelay,
		MaxDelay:    cfg.Worker.RetryMaxDelay,
		Jitter:      0.25,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workerWG sync.WaitGroup
	var consumers []*broker.Consumer

	startPool := func(topic string, runner worker.JobRunner) {
		for i := 0; i < cfg.Worker.Concurrency; i++ {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.ConsumerGroup)
			consumers = append(consumers, consumer)
			w := worker.New(consumer, producer, cfg.Kafka.DeadLetterTopic, runner,
				retry, cfg.Worker.SoftTimeLimit, cfg.Worker.HardTimeLimit)
			workerWG.Add(1)
			go func() {
				defer workerWG.Done()
				w.Start(workerCtx)
			}()
		}
	}
	startPool(cfg.Kafka.ImportTopic, importService)
	startPool(cfg.Kafka.BulkDeleteTopic, deleteService)
	log.Printf("Started %d workers per queue", cfg.Worker.Concurrency)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(db, progressStore, enqueuer, webhookService, redisClient, cfg)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	workerWG.Wait()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			log.Printf("Error closing consumer: %v", err)
		}
	}

	log.Println("Server exited")
}
