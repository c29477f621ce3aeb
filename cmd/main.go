package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cafe-order-service/internal/api"
	"cafe-order-service/internal/cache"
	"cafe-order-service/internal/config"
	"cafe-order-service/internal/consumer"
	"cafe-order-service/internal/repository"
	"cafe-order-service/internal/service"
	"cafe-order-service/internal/sharding"
	"cafe-order-service/migrations"

	"github.com/go-redis/redis/v8"
)

func connectDB(dialect repository.Dialect, dsn string) (*sql.DB, error) {
	if dialect == repository.DialectSQLite {
		return repository.OpenSQLite(dsn)
	}

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Printf("✅ Connected to DB")
				return db, nil
			}
		}
		log.Printf("❌ Retry %d: Failed to connect to DB: %v", i+1, err)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB after retries: %v", err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dialect, err := repository.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := connectDB(dialect, cfg.DBDSN)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	err = migrations.AutoMigrate(dialect, cfg.MigrationRetries, db)
	if err != nil {
		log.Fatalf("Failed to migrate tables: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	redisCache := cache.NewRedisCache(rdb, "cafe")

	kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderTopic)
	defer kafkaWriter.Close()
	paymentReader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.PaymentTopic, cfg.ConsumerGroup)
	defer paymentReader.Close()

	store := repository.NewStore(db, dialect)
	publisher := service.NewKafkaPublisher(kafkaWriter)
	recipes := service.NewRecipeResolver(store.Recipes(), redisCache, cfg.RecipeCacheTTL)

	orderService := service.NewOrderService(store, redisCache, publisher)
	workflow := service.NewWorkflow(store, service.NewIngredientAggregator(recipes), sharding.NewStoreLocks(cfg.LockStripes), publisher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paymentConsumer := consumer.NewConsumer(paymentReader, workflow)
	go paymentConsumer.Start(ctx)

	orderHandler := api.NewOrderHandler(orderService, workflow)
	e := api.NewRouter(orderHandler, api.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.Shutdown(shutdownCtx)
	}()

	if err := e.Start(cfg.HTTPAddr); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}
