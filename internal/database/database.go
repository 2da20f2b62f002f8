package database

import (
	"context"
	"fmt"
	"time"

	"paycat.dev/gateway/internal/config"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	DB          *gorm.DB
	RedisClient *redis.Client
)

// InitDatabase initializes the relational store and cache connections
// and brings the schema up to date.
func InitDatabase() error {
	if err := initPostgres(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := initRedis(); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if config.AppConfig.AutoMigrate {
		if err := autoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return nil
}

func initPostgres() error {
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}

	if dsn := config.AppConfig.DatabaseURL; dsn == "" {
		logging.Infof("Database URL not set, using SQLite for development")
		DB, err = gorm.Open(sqlite.Open("paycat.db"), gormConfig)
	} else {
		DB, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Infof("Database connected successfully")
	return nil
}

func initRedis() error {
	opt, err := redis.ParseURL(config.AppConfig.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	RedisClient = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Infof("Redis connected successfully")
	return nil
}

func autoMigrate() error {
	return DB.AutoMigrate(
		&models.App{},
		&models.Subscriber{},
		&models.Subscription{},
		&models.Transaction{},
		&models.ProcessedNotification{},
		&models.Webhook{},
		&models.WebhookDelivery{},
		&models.Integration{},
		&models.IntegrationDelivery{},
		&models.EntitlementDefinition{},
		&models.ProductEntitlement{},
	)
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB { return DB }

// GetRedis returns the shared Redis client.
func GetRedis() *redis.Client { return RedisClient }

// CloseDatabase releases the database and Redis connections.
func CloseDatabase() error {
	if sqlDB, err := DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logging.Errorf("Failed to close database: %v", err)
		}
	}

	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logging.Errorf("Failed to close Redis: %v", err)
		}
	}

	return nil
}
