package db

import (
	"fmt"
	"log"
	"time"

	"datalabel-backend/internal/config"
	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// GormConfig shared gorm settings
func GormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		Logger:                                   logger.Default.LogMode(logger.Silent),
	}
}

// InitDB connect to Postgres, migrate the schema and apply data migrations
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	log.Printf("Connecting to database (driver=%s)", cfg.Driver)

	conn, err := gorm.Open(postgres.Open(cfg.DSN), GormConfig())
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	metrics.DBConnectionStatus.Set(1)
	log.Println("✅ Database connected successfully")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	if err := RunDataMigrations(sqlDB); err != nil {
		return nil, fmt.Errorf("data migrations failed: %w", err)
	}

	DB = conn
	return conn, nil
}

// Migrate auto migrate all models
func Migrate(conn *gorm.DB) error {
	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Submission{},
		&models.LedgerTransaction{},
		&models.SettlementAttempt{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	log.Println("✅ Database schema migrated successfully")
	return nil
}

// RecordPoolStats publish connection pool gauges
func RecordPoolStats(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	stats := sqlDB.Stats()
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionStatus.Set(1)
}
