// Package storage provides database connection and management
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/utils"
)

// Database represents the database connection manager
type Database struct {
	DB     *gorm.DB
	config *config.DatabaseConfig
	logger *utils.Logger
}

// NewDatabase opens the question bank database. SQLite is the default;
// Postgres is selected through config for shared deployments.
func NewDatabase(cfg *config.DatabaseConfig, log *utils.Logger) (*Database, error) {
	gormLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{
		DB:     db,
		config: cfg,
		logger: log,
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithField("driver", cfg.Driver).Info("Successfully connected to database")
	return database, nil
}

// Ping tests the database connection
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (d *Database) AutoMigrate() error {
	d.logger.Info("Starting database migration")

	if err := d.DB.AutoMigrate(&Question{}); err != nil {
		return fmt.Errorf("failed to migrate question table: %w", err)
	}

	d.logger.Info("Database migration completed successfully")
	return nil
}
