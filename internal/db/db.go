package db

import (
	"fmt"
	"log/slog"
	"time"

	"jukwaa/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres. Slow queries and errors go through gorm's own
// logger; everything else is quiet.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	slog.Info("database connection established", "event", "db_connected", "module", "db")
	return conn, nil
}

// Migrate creates or updates every table the engagement core owns.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		// 审核相关模型
		&models.ModerationRecord{},
		&models.Report{},
		&models.AccountStatus{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("database migration completed", "event", "db_migrated", "module", "db")
	return nil
}
