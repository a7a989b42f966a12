package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DatabaseConfig struct {
	URL             string `env:"DATABASE_URL,required"`
	MaxConn         int    `env:"DATABASE_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"DATABASE_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"DATABASE_LOG_LEVEL" envDefault:"WARN"`
}

// NewConnection opens the process-wide gorm connection pool from a Postgres
// URI.
func NewConnection(cfg *DatabaseConfig) (*gorm.DB, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database url is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	return db, nil
}

func logLevel(level string) gormlogger.LogLevel {
	switch level {
	case "ERROR":
		return gormlogger.Error
	case "INFO":
		return gormlogger.Info
	case "SILENT":
		return gormlogger.Silent
	default:
		return gormlogger.Warn
	}
}
