package database

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

// DSN returns the PostgreSQL connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Connect opens the shared database handle. Pool sizing is applied by
// NewConnectionPool, not here.
func Connect(cfg Config) (*gorm.DB, error) {
	db, err := Open(postgres.Open(cfg.DSN()), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.DBName).Msg("Database connected")
	return db, nil
}

// Open builds a gorm handle over any dialector
func Open(dialector gorm.Dialector, logLevel string) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

func gormLogger(level string) logger.Interface {
	switch level {
	case "silent":
		return logger.Default.LogMode(logger.Silent)
	case "error":
		return logger.Default.LogMode(logger.Error)
	case "warn":
		return logger.Default.LogMode(logger.Warn)
	default:
		return logger.Default.LogMode(logger.Info)
	}
}

// MigratePublic creates the registry tables of the public partition. Tenant
// partitions are provisioned elsewhere.
func MigratePublic(ctx context.Context, scopes *ScopeManager, publicSchema string) error {
	return scopes.WithScope(ctx, publicSchema, func(sc *ScopedConn) error {
		if err := sc.DB().AutoMigrate(
			&models.Tenant{},
			&models.SuperAdminAccount{},
			&models.AuditLog{},
		); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}
