package postgres

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the Postgres connection settings
type Config struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DefaultConfig returns sensible defaults for Postgres configuration
func DefaultConfig() Config {
	return Config{
		DSN:          "host=localhost port=5432 user=clan dbname=clan sslmode=disable",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}
}

// GormLogger routes gorm's slow-query and error output through slog
func GormLogger(log *slog.Logger) logger.Interface {
	return logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open connects to Postgres and configures the connection pool
func Open(cfg Config, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         GormLogger(log),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database instance")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return db, nil
}

// Migrate creates or updates every table the storage uses
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&RankRow{},
		&MemberRow{},
		&MemberRSNRow{},
		&RankHistoryRow{},
		&SnapshotRow{},
		&PointTransactionRow{},
		&ExemptionRow{},
		&GroupSnapshotRow{},
	)
}
