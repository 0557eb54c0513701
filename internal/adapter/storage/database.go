package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/pvlogger/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const SLOW_QUERY_THRESHOLD = 500 * time.Millisecond

// Open connects to dsn with the driver and pool settings of cfg.
func Open(cfg config.DatabaseConfig, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}
	return db, nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	level := gormlogger.Silent
	switch logger.Level() {
	case zapcore.DebugLevel:
		level = gormlogger.Info
	case zapcore.InfoLevel, zapcore.WarnLevel:
		level = gormlogger.Warn
	case zapcore.ErrorLevel:
		level = gormlogger.Error
	}
	return gormlogger.New(
		zap.NewStdLog(logger.With(zap.String("component", "gorm"))),
		gormlogger.Config{
			SlowThreshold:             SLOW_QUERY_THRESHOLD,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Pinger checks every database a process depends on.
type Pinger struct {
	dbs []*gorm.DB
}

func NewPinger(dbs ...*gorm.DB) *Pinger {
	return &Pinger{dbs: dbs}
}

func (p *Pinger) Ping(ctx context.Context) error {
	for _, db := range p.dbs {
		if err := Ping(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
