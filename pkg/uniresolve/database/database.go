package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// Connect opens the database selected by cfg.Driver. SQLite is the default
// and is also what the tests use; PostgreSQL is used in production.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         glogger.Default.LogMode(glogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 20))
		sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 10))
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		} else {
			sqlDB.SetConnMaxLifetime(45 * time.Minute)
		}
	} else {
		// SQLite has a single writer, and every ":memory:" connection is a
		// separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Open connects and runs migrations.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenInMemory returns a migrated in-memory SQLite database.
func OpenInMemory() (*gorm.DB, error) {
	return Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
