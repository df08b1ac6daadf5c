// Package repo implements the data persistence layer for the customer hub,
// backed by GORM. This file contains database bootstrapping: driver
// selection (SQLite by default, MySQL and Postgres on request), SQLite
// PRAGMAs, pool tuning, the OpenTelemetry plugin and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Options selects and tunes the database connection.
type Options struct {
	Driver   string // sqlite|mysql|postgres (default sqlite)
	Path     string // SQLite file path
	DSN      string // MySQL/Postgres DSN
	Tracing  bool   // install the GORM OpenTelemetry plugin
	Silent   bool   // silence the GORM logger
	MaxConns int    // pool size, default 10
}

// Open connects to the configured database. SQLite connections carry the
// hub PRAGMAs in their DSN; every driver gets the same pool tuning.
func Open(opts Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if opts.Silent {
		gcfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		db, err = openSQLite(opts.Path, gcfg)
	case DriverMySQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("mysql: DSN is required")
		}
		db, err = gorm.Open(mysql.Open(opts.DSN), gcfg)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres: DSN is required")
		}
		db, err = gorm.Open(postgres.Open(opts.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := tunePool(db, opts.MaxConns); err != nil {
		return nil, err
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("install tracing plugin: %w", err)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database at path with the hub
// PRAGMAs and the default pool.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(Options{Driver: DriverSQLite, Path: path})
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		path = "hub.db"
	}
	// sqlite reports a missing directory as "out of memory (14)"
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	return gorm.Open(sqlite.Open(sqliteDSN(path)), gcfg)
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join([]string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}, "&")
}

func tunePool(db *gorm.DB, maxConns int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return nil
}

// AutoMigrate creates or updates every hub table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Contact{},
		&domain.Thread{},
		&domain.Signal{},
		&domain.TriggerOutput{},
		&domain.CustomerCodeSequence{},
		&domain.DeliveryRecord{},
	)
}
