package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/isometry/ldapauth/internal/logging"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver        string
	DSN           string
	SlowThreshold time.Duration
	MaxOpenConns  int
}

// Open connects to the configured database.
func Open(opts Options, logger logging.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite, "":
		dsn := opts.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres requires a DSN")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger.Named("sql"), opts.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", opts.Driver, err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	return db, nil
}
