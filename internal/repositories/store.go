package repositories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tokopay/internal/apperr"
	"tokopay/internal/config"
	"tokopay/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store groups the repositories that take part in one unit of work.
type Store interface {
	Orders() OrderRepository
	Products() ProductRepository
	Payments() PaymentRepository
	Users() UserRepository
	// WithinTransaction runs fn against a Store bound to a single database transaction.
	// Returning an error from fn rolls everything back.
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
}

// GORMStore is the GORM implementation of Store.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore creates a new GORMStore.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

func (s *GORMStore) Orders() OrderRepository     { return NewGORMOrderRepository(s.db) }
func (s *GORMStore) Products() ProductRepository { return NewGORMProductRepository(s.db) }
func (s *GORMStore) Payments() PaymentRepository { return NewGORMPaymentRepository(s.db) }
func (s *GORMStore) Users() UserRepository       { return NewGORMUserRepository(s.db) }

// WithinTransaction implements Store.
func (s *GORMStore) WithinTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMStore(tx))
	})
}

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

// sqliteDSN makes writers take the database lock when their transaction begins and wait for
// it instead of failing with "database is locked" while another connection holds it.
func sqliteDSN(dsn string) string {
	for _, param := range []string{"_txlock=immediate", "_busy_timeout=5000"} {
		key := param[:strings.IndexByte(param, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Product{}, &models.Order{}, &models.LineItem{}, &models.Payment{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// translate maps GORM errors onto application errors.
func translate(err error, notFound *apperr.Error, format string, args ...any) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.ErrIntegrity.Wrap(fmt.Errorf(format+": %w", append(args, err)...))
	default:
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
}
