// Package repotest provides throwaway SQLite databases for tests.
package repotest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"tokopay/internal/config"
	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a private in-memory database with the full schema. A single connection keeps
// every caller on the same database and serializes transactions.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := repositories.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, repositories.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewFileDB opens a database file in a temporary directory behind a pool of up to
// maxOpenConns connections, so concurrent callers really do contend for the file lock.
func NewFileDB(t testing.TB, maxOpenConns int) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "tokopay.db") + "?_foreign_keys=on"
	db, err := repositories.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: maxOpenConns})
	require.NoError(t, err)
	require.NoError(t, repositories.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewStore is NewDB wrapped in a GORMStore.
func NewStore(t testing.TB) (*repositories.GORMStore, *gorm.DB) {
	db := NewDB(t)
	return repositories.NewGORMStore(db), db
}

// SeedProduct inserts a product priced at price.
func SeedProduct(t testing.TB, store repositories.Store, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: money.MustParse(price), Stock: stock}
	require.NoError(t, store.Products().Create(context.Background(), p))
	return p
}

// SeedUser inserts a user with a unique username and email.
func SeedUser(t testing.TB, store repositories.Store) *models.User {
	t.Helper()
	suffix := uuid.NewString()[:8]
	u := &models.User{Username: "user-" + suffix, Name: "Test User", Email: suffix + "@example.com", Password: "not-a-hash"}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}
