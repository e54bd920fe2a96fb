// Package testutil provides fixtures shared by the package tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every relational model migrated
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// every new connection to :memory: is a fresh empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

// Migrate creates the relational schema
func Migrate(db *gorm.DB) error {
	return models.AutoMigrate(db)
}

// FakeUser builds an unsaved user with random profile fields
func FakeUser() *models.User {
	name := gofakeit.Name()
	return &models.User{
		ID:             gofakeit.UUID(),
		Email:          gofakeit.Email(),
		FullName:       name,
		Username:       strings.ToLower(gofakeit.Username()) + gofakeit.DigitN(4),
		Bio:            models.DefaultBio,
		ProfilePicture: gofakeit.URL(),
		Location:       gofakeit.City(),
	}
}

// CreateUser persists a fake user and returns it
func CreateUser(t testing.TB, db *gorm.DB) *models.User {
	t.Helper()
	u := FakeUser()
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateUsers persists n fake users
func CreateUsers(t testing.TB, db *gorm.DB, n int) []*models.User {
	t.Helper()
	users := make([]*models.User, 0, n)
	for range n {
		users = append(users, CreateUser(t, db))
	}
	return users
}

// Reload fetches the current row for u
func Reload(t testing.TB, db *gorm.DB, id string) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return &u
}

// Clock is a settable time source
type Clock struct {
	T time.Time
}

// Now returns the current fake time
func (c *Clock) Now() time.Time { return c.T }

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }
