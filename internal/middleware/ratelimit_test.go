package middleware_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"tokopay/internal/config"
	"tokopay/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(key)
	return args.Bool(0), args.Error(1)
}

func newApp(l middleware.Limiter) *fiber.App {
	app := fiber.New()
	app.Use(middleware.RateLimit(l))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestLocalLimiterBurst(t *testing.T) {
	l := middleware.NewLocalLimiter(0.001, 2)
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys have separate buckets")
}

func TestRateLimitRejectsWith429(t *testing.T) {
	l := middleware.NewLocalLimiter(0.001, 1)
	defer l.Close()
	app := newApp(l)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	l := new(mockLimiter)
	l.On("Allow", mock.Anything).Return(false, errors.New("redis down"))

	resp, err := newApp(l).Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	l.AssertExpectations(t)
}

func TestNewLimiterSelectsBackend(t *testing.T) {
	local := middleware.NewLimiter(config.RateLimitConfig{RPS: 1, Burst: 1})
	assert.IsType(t, &middleware.LocalLimiter{}, local)
	local.(*middleware.LocalLimiter).Close()

	remote := middleware.NewLimiter(config.RateLimitConfig{RPS: 1, Burst: 1, RedisAddr: "localhost:6379"})
	assert.IsType(t, &middleware.RedisLimiter{}, remote)
	remote.(*middleware.RedisLimiter).Close()
}
