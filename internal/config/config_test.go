package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tokopay/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "razorpay", cfg.Gateway.Name)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Gateway.LinkTTL)
	assert.Equal(t, "INR", cfg.Gateway.Currency)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.KafkaBrokers)
	assert.Contains(t, cfg.Database.DSN, "_busy_timeout=")
	assert.Contains(t, cfg.Database.DSN, "_txlock=immediate")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("EVENTS_DRIVER", "kafka")
	t.Setenv("PAYMENT_CURRENCY", "usd")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "kafka", cfg.Events.Driver)
	assert.Equal(t, "USD", cfg.Gateway.Currency)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokopay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT: \":9999\"\nRATE_LIMIT_BURST: 3\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.AppPort)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "carrier-pigeon")
	_, err := config.Load(viper.New())
	assert.Error(t, err)
}

func TestLoadRejectsShortLinkTTL(t *testing.T) {
	t.Setenv("PAYMENT_LINK_TTL", "1m")
	_, err := config.Load(viper.New())
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveRateLimit(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero rps", "RATE_LIMIT_RPS", "0"},
		{"negative rps", "RATE_LIMIT_RPS", "-1"},
		{"zero burst", "RATE_LIMIT_BURST", "0"},
		{"negative burst", "RATE_LIMIT_BURST", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
