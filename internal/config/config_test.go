package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, "medium", cfg.DefaultActivityLevel)
	assert.Equal(t, 60*time.Second, cfg.DispatchSweepInterval)
	assert.Equal(t, 60*time.Second, cfg.DispatchMaxAge)
	assert.Equal(t, 500, cfg.ExpirySweepLimit)
	assert.True(t, cfg.BroadcastRelay)
	assert.Equal(t, "engage.gifts.settled", cfg.KafkaSettledTopic)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "2s")
	t.Setenv("DEFAULT_ACTIVITY_LEVEL", "high")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 2*time.Second, cfg.ExpirySweepInterval)
	assert.Equal(t, "high", cfg.DefaultActivityLevel)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KAFKA_GIFT_TOPIC=gifts.test\nWS_SEND_BUFFER=64\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("KAFKA_GIFT_TOPIC")
		_ = os.Unsetenv("WS_SEND_BUFFER")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gifts.test", cfg.KafkaGiftTopic)
	assert.Equal(t, 64, cfg.WSSendBuffer)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad int", "REDIS_DB", "not-an-int", "parse env"},
		{"unknown level", "DEFAULT_ACTIVITY_LEVEL", "extreme", "DEFAULT_ACTIVITY_LEVEL"},
		{"zero sweep", "EXPIRY_SWEEP_INTERVAL", "0s", "EXPIRY_SWEEP_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{DefaultActivityLevel: "low", ExpirySweepInterval: time.Second, DispatchSweepInterval: time.Minute}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_HOST is required")

	cfg.RedisHost = "redis"
	assert.NoError(t, cfg.Validate())
}
