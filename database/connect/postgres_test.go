package connect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgres_GivesUpAfterConnectTimeout(t *testing.T) {
	ctx := context.Background()
	// nothing listens on port 1
	dsn := "host=127.0.0.1 port=1 user=engage password=engage dbname=engage sslmode=disable connect_timeout=1"

	start := time.Now()
	db, err := Postgres(ctx, zap.NewNop(), dsn, Options{ConnectTimeout: 300 * time.Millisecond})

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to connect to database")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestPostgres_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Postgres(ctx, zap.NewNop(), "host=127.0.0.1 port=1 sslmode=disable", Options{})
	require.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 25, opts.MaxOpenConns)
	assert.Equal(t, 5, opts.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, opts.ConnMaxLifetime)
}
