package database

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedPortDSN(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "postgres://app:secret@" + addr + "/app?sslmode=disable&connect_timeout=1"
}

func TestNewDatabase_GivesUpAfterAttempts(t *testing.T) {
	start := time.Now()
	_, err := NewDatabase(context.Background(), closedPortDSN(t), Options{
		ConnectAttempts: 2,
		ConnectInterval: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewDatabase_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDatabase(ctx, closedPortDSN(t), Options{
		ConnectAttempts: 100,
		ConnectInterval: time.Second,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDatabase_InvalidDSN(t *testing.T) {
	_, err := NewDatabase(context.Background(), "postgres://%zz", Options{})
	require.Error(t, err)
}
