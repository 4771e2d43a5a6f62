package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectMongoWithRetry_GivesUp(t *testing.T) {
	ctx := context.Background()
	// nothing listens on port 1; a single attempt must fail fast with the cause wrapped
	_, err := ConnectMongoWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100", 300*time.Millisecond, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 1 attempts")
}

func TestConnectMongoWithRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectMongoWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100", 100*time.Millisecond, 3)
	require.Error(t, err)
}
