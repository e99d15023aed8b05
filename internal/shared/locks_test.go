package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRunLockSerialisesPerAccount(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	lock := NewRunLock(client, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, 7)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, 7)
	require.ErrorIs(t, err, ErrRunInProgress)

	// Disjoint accounts are independent.
	otherRelease, err := lock.Acquire(ctx, 8)
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := lock.Acquire(ctx, 7)
	require.NoError(t, err)
	release2()
}

func TestRunLockWithoutRedis(t *testing.T) {
	var lock *RunLock
	release, err := lock.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}
