package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/stampquest/internal/stampquest"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewRedisStore(client, logger)
	s.now = func() time.Time { return testNow }
	return s, mr
}

func TestRedisStore(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) stampquest.Repository {
		s, _ := setupRedisStore(t)
		return s
	})
}

func TestRedisStoreKeys(t *testing.T) {
	s, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSession(ctx, testSession(t, "s1", "p1")))
	prof, err := s.LoadProfile(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, stampquest.Update{Profile: prof}))

	assert.True(t, mr.Exists("stampquest:session:p1"))
	assert.True(t, mr.Exists("stampquest:profile:p1"))
}

func TestRedisStoreCorruptDocument(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, mr.Set("stampquest:session:p1", "not json"))

	_, err := s.LoadSession(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, stampquest.ErrNotFound)
}

func TestOpenRedisBadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "://nope")
	assert.Error(t, err)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, "redis://"+addr)
	assert.Error(t, err)
}

func TestRedisStorePing(t *testing.T) {
	s, _ := setupRedisStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
