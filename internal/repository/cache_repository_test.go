package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestCacheRepositorySetGet(t *testing.T) {
	srv, client := newRedis(t)
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "audit:recent:50", []int{1, 2, 3}, time.Minute))
	var out []int
	require.NoError(t, repo.Get(ctx, "audit:recent:50", &out))
	assert.Equal(t, []int{1, 2, 3}, out)

	srv.FastForward(2 * time.Minute)
	err := repo.Get(ctx, "audit:recent:50", &out)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryCorruptEntryIsMiss(t *testing.T) {
	srv, client := newRedis(t)
	repo := NewCacheRepository(client, nil)
	require.NoError(t, srv.Set("audit:recent:50", "{not json"))

	var out []int
	err := repo.Get(context.Background(), "audit:recent:50", &out)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.False(t, srv.Exists("audit:recent:50"))
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	srv, client := newRedis(t)
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "audit:recent:50", 1, 0))
	require.NoError(t, repo.Set(ctx, "audit:client:3", 1, 0))
	require.NoError(t, repo.Set(ctx, "clients:all", 1, 0))

	removed, err := repo.DeleteByPattern(ctx, "audit:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, srv.Exists("clients:all"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out int
	assert.True(t, errors.Is(repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
	n, err := repo.DeleteByPattern(context.Background(), "*")
	assert.NoError(t, err)
	assert.Zero(t, n)
}
