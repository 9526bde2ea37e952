package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/adapters/storage"
	"authkeeper/internal/client/domain/entities"
	storagePorts "authkeeper/internal/client/ports/storage"
)

const testKey = "authkeeper:session:durable"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return server, client
}

func testSnapshot(t *testing.T) storagePorts.Snapshot {
	t.Helper()

	user, err := entities.ParseUser(json.RawMessage(`{"id":1,"email":"user@example.com"}`))
	require.NoError(t, err)

	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return storagePorts.Snapshot{
		Mode: entities.Durable,
		Tokens: entities.TokenPair{
			AccessToken:  "access",
			RefreshToken: "refresh",
			IssuedAt:     issued,
		},
		User: user,
	}
}

func assertSameSnapshot(t *testing.T, want, got storagePorts.Snapshot) {
	t.Helper()

	assert.Equal(t, want.Mode, got.Mode)
	assert.Equal(t, want.Tokens.AccessToken, got.Tokens.AccessToken)
	assert.Equal(t, want.Tokens.RefreshToken, got.Tokens.RefreshToken)
	assert.True(t, want.Tokens.IssuedAt.Equal(got.Tokens.IssuedAt))
	assert.Equal(t, want.User.ID, got.User.ID)
	assert.Equal(t, want.User.Email, got.User.Email)
}

func TestRedisPartition(t *testing.T) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		server, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, time.Hour, nil)
		snapshot := testSnapshot(t)

		require.NoError(t, partition.Save(ctx, snapshot))
		assert.Equal(t, time.Hour, server.TTL(testKey))

		got, ok, err := partition.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameSnapshot(t, snapshot, got)
	})

	t.Run("empty", func(t *testing.T) {
		_, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, 0, nil)

		_, ok, err := partition.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		server, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, 0, nil)

		require.NoError(t, partition.Save(ctx, testSnapshot(t)))
		require.NoError(t, partition.Clear(ctx))
		assert.False(t, server.Exists(testKey))
	})

	t.Run("expired by ttl", func(t *testing.T) {
		server, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, time.Minute, nil)

		require.NoError(t, partition.Save(ctx, testSnapshot(t)))
		server.FastForward(2 * time.Minute)

		_, ok, err := partition.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupted snapshot is dropped", func(t *testing.T) {
		server, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, 0, nil)
		require.NoError(t, server.Set(testKey, "{not json"))

		_, ok, err := partition.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, server.Exists(testKey))
	})

	t.Run("redis unavailable", func(t *testing.T) {
		server, client := newRedis(t)
		partition := storage.NewRedisPartition(client, testKey, 0, nil)
		server.Close()

		require.Error(t, partition.Save(ctx, testSnapshot(t)))
		_, _, err := partition.Load(ctx)
		require.Error(t, err)
	})
}

func TestRedisPartitionSealed(t *testing.T) {
	ctx := context.Background()
	server, client := newRedis(t)

	sealer, err := storage.NewSealer("correct horse battery staple")
	require.NoError(t, err)
	partition := storage.NewRedisPartition(client, testKey, 0, sealer)
	snapshot := testSnapshot(t)

	require.NoError(t, partition.Save(ctx, snapshot))

	stored, err := server.Get(testKey)
	require.NoError(t, err)
	assert.NotContains(t, stored, "refresh")

	got, ok, err := partition.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assertSameSnapshot(t, snapshot, got)

	t.Run("wrong key", func(t *testing.T) {
		other, err := storage.NewSealer("another secret")
		require.NoError(t, err)

		_, ok, err := storage.NewRedisPartition(client, testKey, 0, other).Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSealer(t *testing.T) {
	_, err := storage.NewSealer("")
	require.ErrorIs(t, err, storage.ErrEmptySealSecret)

	sealer, err := storage.NewSealer("secret")
	require.NoError(t, err)

	box, err := sealer.Seal([]byte("payload"))
	require.NoError(t, err)

	plain, err := sealer.Open(box)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))

	_, err = sealer.Open([]byte("short"))
	require.ErrorIs(t, err, storage.ErrSealBroken)

	box[len(box)-1] ^= 0xff
	_, err = sealer.Open(box)
	require.ErrorIs(t, err, storage.ErrSealBroken)
}

func TestMemoryPartition(t *testing.T) {
	ctx := context.Background()
	partition := storage.NewMemoryPartition()

	_, ok, err := partition.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snapshot := testSnapshot(t)
	snapshot.Mode = entities.Ephemeral
	require.NoError(t, partition.Save(ctx, snapshot))

	got, ok, err := partition.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assertSameSnapshot(t, snapshot, got)

	require.NoError(t, partition.Clear(ctx))
	_, ok, err = partition.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
