package main

import (
	"context"
	"testing"

	"chatline/backend/internal/config"
	"chatline/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeTrackingStore struct {
	*storage.MemoryStore
	closed bool
}

func (s *closeTrackingStore) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func useStore(t *testing.T) *closeTrackingStore {
	t.Helper()
	s := &closeTrackingStore{MemoryStore: storage.NewMemoryStore()}
	orig := openStore
	openStore = func(context.Context, config.StoreConfig) (storage.Storage, error) { return s, nil }
	t.Cleanup(func() { openStore = orig })
	return s
}

func TestOpenBackendsClosesStoreWhenRedisIsUnreachable(t *testing.T) {
	store := useStore(t)
	cfg := &config.Config{Redis: config.RedisConfig{Address: "127.0.0.1:1"}}

	b, err := openBackends(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Contains(t, err.Error(), "connect redis")
	assert.True(t, store.closed)
}

func TestOpenBackendsWithoutRedisOrBucket(t *testing.T) {
	store := useStore(t)

	b, err := openBackends(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, b.rdb)
	assert.Nil(t, b.mirror)
	assert.NotNil(t, b.uploader)
	assert.False(t, store.closed)

	b.close(context.Background())
	assert.True(t, store.closed)
}
