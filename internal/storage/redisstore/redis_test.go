package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makt28/tgwatch/internal/storage"
)

// Set TGWATCH_TEST_REDIS_URL (e.g. redis://localhost:6379/15) to run.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TGWATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TGWATCH_TEST_REDIS_URL not set")
	}
	s, err := New(context.Background(), Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_BadURL(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "::not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestStore_Integration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "tgwatch_test_" + t.Name()
	t.Cleanup(func() { s.rdb.Del(context.Background(), key) })

	_, err := s.Get(ctx, key)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.PutIf(ctx, key, nil, []byte(`{"consecutiveFails":1}`)))
	assert.True(t, errors.Is(s.PutIf(ctx, key, nil, []byte(`{}`)), storage.ErrConflict))

	cur, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NoError(t, s.PutIf(ctx, key, cur, []byte(`{"consecutiveFails":2}`)))
	assert.True(t, errors.Is(s.PutIf(ctx, key, cur, []byte(`{}`)), storage.ErrConflict))

	repo := storage.NewStateRepository(s, key)
	snap, err := repo.Load(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.Equal(t, 2, snap.State.ConsecutiveFails)
}
