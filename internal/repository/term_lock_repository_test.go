package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermLockRepositoryLocalFallback(t *testing.T) {
	repo := NewTermLockRepository(nil)
	ctx := context.Background()

	release, ok, err := repo.Acquire(ctx, "term-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repo.Acquire(ctx, "term-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = repo.Acquire(ctx, "term-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per term")

	release()
	_, ok, err = repo.Acquire(ctx, "term-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTermLockRepositoryLocalExpiry(t *testing.T) {
	repo := NewTermLockRepository(nil)
	ctx := context.Background()

	_, ok, err := repo.Acquire(ctx, "term-1", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	_, ok, err = repo.Acquire(ctx, "term-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
