package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Hash) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return mr, NewHash(c)
}

func TestHash_SetGet(t *testing.T) {
	mr, h := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, h.SetIfVersion(ctx, "risk:summary:p1", "", "30", []byte(`{"ok":true}`), time.Minute))

	got, err := h.Get(ctx, "risk:summary:p1", "30")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("risk:summary:p1"))
}

func TestHash_Miss(t *testing.T) {
	_, h := setupTestRedis(t)
	ctx := context.Background()

	_, err := h.Get(ctx, "risk:summary:none", "30")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, h.SetIfVersion(ctx, "risk:summary:p1", "", "7", []byte("x"), time.Minute))
	_, err = h.Get(ctx, "risk:summary:p1", "30")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestHash_Expires(t *testing.T) {
	mr, h := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, h.SetIfVersion(ctx, "k", "", "f", []byte("v"), 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, err := h.Get(ctx, "k", "f")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestHash_BumpDropsAllFields(t *testing.T) {
	_, h := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, h.SetIfVersion(ctx, "k", "", "7", []byte("a"), time.Minute))
	require.NoError(t, h.SetIfVersion(ctx, "k", "", "30", []byte("b"), time.Minute))
	require.NoError(t, h.Bump(ctx, "k", time.Minute))

	for _, f := range []string{"7", "30"} {
		_, err := h.Get(ctx, "k", f)
		assert.ErrorIs(t, err, ErrMiss)
	}
	v, err := h.Version(ctx, "k")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestHash_SetIfVersionRejectsAfterBump(t *testing.T) {
	_, h := setupTestRedis(t)
	ctx := context.Background()

	before, err := h.Version(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, before)

	require.NoError(t, h.Bump(ctx, "k", time.Minute))
	assert.ErrorIs(t, h.SetIfVersion(ctx, "k", before, "7", []byte("old"), time.Minute), ErrStale)
	_, err = h.Get(ctx, "k", "7")
	assert.ErrorIs(t, err, ErrMiss)

	current, err := h.Version(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, h.SetIfVersion(ctx, "k", current, "7", []byte("new"), time.Minute))

	require.NoError(t, h.Bump(ctx, "k", time.Minute))
	next, err := h.Version(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, current, next, "tokens never repeat")
	assert.ErrorIs(t, h.SetIfVersion(ctx, "k", current, "7", []byte("again"), time.Minute), ErrStale)
}

func TestHash_ServerDown(t *testing.T) {
	mr, h := setupTestRedis(t)
	mr.Close()

	_, err := h.Get(context.Background(), "k", "f")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, NewHash(c).Ping(context.Background()))

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
