package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/truth-engine/internal/models"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb, ttl), mr
}

func TestRedis_MissIsAbsent(t *testing.T) {
	c, _ := newTestRedis(t, time.Hour)

	r, ok, err := c.Get(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestRedis_NormalizedKeysShareSlot(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, time.Hour)

	require.NoError(t, c.Put(ctx, "  AI Automation Agency ", &models.Report{
		Niche:          "AI Automation Agency",
		ViabilityScore: 68,
		PainPoints:     []string{"trust"},
	}))

	for _, q := range []string{"ai automation agency", "AI AUTOMATION AGENCY", "\tai automation agency\n"} {
		r, ok, err := c.Get(ctx, q)
		require.NoError(t, err, q)
		require.True(t, ok, q)
		assert.Equal(t, 68, r.ViabilityScore)
		assert.Equal(t, []string{"trust"}, r.PainPoints)
	}
	assert.Len(t, mr.Keys(), 1)
	assert.True(t, mr.Exists("report:ai automation agency"))
}

func TestRedis_PutSetsTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, 2*time.Hour)

	require.NoError(t, c.Put(ctx, "niche", &models.Report{Niche: "niche"}))
	assert.Equal(t, 2*time.Hour, mr.TTL(Key("niche")))

	mr.FastForward(2*time.Hour + time.Second)
	_, ok, err := c.Get(ctx, "niche")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_DefaultTTLWhenUnset(t *testing.T) {
	c, mr := newTestRedis(t, 0)

	require.NoError(t, c.Put(context.Background(), "niche", &models.Report{}))
	assert.Equal(t, DefaultTTL, mr.TTL(Key("niche")))
}

func TestRedis_DecodeError(t *testing.T) {
	c, mr := newTestRedis(t, time.Hour)
	require.NoError(t, mr.Set(Key("broken"), "{not json"))

	_, ok, err := c.Get(context.Background(), "broken")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "redis decode")
}

func TestRedis_ServerErrorIsReported(t *testing.T) {
	c, mr := newTestRedis(t, time.Hour)
	mr.SetError("ERR server unavailable")

	_, ok, err := c.Get(context.Background(), "niche")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "redis get")
}
