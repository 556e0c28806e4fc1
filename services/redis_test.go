package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Singhary/chaty/config"
	"github.com/Singhary/chaty/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// redisForTest connects to CHATY_TEST_REDIS_HOST or skips.
func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	host := os.Getenv("CHATY_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("CHATY_TEST_REDIS_HOST is not set")
	}
	client, err := NewRedisClient(config.RedisConfig{Host: host, Port: 6379, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreAgainstServer(t *testing.T) {
	client := redisForTest(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})

	_, err := store.Get(ctx, prefix+"missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, store.Atomic(ctx, NewOps().
		Set(prefix+"rec", "v").
		SAdd(prefix+"set", "a", "b").
		SRem(prefix+"set", "b").
		ZAdd(prefix+"log", 2, "m2").
		ZAdd(prefix+"log", 1, "m1")))

	v, err := store.Get(ctx, prefix+"rec")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	members, err := store.SMembers(ctx, prefix+"set")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)
	log, err := store.ZRange(ctx, prefix+"log", -1, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, log)
}

func TestRedisRelayAgainstServer(t *testing.T) {
	client := redisForTest(t)
	relay := NewRedisRelay(client, "test:"+uuid.NewString()+":", zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &sinkRecorder{}
	require.NoError(t, relay.Start(ctx, sink))
	require.NoError(t, relay.Publish(ctx, "group__g1", models.EventIncomingMessage, models.GroupMessage{ID: "m1"}))

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.got) == 1 && sink.got[0].Topic == "group__g1"
	}, 5*time.Second, 20*time.Millisecond)
}
