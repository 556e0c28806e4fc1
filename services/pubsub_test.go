package services

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/Singhary/chaty/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu  sync.Mutex
	got []models.Envelope
}

func (s *sinkRecorder) Deliver(env models.Envelope) {
	s.mu.Lock()
	s.got = append(s.got, env)
	s.mu.Unlock()
}

func TestLocalRelayDeliversInPublishOrder(t *testing.T) {
	relay := NewLocalRelay()
	sink := &sinkRecorder{}
	ctx := context.Background()

	require.NoError(t, relay.Publish(ctx, "t", "before-start", 0))
	require.NoError(t, relay.Start(ctx, sink))
	for i := 1; i <= 3; i++ {
		require.NoError(t, relay.Publish(ctx, "t", models.EventIncomingMessage, i))
	}

	require.Len(t, sink.got, 3)
	for i, env := range sink.got {
		assert.Equal(t, "t", env.Topic)
		assert.JSONEq(t, strconv.Itoa(i+1), string(env.Data))
	}

	require.NoError(t, relay.Close())
	require.NoError(t, relay.Publish(ctx, "t", "after-close", 4))
	assert.Len(t, sink.got, 3)
}

func TestPublishAllWrapsFailure(t *testing.T) {
	pub := &recordingPublisher{fail: assert.AnError}
	err := publishAll(context.Background(), pub, notice{topic: "a", event: "e"}, notice{topic: "b", event: "e"})
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
}
