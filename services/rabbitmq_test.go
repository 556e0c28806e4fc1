package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Singhary/chaty/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRabbitRelayAgainstBroker(t *testing.T) {
	url := os.Getenv("CHATY_TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("CHATY_TEST_RABBITMQ_URL is not set")
	}
	relay, err := NewRabbitRelay(url, "chat_events_test_"+uuid.NewString(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = relay.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &sinkRecorder{}
	require.NoError(t, relay.Start(ctx, sink))

	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, relay.Publish(ctx, "chat__a--b", models.EventIncomingMessage, models.Message{ID: id}))
	}

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.got) == 2
	}, 5*time.Second, 20*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.JSONEq(t, `{"id":"m1","senderId":"","text":"","timestamp":0}`, string(sink.got[0].Data))
}

func delivery(t *testing.T, topic, id string) amqp.Delivery {
	t.Helper()
	env, err := NewEnvelope(topic, models.EventIncomingMessage, models.Message{ID: id})
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func TestRabbitConsumerResubscribesAfterChannelClose(t *testing.T) {
	relay := &RabbitRelay{log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan amqp.Delivery, 2)
	first <- delivery(t, "group__g1", "m1")
	first <- amqp.Delivery{Body: []byte("not json")}
	close(first)
	second := make(chan amqp.Delivery, 1)
	second <- delivery(t, "group__g1", "m2")

	var released, attempts atomic.Int32
	subscribe := func() (deliveries, error) {
		if attempts.Add(1) == 1 {
			return deliveries{}, errors.New("connection refused")
		}
		return deliveries{msgs: second, release: func() { released.Add(1) }}, nil
	}

	sink := &sinkRecorder{}
	done := make(chan struct{})
	go func() {
		relay.pump(ctx, sink, deliveries{msgs: first, release: func() { released.Add(1) }}, subscribe)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.got) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	assert.Equal(t, int32(2), released.Load())
}

func TestRabbitConsumerStopsOnPermanentError(t *testing.T) {
	relay := &RabbitRelay{log: zap.NewNop()}
	closed := make(chan amqp.Delivery)
	close(closed)

	done := make(chan struct{})
	go func() {
		relay.pump(context.Background(), &sinkRecorder{}, deliveries{msgs: closed, release: func() {}}, func() (deliveries, error) {
			return deliveries{}, backoff.Permanent(amqp.ErrClosed)
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer kept retrying after a permanent error")
	}
}

func TestClosedRabbitRelayRefusesWork(t *testing.T) {
	relay := &RabbitRelay{log: zap.NewNop()}
	require.NoError(t, relay.Close())

	_, err := relay.consume()
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.ErrorIs(t, relay.Publish(context.Background(), "group__g1", models.EventIncomingMessage, nil), amqp.ErrClosed)
}
