package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Singhary/chaty/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisRelay uses Redis PUBLISH with one channel per topic and a pattern
// subscription on the consuming side.
type RedisRelay struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisRelay(client *redis.Client, prefix string, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, topic, event string, payload any) error {
	env, err := NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return r.client.Publish(ctx, r.prefix+topic, body).Err()
}

func (r *RedisRelay) Start(ctx context.Context, sink Sink) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env models.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn("failed to unmarshal relay envelope", zap.Error(err))
					continue
				}
				if env.Topic == "" {
					env.Topic = strings.TrimPrefix(msg.Channel, r.prefix)
				}
				sink.Deliver(env)
			}
		}
	}()
	return nil
}

// Close is a no-op, the client belongs to the caller.
func (r *RedisRelay) Close() error {
	return nil
}
