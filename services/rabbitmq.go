package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Singhary/chaty/models"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitRelay publishes envelopes to a topic exchange with the topic as
// routing key. Every node consumes through its own exclusive queue bound to
// "#" and forwards into its hub. A lost consumer is re-established with
// exponential backoff, redialing the broker when the connection is gone.
type RabbitRelay struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
	closed   bool
}

func NewRabbitRelay(url, exchange string, log *zap.Logger) (*RabbitRelay, error) {
	r := &RabbitRelay{url: url, exchange: exchange, log: log}
	if err := r.dial(); err != nil {
		return nil, err
	}
	log.Info("RabbitMQ relay initialized", zap.String("exchange", exchange))
	return r, nil
}

// dial opens the connection and the publishing channel and declares the
// exchange. Callers hold r.mu or own r exclusively.
func (r *RabbitRelay) dial() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		r.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	r.conn, r.channel = conn, ch
	return nil
}

func (r *RabbitRelay) Publish(ctx context.Context, topic, event string, payload any) error {
	env, err := NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureChannel(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.channel.PublishWithContext(ctx,
		r.exchange,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
}

// ensureChannel reopens the publishing channel, redialing when the
// connection is gone. Callers hold r.mu.
func (r *RabbitRelay) ensureChannel() error {
	if r.closed {
		return amqp.ErrClosed
	}
	if r.channel != nil && !r.channel.IsClosed() {
		return nil
	}
	if r.conn == nil || r.conn.IsClosed() {
		return r.dial()
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	r.channel = ch
	return nil
}

// deliveries is one consumer: its delivery stream and the func releasing it.
type deliveries struct {
	msgs    <-chan amqp.Delivery
	release func()
}

// Start declares this node's queue and pumps deliveries into sink until ctx
// is done or the relay is closed.
func (r *RabbitRelay) Start(ctx context.Context, sink Sink) error {
	d, err := r.consume()
	if err != nil {
		return err
	}
	go r.pump(ctx, sink, d, r.consume)
	return nil
}

// consume opens a channel with an exclusive server-named queue bound to
// every routing key, redialing first when the connection was lost.
func (r *RabbitRelay) consume() (deliveries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return deliveries{}, backoff.Permanent(amqp.ErrClosed)
	}
	if r.conn == nil || r.conn.IsClosed() {
		if err := r.dial(); err != nil {
			return deliveries{}, err
		}
		r.log.Info("RabbitMQ connection re-established")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return deliveries{}, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return deliveries{}, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", r.exchange, false, nil); err != nil {
		ch.Close()
		return deliveries{}, fmt.Errorf("failed to bind queue: %w", err)
	}
	msgs, err := ch.Consume(
		q.Name,
		"",
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return deliveries{}, fmt.Errorf("failed to start consumer: %w", err)
	}
	return deliveries{msgs: msgs, release: func() { _ = ch.Close() }}, nil
}

// pump forwards d into sink and replaces it through subscribe whenever the
// broker closes the stream. Events published while no consumer is bound are
// lost.
func (r *RabbitRelay) pump(ctx context.Context, sink Sink, d deliveries, subscribe func() (deliveries, error)) {
	for {
		r.forward(ctx, sink, d.msgs)
		d.release()
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("RabbitMQ consumer channel closed, reconnecting")

		next, err := backoff.Retry(ctx, subscribe,
			backoff.WithBackOff(r.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, wait time.Duration) {
				r.log.Warn("RabbitMQ resubscribe failed", zap.Error(err), zap.Duration("retry_in", wait))
			}),
		)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Error("RabbitMQ consumer stopped", zap.Error(err))
			}
			return
		}
		d = next
	}
}

func (r *RabbitRelay) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	return b
}

func (r *RabbitRelay) forward(ctx context.Context, sink Sink, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var env models.Envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				r.log.Warn("failed to unmarshal relay envelope", zap.Error(err))
				continue
			}
			sink.Deliver(env)
		}
	}
}

func (r *RabbitRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	return nil
}
