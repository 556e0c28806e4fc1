// Package client is a Go subscriber for the chat relay. It keeps a WebSocket
// open to the server, restores subscriptions after every reconnect and
// dispatches events to handlers bound per topic.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Singhary/chaty/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives the payload of one event.
type Handler func(data json.RawMessage)

type Options struct {
	// Token is sent as a bearer token on the upgrade request.
	Token  string
	Header http.Header
	// OnReconnect runs after every reconnect once subscriptions are restored.
	// Events published while disconnected are lost, so this is where views
	// re-read the store.
	OnReconnect func(ctx context.Context)
	Logger      *zap.Logger
	// MaxElapsed bounds a single reconnect attempt series, zero retries forever.
	MaxElapsed time.Duration
	Dialer     *websocket.Dialer
}

type Conn struct {
	url  string
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	topics   map[string]struct{}
	handlers map[string]map[string][]Handler

	writeMu sync.Mutex
}

func New(serverURL string, opts Options) *Conn {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		url:      serverURL,
		opts:     opts,
		log:      log,
		topics:   make(map[string]struct{}),
		handlers: make(map[string]map[string][]Handler),
	}
}

// Subscribe starts receiving events of topic. The subscription survives
// reconnects until Unsubscribe.
func (c *Conn) Subscribe(topic string) error {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return c.send(ws, models.ClientFrame{Action: models.ActionSubscribe, Topic: topic})
}

func (c *Conn) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.topics, topic)
	delete(c.handlers, topic)
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return c.send(ws, models.ClientFrame{Action: models.ActionUnsubscribe, Topic: topic})
}

// Bind registers h for event on topic.
func (c *Conn) Bind(topic, event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events, ok := c.handlers[topic]
	if !ok {
		events = make(map[string][]Handler)
		c.handlers[topic] = events
	}
	events[event] = append(events[event], h)
}

// Unbind drops every handler of event on topic.
func (c *Conn) Unbind(topic, event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if events, ok := c.handlers[topic]; ok {
		delete(events, event)
	}
}

func (c *Conn) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

func (c *Conn) send(ws *websocket.Conn, frame models.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(frame)
}

func (c *Conn) dispatch(env models.Envelope) {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[env.Topic][env.Event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(env.Data)
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	header := http.Header{}
	for k, v := range c.opts.Header {
		header[k] = v
	}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	ws, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(errors.New("unauthorized"))
		}
		return nil, err
	}
	return ws, nil
}

func (c *Conn) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		return c.dial(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.opts.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
}

// Run keeps the connection open until ctx is done or the server rejects the
// credentials.
func (c *Conn) Run(ctx context.Context) error {
	first := true
	for {
		ws, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()

		for _, topic := range c.Topics() {
			if err := c.send(ws, models.ClientFrame{Action: models.ActionSubscribe, Topic: topic}); err != nil {
				c.log.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}
		if !first && c.opts.OnReconnect != nil {
			c.opts.OnReconnect(ctx)
		}
		first = false

		err = c.readLoop(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Info("connection lost, reconnecting", zap.Error(err))
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.Close()
	})
	defer stop()
	for {
		var env models.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}
