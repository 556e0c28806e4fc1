package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Singhary/chaty/models"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	defaultSendQueue = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxFrameSize     = 4096
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Number of open WebSocket connections",
	})

	wsDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_dropped_events_total",
		Help: "Events dropped because a subscriber queue was full",
	})
)

type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
}

// Hub routes relay envelopes to WebSocket connections by topic. It holds no
// domain state; subscriptions are authorized when they are made.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	topics  map[string]map[*wsClient]struct{}

	auth      TopicAuthorizer
	log       *zap.Logger
	queueSize int
}

func NewHub(auth TopicAuthorizer, log *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*wsClient]struct{}),
		topics:    make(map[string]map[*wsClient]struct{}),
		auth:      auth,
		log:       log,
		queueSize: defaultSendQueue,
	}
}

// Deliver implements Sink. A subscriber whose queue is full misses the event.
func (h *Hub) Deliver(env models.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to encode envelope", zap.String("topic", env.Topic), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[env.Topic] {
		h.enqueue(c, frame)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *wsClient, frame []byte) {
	select {
	case c.send <- frame:
	default:
		wsDroppedEvents.Inc()
		h.log.Warn("subscriber queue full, event dropped", zap.String("user", c.userID))
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	wsConnections.Inc()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	for topic := range c.topics {
		h.detach(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	wsConnections.Dec()
}

// detach must be called with h.mu held for writing.
func (h *Hub) detach(c *wsClient, topic string) {
	subs := h.topics[topic]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
	delete(c.topics, topic)
}

func (h *Hub) subscribe(ctx context.Context, c *wsClient, topic string) {
	if err := h.auth.Authorize(ctx, c.userID, topic); err != nil {
		h.log.Debug("subscription rejected", zap.String("user", c.userID), zap.String("topic", topic), zap.Error(err))
		h.reply(c, topic, models.EventSubscriptionError, models.SubscriptionError{Error: MessageOf(err)})
		return
	}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*wsClient]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[topic] = struct{}{}
	h.mu.Unlock()
	h.reply(c, topic, models.EventSubscriptionSucceeded, struct{}{})
}

func (h *Hub) unsubscribe(c *wsClient, topic string) {
	h.mu.Lock()
	h.detach(c, topic)
	h.mu.Unlock()
}

func (h *Hub) reply(c *wsClient, topic, event string, payload any) {
	env, err := NewEnvelope(topic, event, payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	h.enqueue(c, frame)
	h.mu.RUnlock()
}

// Serve runs the connection of userID until the peer goes away or ctx is
// done. It owns conn and closes it on return.
func (h *Hub) Serve(ctx context.Context, userID string, conn *websocket.Conn) error {
	c := &wsClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.queueSize),
		topics: make(map[string]struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, c)
	}()
	defer func() {
		cancel()
		<-done
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.String("user", userID), zap.Error(err))
				return err
			}
			return nil
		}
		switch frame.Action {
		case models.ActionSubscribe:
			h.subscribe(ctx, c, frame.Topic)
		case models.ActionUnsubscribe:
			h.unsubscribe(c, frame.Topic)
		default:
			h.reply(c, frame.Topic, models.EventSubscriptionError, models.SubscriptionError{Error: "unknown action"})
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("websocket write error", zap.String("user", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
