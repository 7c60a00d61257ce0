package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vevsa/books-auth/internal/models"
)

const (
	recoveryChannelPrefix  = "recovery:request:"
	recoveryChannelPattern = recoveryChannelPrefix + "*"
	subscriptionBuffer     = 16
)

// Subscription receives the events addressed to one public key.
type Subscription struct {
	PublicKey string
	events    chan models.RecoveryEvent
	hub       *Hub
	once      sync.Once
}

func (s *Subscription) Events() <-chan models.RecoveryEvent {
	return s.events
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.events)
	})
}

// Hub tracks local WebSocket subscriptions by public key.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), log: log}
}

func (h *Hub) Subscribe(publicKey string) *Subscription {
	s := &Subscription{
		PublicKey: publicKey,
		events:    make(chan models.RecoveryEvent, subscriptionBuffer),
		hub:       h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[publicKey] == nil {
		h.subs[publicKey] = make(map[*Subscription]struct{})
	}
	h.subs[publicKey][s] = struct{}{}
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.PublicKey]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.PublicKey)
	}
}

// Deliver fans ev out to every local subscription of its recipients. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Deliver(ev models.RecoveryEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range ev.Recipients {
		for s := range h.subs[key] {
			select {
			case s.events <- ev:
			default:
				h.log.Warn("dropping recovery event for slow subscriber", "public_key", key, "request_id", ev.RequestID)
			}
		}
	}
}

// Notifier relays recovery events between instances through Redis pub/sub
// and hands them to the local hub.
type Notifier struct {
	client redis.UniversalClient
	hub    *Hub
	log    *slog.Logger

	started sync.Once
	ready   chan struct{}
}

func NewNotifier(client redis.UniversalClient, hub *Hub, log *slog.Logger) *Notifier {
	return &Notifier{client: client, hub: hub, log: log, ready: make(chan struct{})}
}

// Ready is closed once the first subscription is confirmed.
func (n *Notifier) Ready() <-chan struct{} {
	return n.ready
}

// Start launches the shared subscriber once; it stops when ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	n.started.Do(func() {
		go n.run(ctx)
	})
}

func (n *Notifier) run(ctx context.Context) {
	backoff := time.Second
	var readyOnce sync.Once

	for {
		if ctx.Err() != nil {
			return
		}

		err := func() error {
			pubsub := n.client.PSubscribe(ctx, recoveryChannelPattern)
			defer pubsub.Close()

			if _, err := pubsub.Receive(ctx); err != nil {
				return err
			}
			readyOnce.Do(func() { close(n.ready) })
			n.log.Info("recovery event subscriber started", "pattern", recoveryChannelPattern)
			backoff = time.Second

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					return err
				}
				var ev models.RecoveryEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.Warn("failed to decode recovery event", "channel", msg.Channel, "error", err)
					continue
				}
				n.hub.Deliver(ev)
			}
		}()
		if ctx.Err() != nil {
			return
		}

		n.log.Warn("recovery event subscriber error", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (n *Notifier) Publish(ctx context.Context, ev models.RecoveryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, recoveryChannelPrefix+ev.RequestID, data).Err()
}
