package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceTTL       = 90 * time.Second
	heartbeatInterval = 30 * time.Second
)

var ErrNotConfigured = errors.New("relay: no redis url configured")

// ActionSource reads the local user's action for a chat.
type ActionSource interface {
	GetAction(chatID, userID string) (*store.Action, error)
}

// PresenceSink records activity timestamps of other users.
type PresenceSink interface {
	UpdatePresence(id string, lastActive, lastTerminate int64) error
	// ExpirePresence marks id terminated at its last known activity.
	ExpirePresence(id string) error
}

// Relay carries typing and read-position changes between devices over
// Redis pub/sub, and keeps the local user's presence key alive.
//
// Channels:
//   - <prefix>:actions:<chatID>  JSON actionMessage
//
// Keys:
//   - <prefix>:presence:<userID> JSON presence, expires after presenceTTL
type Relay struct {
	client  *redis.Client
	prefix  string
	origin  string
	userID  string
	actions ActionSource
	bus     *bus.Bus
	logger  *zap.Logger

	mu       sync.Mutex
	sent     map[string]int64 // chat id -> last relayed rev
	lastBeat int64
}

type actionMessage struct {
	Origin   string `json:"origin"`
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	Typing   bool   `json:"typing"`
	LastRead int64  `json:"last_read"`
}

type presence struct {
	LastActive    int64 `json:"last_active"`
	LastTerminate int64 `json:"last_terminate"`
}

// Connect opens the Redis client described by cfg and checks it answers.
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// New creates a relay for userID. client may be nil in tests that only
// exercise encoding.
func New(client *redis.Client, prefix, origin, userID string, actions ActionSource, b *bus.Bus, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		client:  client,
		prefix:  prefix,
		origin:  origin,
		userID:  userID,
		actions: actions,
		bus:     b,
		logger:  logger,
		sent:    make(map[string]int64),
	}
}

func (r *Relay) actionsChannel(chatID string) string {
	return fmt.Sprintf("%s:actions:%s", r.prefix, chatID)
}

func (r *Relay) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", r.prefix, userID)
}

// Run relays until ctx is cancelled, then marks the local user terminated.
func (r *Relay) Run(ctx context.Context) {
	changes, unsub := r.bus.Subscribe(bus.KindActionsChanged, 64)
	defer unsub()

	pubsub := r.client.PSubscribe(ctx, r.actionsChannel("*"))
	defer func() { _ = pubsub.Close() }()
	inbound := pubsub.Channel()

	r.heartbeat(ctx, false)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-changes:
			chatID, _ := evt.Payload.(string)
			r.publishLocal(ctx, chatID)
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			r.receive(msg.Channel, msg.Payload)
		case <-ticker.C:
			r.heartbeat(ctx, false)
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			r.heartbeat(stopCtx, true)
			cancel()
			return
		}
	}
}

func (r *Relay) publishLocal(ctx context.Context, chatID string) {
	payload, ok := r.outgoing(chatID)
	if !ok {
		return
	}
	if err := r.client.Publish(ctx, r.actionsChannel(chatID), payload).Err(); err != nil {
		r.logger.Warn("relay publish failed", zap.String("chat_id", chatID), zap.Error(err))
		r.forget(chatID)
		return
	}
	metrics.ActionsRelayed.WithLabelValues("out").Inc()
}

// outgoing returns the payload for the local user's action in chatID, if
// it changed since it was last relayed.
func (r *Relay) outgoing(chatID string) ([]byte, bool) {
	if chatID == "" {
		return nil, false
	}
	a, err := r.actions.GetAction(chatID, r.userID)
	if err != nil {
		r.logger.Warn("read local action", zap.String("chat_id", chatID), zap.Error(err))
		return nil, false
	}
	if a == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent[chatID] == a.Rev {
		return nil, false
	}
	r.sent[chatID] = a.Rev

	payload, _ := json.Marshal(actionMessage{
		Origin:   r.origin,
		ChatID:   a.ChatID,
		UserID:   a.UserID,
		Typing:   a.Typing,
		LastRead: a.LastRead,
	})
	return payload, true
}

func (r *Relay) forget(chatID string) {
	r.mu.Lock()
	delete(r.sent, chatID)
	r.mu.Unlock()
}

// receive turns a foreign action into a net.action event. Actions of the
// local user are ignored: this device owns them.
func (r *Relay) receive(channel, payload string) {
	var msg actionMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Debug("dropping relay payload", zap.Error(err))
		return
	}
	if chatID, ok := r.chatFromChannel(channel); !ok || chatID != msg.ChatID {
		return
	}
	if msg.Origin == r.origin || msg.UserID == r.userID || msg.UserID == "" {
		return
	}
	metrics.ActionsRelayed.WithLabelValues("in").Inc()
	r.bus.Publish(bus.Event{
		Kind:      bus.KindNetAction,
		Timestamp: time.Now(),
		Payload: &store.Action{
			ChatID:   msg.ChatID,
			UserID:   msg.UserID,
			Typing:   msg.Typing,
			LastRead: msg.LastRead,
		},
	})
}

func (r *Relay) heartbeat(ctx context.Context, terminate bool) {
	p := r.presenceAt(time.Now().UnixMilli(), terminate)
	ttl := presenceTTL
	if terminate {
		ttl = 0
	}
	payload, _ := json.Marshal(p)
	if err := r.client.Set(ctx, r.presenceKey(r.userID), payload, ttl).Err(); err != nil {
		r.logger.Debug("presence heartbeat failed", zap.Error(err))
	}
}

// presenceAt builds the presence record written at now. A terminate record
// keeps the last heartbeat as LastActive, so it always reads as offline.
func (r *Relay) presenceAt(now int64, terminate bool) presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !terminate {
		r.lastBeat = now
		return presence{LastActive: now}
	}
	active := r.lastBeat
	if active == 0 || active >= now {
		active = now - 1
	}
	return presence{LastActive: active, LastTerminate: now}
}

// RefreshPresence copies userID's presence key into sink. A missing key
// means the user's client stopped without saying so: the heartbeat expired.
func (r *Relay) RefreshPresence(ctx context.Context, userID string, sink PresenceSink) error {
	raw, err := r.client.Get(ctx, r.presenceKey(userID)).Bytes()
	return applyPresence(userID, raw, err, sink)
}

func applyPresence(userID string, raw []byte, err error, sink PresenceSink) error {
	if errors.Is(err, redis.Nil) {
		return sink.ExpirePresence(userID)
	}
	if err != nil {
		return fmt.Errorf("get presence: %w", err)
	}
	var p presence
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode presence: %w", err)
	}
	return sink.UpdatePresence(userID, p.LastActive, p.LastTerminate)
}

// chatFromChannel extracts the chat id from an actions channel name.
func (r *Relay) chatFromChannel(channel string) (string, bool) {
	return strings.CutPrefix(channel, r.prefix+":actions:")
}

// WatchPresence refreshes userID's presence now and on every heartbeat
// until ctx is cancelled.
func (r *Relay) WatchPresence(ctx context.Context, userID string, sink PresenceSink) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		if err := r.RefreshPresence(ctx, userID, sink); err != nil && ctx.Err() == nil {
			r.logger.Debug("presence refresh failed", zap.String("user_id", userID), zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
