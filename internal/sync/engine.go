package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of network records into the store.
// The kafka consumer hands it records directly; relay events arrive through
// "net.*" on the bus. The store then notifies live queries of the affected
// chats.
type Engine struct {
	db          *store.DB
	bus         *bus.Bus
	checkpoints *Checkpoints
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}

	mu gosync.RWMutex
	me func() string
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:          db,
		bus:         b,
		checkpoints: NewCheckpoints(db),
		logger:      logger,
	}
}

// Identify scopes ingestion to the chats of the signed-in user. me returns
// "" while nobody is signed in, and then every message and action is
// ignored. Without Identify the engine accepts every record.
func (e *Engine) Identify(me func() string) {
	e.mu.Lock()
	e.me = me
	e.mu.Unlock()
}

// Start subscribes to inbound network events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("net.", 256)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event in flight.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case *store.Message:
		if evt.Kind == bus.KindNetMessage {
			err = e.ReceiveMessage(p)
		}
	case *store.Action:
		if evt.Kind == bus.KindNetAction {
			err = e.ReceiveAction(p)
		}
	case *store.Person:
		if evt.Kind == bus.KindNetPerson {
			err = e.ReceivePerson(p)
		}
	}
	if err != nil {
		e.logger.Error("failed to ingest event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// involves reports whether this device keeps records of chatID written by
// userID.
func (e *Engine) involves(chatID, userID string) bool {
	e.mu.RLock()
	me := e.me
	e.mu.RUnlock()
	if me == nil {
		return true
	}
	id := me()
	if id == "" {
		return false
	}
	return userID == id || chatID == store.PrivateChatID(id, userID)
}

// ReceiveMessage stores a message from the network when it belongs to a
// chat of the signed-in user. Foreign chats are skipped without error.
func (e *Engine) ReceiveMessage(msg *store.Message) error {
	if !e.involves(msg.ChatID, msg.UserID) {
		metrics.EnvelopesDropped.WithLabelValues("foreign_chat").Inc()
		return nil
	}
	return e.IngestMessage(msg)
}

// ReceiveAction stores a typing or read marker for a chat of the signed-in user.
func (e *Engine) ReceiveAction(a *store.Action) error {
	if !e.involves(a.ChatID, a.UserID) {
		metrics.EnvelopesDropped.WithLabelValues("foreign_chat").Inc()
		return nil
	}
	if err := e.db.UpsertAction(a); err != nil {
		return fmt.Errorf("upsert action %s/%s: %w", a.ChatID, a.UserID, err)
	}
	return nil
}

// ReceivePerson stores a profile. Profiles are public and always kept.
func (e *Engine) ReceivePerson(p *store.Person) error {
	if err := e.db.UpsertPerson(p); err != nil {
		return fmt.Errorf("upsert person %s: %w", p.ObjectID, err)
	}
	return nil
}

// IngestMessage processes a single message into the store (idempotent).
func (e *Engine) IngestMessage(msg *store.Message) error {
	if err := e.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	e.advance(msg.CreatedAt)
	return nil
}

// IngestBatch processes a batch of messages in a transaction.
func (e *Engine) IngestBatch(msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := e.db.UpsertMessages(msgs); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	var newest int64
	for _, m := range msgs {
		newest = max(newest, m.CreatedAt)
	}
	e.advance(newest)
	e.logger.Info("batch ingested", zap.Int("messages", len(msgs)))
	e.bus.Publish(bus.Event{
		Kind:      "sync.batch",
		Timestamp: time.Now(),
		Payload:   map[string]int{"messages_count": len(msgs)},
	})
	return nil
}

// LastMessageAt returns the newest ingested created_at, or 0.
func (e *Engine) LastMessageAt() int64 {
	at, err := e.checkpoints.Load(LastMessageAt)
	if err != nil {
		e.logger.Warn("failed to read checkpoint", zap.Error(err))
		return 0
	}
	return at
}

func (e *Engine) advance(createdAt int64) {
	if _, err := e.checkpoints.Raise(LastMessageAt, createdAt); err != nil {
		e.logger.Warn("failed to update checkpoint", zap.Error(err))
	}
}
