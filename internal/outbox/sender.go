package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/transport"
	"go.uber.org/zap"
)

const (
	pollInterval  = 500 * time.Millisecond
	retryDelay    = 5 * time.Second
	batchSize     = 50
	uploadTimeout = 2 * time.Minute
)

// Publisher is the interface for putting envelopes on the network.
type Publisher interface {
	Publish(ctx context.Context, env *transport.Envelope) error
}

// Uploader stores attachment files under a blob key.
type Uploader interface {
	Upload(ctx context.Context, key, src string) error
}

// Sender drains sync-pending messages: attachments are uploaded first, then
// the message is published and marked synced.
type Sender struct {
	db     *store.DB
	blobs  Uploader
	pub    Publisher
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	poke   chan struct{}

	retryAt time.Time
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, blobs Uploader, pub Publisher, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		blobs:  blobs,
		pub:    pub,
		bus:    b,
		logger: logger,
		poke:   make(chan struct{}, 1),
	}
}

// Start begins polling for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Poke asks for an immediate pass instead of waiting for the next tick.
func (s *Sender) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.poke:
		case <-ctx.Done():
			return
		}
		if time.Now().Before(s.retryAt) {
			continue
		}
		s.processPending(ctx)
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingSync(batchSize)
	if err != nil {
		s.logger.Error("failed to read pending messages", zap.Error(err))
		return
	}

	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		if !s.process(ctx, &pending[i]) {
			s.retryAt = time.Now().Add(retryDelay)
			return
		}
	}
}

// process syncs one message. It returns false when the network refused the
// message and the rest of the batch should wait.
func (s *Sender) process(ctx context.Context, m *store.Message) bool {
	log := s.logger.With(zap.String("msg_id", m.ObjectID), zap.String("chat_id", m.ChatID))

	key := m.MediaKey
	if m.HasMedia() && key == "" && !m.IsDeleted {
		var ok bool
		if key, ok = s.upload(ctx, m, log); !ok {
			return true
		}
	}

	wire := transport.FromMessage(m)
	wire.MediaKey = key
	if err := s.pub.Publish(ctx, &transport.Envelope{Kind: transport.KindMessage, Message: wire}); err != nil {
		log.Warn("failed to publish message", zap.Error(err))
		metrics.OutboxFailed.WithLabelValues("publish").Inc()
		s.failed(m, err)
		return false
	}

	if err := s.db.MarkMessageSynced(m.ObjectID, key); err != nil {
		log.Error("failed to mark synced", zap.Error(err))
		return true
	}
	metrics.OutboxSent.Inc()
	log.Info("message synced")
	s.bus.Publish(bus.Event{
		Kind:      bus.KindOutboxSent,
		Timestamp: time.Now(),
		Payload:   map[string]string{"chat_id": m.ChatID, "msg_id": m.ObjectID},
	})
	return true
}

func (s *Sender) upload(ctx context.Context, m *store.Message, log *zap.Logger) (string, bool) {
	if m.LocalPath == "" {
		log.Warn("attachment has no local file", zap.Error(media.ErrNoSource))
		s.uploadFailed(m, media.ErrNoSource, log)
		return "", false
	}
	key := media.Key(m.ChatID, m.ObjectID, media.Ext(*m))
	upCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if err := s.blobs.Upload(upCtx, key, m.LocalPath); err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		log.Warn("failed to upload attachment", zap.Error(err))
		s.uploadFailed(m, err, log)
		return "", false
	}
	return key, true
}

func (s *Sender) uploadFailed(m *store.Message, cause error, log *zap.Logger) {
	metrics.OutboxFailed.WithLabelValues("upload").Inc()
	if err := s.db.MarkMediaFailed(m.ObjectID); err != nil {
		log.Error("failed to mark media failed", zap.Error(err))
	}
	s.failed(m, cause)
}

func (s *Sender) failed(m *store.Message, cause error) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindOutboxFailed,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_id": m.ChatID,
			"msg_id":  m.ObjectID,
			"error":   cause.Error(),
		},
	})
}
