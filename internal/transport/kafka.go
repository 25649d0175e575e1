package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("transport: no kafka brokers configured")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes envelopes to the chat topic, keyed by chat id.
type Producer struct {
	writer messageWriter
	origin string
	logger *zap.Logger
}

// NewProducer connects a producer. origin identifies this device so that
// its own records can be skipped when they come back.
func NewProducer(cfg config.KafkaConfig, origin string, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(w, origin, logger), nil
}

func newProducer(w messageWriter, origin string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, origin: origin, logger: logger}
}

// Publish stamps and writes one envelope.
func (p *Producer) Publish(ctx context.Context, env *Envelope) error {
	env.Origin = p.origin
	env.SentAt = time.Now().UnixMilli()
	value, err := Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Key()),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("write %s: %w", env.Kind, err)
	}
	metrics.EnvelopesPublished.WithLabelValues(env.Kind).Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ingestor stores records read from the chat topic. A nil error means the
// record is durable and its offset may be committed.
type Ingestor interface {
	ReceiveMessage(*store.Message) error
	ReceiveAction(*store.Action) error
	ReceivePerson(*store.Person) error
}

// Consumer reads the chat topic and hands every foreign envelope to an
// Ingestor. Offsets are committed only after the record is stored, so a
// crash or a failing store replays instead of losing records.
type Consumer struct {
	reader     messageReader
	origin     string
	ingest     Ingestor
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewConsumer joins the consumer group for the chat topic. The group must be
// private to this device; members of one group split the partitions.
func NewConsumer(cfg config.KafkaConfig, origin string, ingest Ingestor, logger *zap.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.Group,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, origin, ingest, logger), nil
}

func newConsumer(r messageReader, origin string, ingest Ingestor, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: r, origin: origin, ingest: ingest, logger: logger, retryDelay: time.Second}
}

// Run reads until ctx is cancelled. Read and ingest errors are retried after
// a pause; a record is never skipped because the store was unavailable.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch", zap.Error(err))
			if !c.pause(ctx) {
				return
			}
			continue
		}
		if !c.deliver(ctx, m) {
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			// The record is stored; a redelivery is absorbed by the idempotent upserts.
			c.logger.Warn("kafka commit", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// deliver retries m until it is ingested. It returns false if ctx ends first.
func (c *Consumer) deliver(ctx context.Context, m kafka.Message) bool {
	for {
		err := c.handle(m)
		if err == nil {
			return true
		}
		c.logger.Error("ingest failed, retrying",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		if !c.pause(ctx) {
			return false
		}
	}
}

func (c *Consumer) pause(ctx context.Context) bool {
	select {
	case <-time.After(c.retryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

// handle stores one record. Undecodable and self-sent records are skipped
// and count as handled.
func (c *Consumer) handle(m kafka.Message) error {
	env, err := Decode(m.Value)
	if err != nil {
		metrics.EnvelopesDropped.WithLabelValues("decode").Inc()
		c.logger.Warn("dropping record", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.Origin == c.origin {
		return nil
	}

	switch env.Kind {
	case KindMessage:
		err = c.ingest.ReceiveMessage(env.Message.Store())
	case KindAction:
		err = c.ingest.ReceiveAction(env.Action.Store())
	case KindPerson:
		err = c.ingest.ReceivePerson(env.Person.Store())
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", env.Kind, err)
	}
	metrics.EnvelopesReceived.WithLabelValues(env.Kind).Inc()
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
