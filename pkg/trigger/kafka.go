package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mercator-hq/ascent/pkg/config"
)

// Publisher delivers check messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func validateKafka(cfg config.KafkaConfig, needGroup bool) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return errors.New("kafka: topic is required")
	}
	if needGroup && strings.TrimSpace(cfg.GroupID) == "" {
		return errors.New("kafka: group id is required")
	}
	return nil
}

// KafkaPublisher writes check messages to a topic, keyed by distributor so
// that checks for one distributor stay ordered on one partition.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	recorder     Recorder
	logger       *slog.Logger
}

// NewKafkaPublisher creates a publisher for cfg.
func NewKafkaPublisher(cfg config.KafkaConfig, recorder Recorder, logger *slog.Logger) (*KafkaPublisher, error) {
	if err := validateKafka(cfg, false); err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(writer, cfg.WriteTimeout, recorder, logger), nil
}

func newKafkaPublisher(w messageWriter, writeTimeout time.Duration, recorder Recorder, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer:       w,
		writeTimeout: writeTimeout,
		recorder:     recorderOrNop(recorder),
		logger:       logger.With("component", "trigger.kafka_publisher"),
	}
}

// Publish writes msg and waits for the brokers to acknowledge it.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		p.recorder.RecordPublish(msg.Source, err)
		return err
	}
	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.DistributorID, 10)),
		Value: payload,
		Time:  msg.CreatedAt,
	})
	p.recorder.RecordPublish(msg.Source, err)
	if err != nil {
		return fmt.Errorf("publish check for distributor %d: %w", msg.DistributorID, err)
	}
	p.logger.DebugContext(ctx, "published upgrade check",
		"distributor_id", msg.DistributorID,
		"trigger_id", msg.ID,
		"source", msg.Source,
	)
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads check messages from a consumer group and passes them
// to a Handler. Offsets are committed only after the handler accepts a
// message.
type KafkaConsumer struct {
	reader  messageReader
	handler *Handler
	logger  *slog.Logger
}

// NewKafkaConsumer creates a consumer for cfg.
func NewKafkaConsumer(cfg config.KafkaConfig, handler *Handler, logger *slog.Logger) (*KafkaConsumer, error) {
	if err := validateKafka(cfg, true); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("kafka: handler is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newKafkaConsumer(reader, handler, logger), nil
}

func newKafkaConsumer(r messageReader, handler *Handler, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		reader:  r,
		handler: handler,
		logger:  logger.With("component", "trigger.kafka_consumer"),
	}
}

// Run consumes until ctx is done or the handler rejects a message. A rejected
// message is left uncommitted and the handler error is returned; the caller
// restarts the consumer and the group redelivers from the last commit.
// Malformed messages are logged and committed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		msg, err := DecodeMessage(m.Value)
		if err != nil {
			c.logger.ErrorContext(ctx, "discarding malformed message",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		} else if err := c.handler.Handle(ctx, msg); err != nil {
			return fmt.Errorf("handle message at offset %d: %w", m.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

// Close releases the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
