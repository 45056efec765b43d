package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/config"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// Producer publishes inbound events so any node of the consumer group can
// process them.
type Producer struct {
	producer sarama.SyncProducer
	config   *config.KafkaConfig
	log      *logger.Logger
}

func saramaProducerConfig(cfg *config.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.Retry.Backoff = cfg.RetryBackoff
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Set connection timeouts to prevent hanging
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Metadata.Timeout = 10 * time.Second
	return saramaConfig
}

// NewProducer connects to the brokers in cfg.
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaProducerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newProducer(producer, cfg, log), nil
}

func newProducer(producer sarama.SyncProducer, cfg *config.KafkaConfig, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Producer{producer: producer, config: cfg, log: log}
}

// Produce sends value to topic. Keys pin related messages to one partition.
func (p *Producer) Produce(ctx context.Context, topic string, key []byte, value []byte) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}
	return partition, offset, nil
}

// Dispatch publishes ev to the inbound topic keyed by channel, so the
// messages of one channel keep their order.
func (p *Producer) Dispatch(ctx context.Context, ev *models.InboundEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.MessageID, err)
	}
	partition, offset, err := p.Produce(ctx, p.config.Topic, []byte(ev.ChannelID), value)
	if err != nil {
		return err
	}
	p.log.DebugContext(ctx, "event published",
		zap.String("message_id", ev.MessageID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close kafka producer: %w", err)
		}
	}
	return nil
}
