package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/config"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to
// the dead letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Consumer joins a consumer group and feeds every message to a handler.
// Failed messages are retried with exponential backoff and then sent to
// the dead letter topic.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *config.KafkaConfig
	handler       MessageHandler
	dlq           *Producer
	topics        []string
	log           *logger.Logger
	sleep         func(time.Duration)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func NewConsumer(cfg *config.KafkaConfig, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Metadata.Timeout = 10 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	dlq, err := NewProducer(cfg, log)
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	return newConsumer(consumerGroup, dlq, cfg, handler, log), nil
}

func newConsumer(group sarama.ConsumerGroup, dlq *Producer, cfg *config.KafkaConfig, handler MessageHandler, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		consumerGroup: group,
		config:        cfg,
		handler:       handler,
		dlq:           dlq,
		topics:        []string{cfg.Topic},
		log:           log,
		sleep:         time.Sleep,
	}
}

// Start consumes in the background until ctx is cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Go(func() {
		for err := range c.consumerGroup.Errors() {
			c.log.Warn("kafka consumer error", zap.Error(err))
		}
	})
	c.wg.Go(func() {
		handler := &consumerGroupHandler{consumer: c}
		for ctx.Err() == nil {
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Error("kafka consume failed", zap.Error(err))
			}
		}
	})
	c.log.Info("kafka consumer started", zap.Strings("topics", c.topics), zap.String("group", c.config.GroupID))
}

// Stop cancels consumption and closes the group and the DLQ producer.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	groupErr := c.consumerGroup.Close()
	c.wg.Wait()

	if groupErr != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", groupErr)
	}
	if err := c.dlq.Close(); err != nil {
		return fmt.Errorf("failed to close DLQ producer: %w", err)
	}
	return nil
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.process(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process runs the handler with retries and dead-letters the message when
// every attempt failed.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) {
	err := c.handleWithRetry(ctx, message)
	if err == nil || ctx.Err() != nil {
		return
	}
	if _, _, dlqErr := c.dlq.Produce(ctx, c.config.DLQTopic, message.Key, message.Value); dlqErr != nil {
		c.log.Error("failed to send message to DLQ", zap.Error(dlqErr), zap.NamedError("cause", err))
		return
	}
	c.log.Warn("message sent to DLQ",
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Error(err),
	)
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	backoff := c.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.handler(ctx, message)
		if err == nil {
			return nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) {
			return err
		}
		if attempt < c.config.MaxRetries {
			c.sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.config.MaxRetries, lastErr)
}
