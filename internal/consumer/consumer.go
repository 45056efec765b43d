package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/models"
	"github.com/Gopher0727/GlobalChat/internal/pkg/kafka"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// Dispatcher 接收入站事件，例如 MessageService
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *models.InboundEvent) error
}

// EventConsumer 把队列中的入站事件交给 Dispatcher
type EventConsumer struct {
	next Dispatcher
	log  *logger.Logger
}

func NewEventConsumer(next Dispatcher, log *logger.Logger) *EventConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &EventConsumer{next: next, log: log}
}

// Handle 满足 kafka.MessageHandler。无法解码的消息不重试
func (c *EventConsumer) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var ev models.InboundEvent
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		return kafka.Permanent(fmt.Errorf("decode event at offset %d: %w", message.Offset, err))
	}
	if ev.MessageID == "" || ev.ChannelID == "" || ev.AuthorID == "" {
		return kafka.Permanent(fmt.Errorf("event at offset %d is incomplete", message.Offset))
	}

	c.log.DebugContext(ctx, "event consumed",
		zap.String("message_id", ev.MessageID),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
	)
	return c.next.Dispatch(ctx, &ev)
}
