package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GlobalChat/config"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

func testConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		Topic:        "inbound",
		DLQTopic:     "inbound.dlq",
		GroupID:      "test",
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
	}
}

func TestProducerDispatch(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev models.InboundEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.MessageID != "m1" || ev.RawText != "hello" {
			return errors.New("unexpected event")
		}
		return nil
	})
	p := newProducer(sp, testConfig(), nil)

	err := p.Dispatch(context.Background(), &models.InboundEvent{MessageID: "m1", ChannelID: "c1", RawText: "hello"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newProducer(sp, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Produce(ctx, "inbound", nil, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

type consumerCase struct {
	consumer *Consumer
	dlq      *mocks.SyncProducer
	calls    int
	sleeps   []time.Duration
}

func newConsumerCase(t *testing.T, handler func(calls int) error) *consumerCase {
	c := &consumerCase{dlq: mocks.NewSyncProducer(t, nil)}
	cfg := testConfig()
	c.consumer = newConsumer(nil, newProducer(c.dlq, cfg, nil), cfg, func(context.Context, *sarama.ConsumerMessage) error {
		c.calls++
		return handler(c.calls)
	}, nil)
	c.consumer.sleep = func(d time.Duration) { c.sleeps = append(c.sleeps, d) }
	return c
}

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	c := newConsumerCase(t, func(calls int) error {
		if calls < 3 {
			return errors.New("store down")
		}
		return nil
	})
	c.consumer.process(context.Background(), &sarama.ConsumerMessage{Topic: "inbound", Value: []byte("{}")})

	assert.Equal(t, 3, c.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, c.sleeps)
	require.NoError(t, c.dlq.Close())
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	c := newConsumerCase(t, func(int) error { return errors.New("store down") })
	c.dlq.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "payload" {
			return errors.New("dlq got a different payload")
		}
		return nil
	})
	c.consumer.process(context.Background(), &sarama.ConsumerMessage{Topic: "inbound", Value: []byte("payload")})

	assert.Equal(t, 3, c.calls)
	require.NoError(t, c.dlq.Close())
}

func TestConsumerPermanentErrorSkipsRetries(t *testing.T) {
	c := newConsumerCase(t, func(int) error { return Permanent(errors.New("bad json")) })
	c.dlq.ExpectSendMessageAndSucceed()
	c.consumer.process(context.Background(), &sarama.ConsumerMessage{Topic: "inbound", Value: []byte("{")})

	assert.Equal(t, 1, c.calls)
	assert.Empty(t, c.sleeps)
	require.NoError(t, c.dlq.Close())
}
