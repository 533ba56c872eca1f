// Package bus wraps go-nsq so the rest of the code deals in topics, channels
// and JSON payloads, not broker plumbing. A channel is a consumer group: every
// group receives every message on the topic, one instance per group handles it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
	"github.com/taskman/taskman/internal/tracing"
)

// Publisher is the producer-side surface. *nsq.Producer satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// PublishJSON marshals v and publishes it to topic.
func PublishJSON(p Publisher, topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	if err := p.Publish(topic, b); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.RecordEventPublished(topic)
	return nil
}

// Handler processes one raw message body. A returned error requeues the
// message; handlers are expected to swallow anything terminal (bad payloads,
// unknown event types) so the loop never stalls on a poison message.
type Handler func(ctx context.Context, body []byte) error

// Consumer runs one NSQ consumer for a topic/channel pair.
type Consumer struct {
	topic    string
	channel  string
	consumer *nsq.Consumer
	logger   *logging.Logger
}

// NewConsumer creates a consumer for topic on the given channel and attaches
// the handler. Per-message failures are isolated: a panic or error in the
// handler affects only that message.
func NewConsumer(topic, channel string, maxInFlight int, handler Handler) (*Consumer, error) {
	conf := nsq.NewConfig()
	if maxInFlight > 0 {
		conf.MaxInFlight = maxInFlight
	}
	consumer, err := nsq.NewConsumer(topic, channel, conf)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer %s/%s: %w", topic, channel, err)
	}

	c := &Consumer{
		topic:    topic,
		channel:  channel,
		consumer: consumer,
		logger:   logging.New(channel),
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Plain().
					WithField("topic", c.topic).
					WithField("panic", fmt.Sprint(r)).
					Error("handler panicked, dropping message")
				metrics.RecordConsumeError(c.topic, c.channel)
				err = nil // drop, don't poison the channel
			}
		}()

		ctx := context.Background()
		if hdrErr := handler(ctx, m.Body); hdrErr != nil {
			c.logger.Plain().
				WithField("topic", c.topic).
				WithError(hdrErr).
				Error("handler failed, requeueing")
			metrics.RecordConsumeError(c.topic, c.channel)
			return hdrErr
		}
		metrics.RecordEventConsumed(c.topic, c.channel)
		return nil
	}))

	return c, nil
}

// Connect attaches the consumer to nsqd directly and to lookupd for discovery.
// Connecting to nsqd first forces channel creation so messages published
// before the first lookupd poll are not lost.
func (c *Consumer) Connect(nsqdTCPAddr, lookupHTTPAddr string) error {
	if err := c.consumer.ConnectToNSQD(nsqdTCPAddr); err != nil {
		return fmt.Errorf("connect to nsqd: %w", err)
	}
	if lookupHTTPAddr != "" {
		if err := c.consumer.ConnectToNSQLookupd(lookupHTTPAddr); err != nil {
			return fmt.Errorf("connect to lookupd: %w", err)
		}
	}
	c.logger.Plain().
		WithField("topic", c.topic).
		WithField("channel", c.channel).
		Info("consumer connected")
	return nil
}

// Stop drains in-flight messages and blocks until the consumer has exited.
func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}

// ContextFromEnvelope builds a handler context carrying the trace extracted
// from envelope headers, so consumer spans join the producing trace.
func ContextFromEnvelope(ctx context.Context, traceHeaders map[string]string) context.Context {
	if len(traceHeaders) == 0 {
		return ctx
	}
	return tracing.ExtractFromHeaders(ctx, traceHeaders)
}
