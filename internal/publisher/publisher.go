package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"github.com/lzyats/bot-relay/pkg/event"
)

// Publisher emits relay audit events.
type Publisher interface {
	Publish(ctx context.Context, evt *event.RelayEvent) error
	Close() error
}

// Nop drops every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *event.RelayEvent) error { return nil }
func (Nop) Close() error                                     { return nil }

type Options struct {
	NameServer    string
	Topic         string
	Tag           string
	ProducerGroup string
	AccessKey     string
	SecretKey     string
}

type RocketMQ struct {
	topic string
	tag   string
	p     rmq.Producer
}

var _ Publisher = (*RocketMQ)(nil)

func NewRocketMQ(opt Options) (*RocketMQ, error) {
	if opt.NameServer == "" {
		return nil, fmt.Errorf("rocketmq: missing name_server")
	}
	if opt.ProducerGroup == "" {
		return nil, fmt.Errorf("rocketmq: missing producer_group")
	}
	if opt.Topic == "" {
		return nil, fmt.Errorf("rocketmq: missing topic")
	}
	opts := []producer.Option{
		producer.WithNameServer([]string{opt.NameServer}),
		producer.WithGroupName(opt.ProducerGroup),
		producer.WithRetry(2),
	}
	if opt.AccessKey != "" || opt.SecretKey != "" {
		opts = append(opts, producer.WithCredentials(primitive.Credentials{
			AccessKey: opt.AccessKey,
			SecretKey: opt.SecretKey,
		}))
	}
	p, err := rmq.NewProducer(opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	return &RocketMQ{topic: opt.Topic, tag: opt.Tag, p: p}, nil
}

func (r *RocketMQ) Publish(ctx context.Context, evt *event.RelayEvent) error {
	m, err := Message(r.topic, r.tag, evt)
	if err != nil {
		return err
	}
	_, err = r.p.SendSync(ctx, m)
	return err
}

// Message encodes evt for topic, keyed by conversation so a broker can keep
// per-conversation ordering.
func Message(topic, tag string, evt *event.RelayEvent) (*primitive.Message, error) {
	if evt == nil {
		return nil, fmt.Errorf("nil event")
	}
	if evt.TS == 0 {
		evt.TS = time.Now().Unix()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	m := primitive.NewMessage(topic, b)
	if tag != "" {
		m.WithTag(tag)
	}
	if evt.ConversationSid != "" {
		m.WithKeys([]string{evt.ConversationSid})
	}
	return m, nil
}

func (r *RocketMQ) Close() error {
	if r.p != nil {
		return r.p.Shutdown()
	}
	return nil
}
