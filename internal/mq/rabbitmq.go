package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/commdir/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultContentType = "application/octet-stream"

// RabbitMQClient publishes events to and consumes them from named queues on
// the default exchange.
type RabbitMQClient struct {
	conn *amqp.Connection

	// pubMu serializes use of pub; an amqp channel is not safe for
	// concurrent publishes.
	pubMu sync.Mutex
	pub   *amqp.Channel

	declared sync.Map // queue name -> struct{}

	durable    bool
	autoDelete bool
	prefetch   int
}

// NewRabbitMQClient dials the broker described by cfg.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:       conn,
		pub:        pub,
		durable:    cfg.QueueDurable,
		autoDelete: cfg.QueueAutoDelete,
		prefetch:   cfg.PrefetchCount,
	}, nil
}

// Publish sends data to the queue named channel. The queue is declared on
// first use.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	msg := r.publishing(data, attrs)

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := r.ensureQueue(r.pub, channel); err != nil {
		return "", err
	}
	if err := r.pub.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", fmt.Errorf("rabbitmq publish to %s: %w", channel, err)
	}
	return msg.MessageId, nil
}

// Subscribe consumes the queue named channel on a dedicated amqp channel.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			return err
		}
	}
	if err := r.ensureQueue(ch, channel); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, channel, "admin-events-"+uuid.NewString(), false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryMessage(d)); err != nil {
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) ensureQueue(ch *amqp.Channel, name string) error {
	if _, ok := r.declared.Load(name); ok {
		return nil
	}
	if _, err := ch.QueueDeclare(name, r.durable, r.autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", name, err)
	}
	r.declared.Store(name, struct{}{})
	return nil
}

func (r *RabbitMQClient) publishing(data []byte, attrs map[string]string) amqp.Publishing {
	headers := make(amqp.Table, len(attrs))
	for k, v := range attrs {
		headers[k] = v
	}

	contentType := attrs[AttrContentType]
	if contentType == "" {
		contentType = defaultContentType
	}

	mode := amqp.Transient
	if r.durable {
		mode = amqp.Persistent
	}

	return amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: mode,
		MessageId:    newMessageID(),
		Type:         attrs[AttrEventType],
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	}
}

func deliveryMessage(d amqp.Delivery) Message {
	attrs := headersToAttributes(d.Headers)
	if d.Type != "" {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[AttrEventType] = d.Type
	}
	return Message{ID: d.MessageId, Data: d.Body, Attributes: attrs}
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	return uuid.NewString()
}
