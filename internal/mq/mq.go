// Package mq carries admin account events over a message broker.
package mq

import "context"

// Well-known message attribute keys.
const (
	AttrContentType = "content-type"
	AttrEventType   = "event"
)

// Message is a broker-agnostic delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// EventType returns the event attribute, if any.
func (m Message) EventType() string {
	return m.Attributes[AttrEventType]
}

// Handler processes a delivery. A non-nil error requeues it.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by each broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends data to channel and returns the broker message id.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe blocks delivering messages from channel to handler until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}

// NoopBackend discards published messages. It is used when no broker is configured.
type NoopBackend struct{}

func (NoopBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

// Subscribe never delivers; it blocks until ctx is done.
func (NoopBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopBackend) Close() error {
	return nil
}
