// Package events publishes admin account lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commdir/apiserver/internal/mq"
	"github.com/commdir/apiserver/types"
)

// Type names a lifecycle transition.
type Type string

const (
	AdminCreated Type = "admin.created"
	AdminUpdated Type = "admin.updated"
	AdminDeleted Type = "admin.deleted"
)

// AccountEvent is the payload published for each transition. It never carries credentials.
type AccountEvent struct {
	Type       Type           `json:"type"`
	AdminID    int            `json:"admin_id"`
	Email      string         `json:"email,omitempty"`
	Roles      types.RoleList `json:"roles,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher encodes AccountEvents onto a message channel.
type Publisher struct {
	queue   *mq.MQ
	channel string
	now     func() time.Time
}

// NewPublisher constructs a Publisher writing to channel.
func NewPublisher(queue *mq.MQ, channel string) *Publisher {
	return &Publisher{queue: queue, channel: channel, now: time.Now}
}

// Publish sends an event for admin. For AdminDeleted only the id is meaningful.
func (p *Publisher) Publish(ctx context.Context, eventType Type, admin types.AdminAccount) error {
	event := AccountEvent{
		Type:       eventType,
		AdminID:    admin.ID,
		Email:      admin.Email,
		Roles:      admin.Roles,
		OccurredAt: p.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	attrs := map[string]string{
		mq.AttrEventType:   string(eventType),
		mq.AttrContentType: "application/json",
	}
	if _, err := p.queue.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Decode parses a delivered message back into an AccountEvent.
func Decode(msg mq.Message) (AccountEvent, error) {
	var event AccountEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return AccountEvent{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = Type(msg.EventType())
	}
	return event, nil
}

// Consume delivers decoded events from channel to fn until ctx is done.
// Messages that cannot be decoded are acknowledged and skipped.
func Consume(ctx context.Context, queue *mq.MQ, channel string, fn func(context.Context, AccountEvent) error) error {
	return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		event, err := Decode(msg)
		if err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}
