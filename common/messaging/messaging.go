// Package messaging provides abstractions for message broker communication so
// services can publish and subscribe without binding to a specific broker.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Message is a message received from or sent to a broker.
type Message struct {
	Subject string
	Data    []byte

	// Metadata maps onto broker headers when supported.
	Metadata map[string]string

	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// QueueSubscribe load-balances messages across members of queue so each
	// message is processed once.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber
	IsConnected() bool
}

// PublishJSON marshals v and publishes it on subject.
func PublishJSON(ctx context.Context, p Publisher, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.Publish(ctx, subject, data)
}

// MemoryPublisher records published messages in memory. It is used when no
// broker is configured and in tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemoryPublisher returns an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &Message{Subject: subject, Data: data})
}

func (p *MemoryPublisher) PublishMsg(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher closed")
	}
	m := *msg
	m.Data = append([]byte(nil), msg.Data...)
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	p.messages = append(p.messages, m)
	return nil
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Subjects lists the subjects of published messages in publish order.
func (p *MemoryPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Subject
	}
	return out
}
