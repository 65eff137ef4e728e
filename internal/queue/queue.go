// Package queue defines the durable metric queue contract. The production
// implementation is Google Cloud Pub/Sub with ordering keys; the memory
// implementation backs tests and local runs. Delivery is at-least-once and
// ordered per key, never across keys.
package queue

import "context"

// Message is one delivery. Handlers must finish with exactly one of Ack
// (handled, including idempotent no-ops) or Nack (redeliver).
type Message struct {
	// Key is the partition key the message was published under.
	Key string
	// Data is the serialized metric envelope.
	Data []byte

	AckFunc  func()
	NackFunc func()
}

// Ack marks the message handled. A message acked here is never redelivered
// by a well-behaved implementation.
func (m *Message) Ack() {
	if m.AckFunc != nil {
		m.AckFunc()
	}
}

// Nack returns the message for redelivery.
func (m *Message) Nack() {
	if m.NackFunc != nil {
		m.NackFunc()
	}
}

// Publisher appends payloads to the queue under a partition key, preserving
// publish order within the key.
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte) error
	Close() error
}

// Consumer delivers messages until the context ends. Within one key,
// delivery order matches publish order and the next message is not
// delivered until the previous one was acked.
type Consumer interface {
	Receive(ctx context.Context, handle func(context.Context, *Message)) error
	Close() error
}
