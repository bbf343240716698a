// Package kafka publishes bridge credit events to a Kafka topic using an
// asynchronous sarama producer. The bridge is publish-only; downstream
// crediting systems own their consumers.
package kafka

import (
	"context"
	"time"
)

// Message is a single key/value payload handed to the producer. For credit
// events the key carries the session ID so all events for one session land on
// the same partition.
type Message struct {
	Key   []byte
	Value []byte
}

// MessageStatus records the outcome of the most recent delivery attempt.
type MessageStatus struct {
	Success bool
	Error   error
	Time    time.Time
}

// KafkaAsyncProducerI is the producer surface the bridge service depends on.
type KafkaAsyncProducerI interface {
	// Start consumes messages from ch and forwards them to the broker until
	// ctx is cancelled or ch is closed. It blocks.
	Start(ctx context.Context, ch chan *Message)

	// Publish queues a message on the channel passed to Start.
	Publish(msg *Message)

	// Stop shuts the underlying producer down. Safe to call more than once.
	Stop() error

	// BrokersURL returns the broker addresses the producer was built with.
	BrokersURL() []string

	// Health reports producer health in the same shape the chain clients use.
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
}
