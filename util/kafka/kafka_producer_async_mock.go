package kafka

import (
	"context"
	"net/http"
	"sync"
)

// KafkaAsyncProducerMock provides a mock implementation of KafkaAsyncProducerI
// for testing. It records every published message instead of talking to a
// broker.
type KafkaAsyncProducerMock struct {
	mu        sync.Mutex
	published []*Message
	stopped   bool
}

var _ KafkaAsyncProducerI = (*KafkaAsyncProducerMock)(nil)

// NewKafkaAsyncProducerMock creates a new mock async producer.
//
// Returns:
//   - *KafkaAsyncProducerMock: Configured mock producer
func NewKafkaAsyncProducerMock() *KafkaAsyncProducerMock {
	return &KafkaAsyncProducerMock{
		published: make([]*Message, 0, 16),
	}
}

// Start drains ch into the recorded message list until ctx is cancelled or ch
// is closed, mirroring the blocking behaviour of the real producer.
func (m *KafkaAsyncProducerMock) Start(ctx context.Context, ch chan *Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			m.record(msg)
		}
	}
}

// Publish records a message as delivered.
func (m *KafkaAsyncProducerMock) Publish(msg *Message) {
	m.record(msg)
}

// Stop implements the KafkaAsyncProducerI interface for the mock producer.
func (m *KafkaAsyncProducerMock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true

	return nil
}

// BrokersURL implements the KafkaAsyncProducerI interface for the mock
// producer.
func (m *KafkaAsyncProducerMock) BrokersURL() []string {
	return nil
}

// Health reports the mock as healthy unless it has been stopped.
func (m *KafkaAsyncProducerMock) Health(_ context.Context, _ bool) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return http.StatusServiceUnavailable, "stopped", nil
	}

	return http.StatusOK, "OK", nil
}

// PublishedMessages returns a copy of every message published so far.
func (m *KafkaAsyncProducerMock) PublishedMessages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Message, len(m.published))
	copy(out, m.published)

	return out
}

func (m *KafkaAsyncProducerMock) record(msg *Message) {
	if msg == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, msg)
}
