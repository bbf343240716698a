package chain

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/mock"
	"go.uber.org/atomic"

	"github.com/dashbridge/creditbridge/model"
)

// MockClient is a mock implementation of the ClientI interface using
// testify/mock. It can be used in tests to script chain client behaviour.
type MockClient struct {
	mock.Mock
}

// Health checks the health status of the chain client.
func (m *MockClient) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	args := m.Called(ctx, checkLiveness)
	return args.Int(0), args.String(1), args.Error(2)
}

// GetBestHeight returns the scripted best chain height.
func (m *MockClient) GetBestHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint32), args.Error(1)
}

// Subscribe returns the scripted stream.
func (m *MockClient) Subscribe(ctx context.Context, filter *model.MatchFilter, fromHeight uint32, liveMode bool) (TxStream, error) {
	args := m.Called(ctx, filter, fromHeight, liveMode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(TxStream), args.Error(1)
}

// Broadcast returns the scripted txid.
func (m *MockClient) Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error) {
	args := m.Called(ctx, rawTx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

// Disconnect tears the mock client down.
func (m *MockClient) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

// MockStream is a hand-driven TxStream for tests. The test feeds it with
// Deliver and Fail and ends it with End; Cancel only records the call so
// tests can assert cleanup happened, and happened once.
type MockStream struct {
	events chan *StreamEvent
	errs   chan error

	endOnce sync.Once
	cancels atomic.Int32
}

func NewMockStream(buffer int) *MockStream {
	if buffer <= 0 {
		buffer = defaultEventBufferSize
	}

	return &MockStream{
		events: make(chan *StreamEvent, buffer),
		errs:   make(chan error, errBufferSize),
	}
}

func (s *MockStream) Events() <-chan *StreamEvent {
	return s.events
}

func (s *MockStream) Errs() <-chan error {
	return s.errs
}

func (s *MockStream) Cancel() {
	s.cancels.Inc()
}

// Deliver pushes an event into the stream.
func (s *MockStream) Deliver(ev *StreamEvent) {
	s.events <- ev
}

// Fail pushes a transient error into the stream.
func (s *MockStream) Fail(err error) {
	s.errs <- err
}

// End closes the stream the way the read pump would. Idempotent.
func (s *MockStream) End() {
	s.endOnce.Do(func() {
		close(s.events)
		close(s.errs)
	})
}

// CancelCount reports how many times Cancel was called.
func (s *MockStream) CancelCount() int32 {
	return s.cancels.Load()
}

var (
	_ ClientI     = (*MockClient)(nil)
	_ TxStream    = (*MockStream)(nil)
	_ ClientI     = (*GatewayClient)(nil)
	_ NodeClientI = (*CoreRPCClient)(nil)
)
