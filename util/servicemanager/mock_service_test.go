package servicemanager

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dashbridge/creditbridge/errors"
)

// MockService is a controllable Service implementation for tests. The happy
// path signals ready immediately and blocks in Start until the context is
// cancelled, like a real long-running service.
type MockService struct {
	mu   sync.Mutex
	name string

	initCalled  bool
	startCalled bool
	stopCalled  bool

	failInit  bool
	failStart bool

	stopDelay time.Duration
	stopErr   error

	healthStatus int
	healthErr    error
}

func NewMockService(name string) *MockService {
	return &MockService{
		name:         name,
		healthStatus: http.StatusOK,
	}
}

// NewFailingMockService returns a mock that fails in the named phase,
// either "init" or "start".
func NewFailingMockService(name, phase string) *MockService {
	m := NewMockService(name)

	switch phase {
	case "init":
		m.failInit = true
	case "start":
		m.failStart = true
	}

	return m
}

// WasCalled reports which lifecycle phases have run.
func (m *MockService) WasCalled() (init, start, stop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.initCalled, m.startCalled, m.stopCalled
}

func (m *MockService) SetStopBehavior(delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopDelay = delay
	m.stopErr = err
}

func (m *MockService) SetHealthBehavior(status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.healthStatus = status
	m.healthErr = err
}

func (m *MockService) Health(_ context.Context, _ bool) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.healthStatus, "", m.healthErr
}

func (m *MockService) Init(_ context.Context) error {
	m.mu.Lock()
	m.initCalled = true
	failInit := m.failInit
	m.mu.Unlock()

	if failInit {
		return errors.NewServiceError("mock service failure in init of %s", m.name)
	}

	return nil
}

func (m *MockService) Start(ctx context.Context, readyCh chan<- struct{}) error {
	m.mu.Lock()
	m.startCalled = true
	failStart := m.failStart
	m.mu.Unlock()

	if failStart {
		return errors.NewServiceError("mock service failure in start of %s", m.name)
	}

	close(readyCh)

	<-ctx.Done()

	return ctx.Err()
}

func (m *MockService) Stop(_ context.Context) error {
	m.mu.Lock()
	m.stopCalled = true
	delay := m.stopDelay
	stopErr := m.stopErr
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	return stopErr
}
