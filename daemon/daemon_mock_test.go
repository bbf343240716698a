package daemon

import (
	"context"
	"net/http"
	"sync"
)

// mockService is a simple mock implementation of servicemanager.Service for testing.
type mockService struct {
	mu          sync.Mutex
	initErr     error
	initialised bool
	name        string
	running     bool
	startErr    error
	stopErr     error
}

// newMockService creates a new instance of mockService with the given name.
func newMockService(name string) *mockService {
	return &mockService{name: name}
}

// Init implements the servicemanager.Service interface for mockService.
func (m *mockService) Init(_ context.Context) error {
	if m.initErr != nil {
		return m.initErr
	}

	m.mu.Lock()
	m.initialised = true
	m.mu.Unlock()

	return nil
}

// Start implements the servicemanager.Service interface for mockService. It
// signals readiness and then blocks until the context is cancelled, the same
// shape as a real long-running service.
func (m *mockService) Start(ctx context.Context, ready chan<- struct{}) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	close(ready)

	<-ctx.Done()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	return ctx.Err()
}

// Stop implements the servicemanager.Service interface for mockService.
func (m *mockService) Stop(_ context.Context) error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	return m.stopErr
}

// Name returns the name the mock service was created with.
func (m *mockService) Name() string {
	return m.name
}

// IsRunning reports whether the mock service is currently running.
func (m *mockService) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// IsInitialised reports whether Init has completed.
func (m *mockService) IsInitialised() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.initialised
}

// Health implements the servicemanager.Service interface for mockService.
func (m *mockService) Health(_ context.Context, _ bool) (int, string, error) {
	m.mu.Lock()
	healthy := m.initialised && m.running
	m.mu.Unlock()

	if healthy {
		return http.StatusOK, "mock service is healthy", nil
	}

	return http.StatusServiceUnavailable, "mock service is not healthy", nil
}
