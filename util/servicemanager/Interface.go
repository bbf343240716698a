package servicemanager

import "context"

// Service is the lifecycle contract every managed service implements. Init
// runs synchronously before any service starts; Start blocks for the life of
// the service and signals readiness exactly once on readyCh; Stop is called
// in reverse registration order during shutdown. Health mirrors the shape the
// HTTP health endpoints serve.
type Service interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	Init(ctx context.Context) error
	Start(ctx context.Context, readyCh chan<- struct{}) error
	Stop(ctx context.Context) error
}
