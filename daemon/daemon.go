// Package daemon assembles the deposit bridge into a runnable process: it
// constructs the gateway, Core RPC, faucet and Kafka clients, registers the
// bridge with the service manager and serves the aggregated health endpoint.
package daemon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/health"
	"github.com/dashbridge/creditbridge/util/servicemanager"
	"github.com/dashbridge/creditbridge/util/tracing"
)

type externalService struct {
	Name     string
	InitFunc func() (servicemanager.Service, error)
}

// Daemon runs the bridge plus any externally registered services behind one
// lifecycle: ordered startup through the service manager, a health endpoint,
// and a bounded graceful Stop.
type Daemon struct {
	Ctx           context.Context
	doneCh        chan struct{}
	closeDoneOnce sync.Once

	stopCh           chan struct{} // closed when all services have stopped
	closeStopOnce    sync.Once
	serverMu         sync.Mutex
	server           *http.Server
	ServiceManager   *servicemanager.ServiceManager
	externalServices []*externalService
	loggerFactory    func(serviceName string) ulogger.Logger
	appCount         int
}

func New(opts ...Option) *Daemon {
	ctx := context.Background()

	d := &Daemon{
		Ctx:              ctx,
		closeDoneOnce:    sync.Once{},
		closeStopOnce:    sync.Once{},
		doneCh:           make(chan struct{}),
		stopCh:           make(chan struct{}),
		server:           nil,
		externalServices: make([]*externalService, 0),
		loggerFactory: func(serviceName string) ulogger.Logger {
			return ulogger.New(serviceName)
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.ServiceManager = servicemanager.NewServiceManager(d.Ctx, d.loggerFactory("ServiceManager"))

	return d
}

// AddExternalService registers a service to be constructed and started along
// with the built-in ones. InitFunc runs during startup, after the daemon's
// own clients exist.
func (d *Daemon) AddExternalService(name string, initFunc func() (servicemanager.Service, error)) {
	d.externalServices = append(d.externalServices, &externalService{
		Name:     name,
		InitFunc: initFunc,
	})
}

// Stop requests shutdown and waits for the services to finish, up to the
// given timeout (default 10s). Safe to call more than once.
func (d *Daemon) Stop(timeout ...time.Duration) error {
	logger := d.loggerFactory("Daemon")

	if err := tracing.ShutdownTracer(context.Background()); err != nil {
		logger.Warnf("Error shutting down tracer: %v", err)
	}

	d.serverMu.Lock()
	// Gracefully shutdown the health server if it exists
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.server.Shutdown(ctx); err != nil {
			logger.Warnf("Error shutting down health check server: %v", err)
		}
	}
	d.serverMu.Unlock()

	d.closeDoneOnce.Do(func() { close(d.doneCh) })

	if d.appCount == 0 {
		d.closeStopOnce.Do(func() { close(d.stopCh) })
		return nil
	}

	shutdownTimeout := 10 * time.Second
	if len(timeout) > 0 {
		shutdownTimeout = timeout[0]
	}

	timeoutCh := time.After(shutdownTimeout)

	select {
	case <-d.stopCh: // Wait for all services to complete
		return nil
	case <-timeoutCh:
		logger.Warnf("Timeout waiting for services to stop after %v", shutdownTimeout)

		return errors.NewProcessingError("timeout waiting for services to stop after %v", shutdownTimeout)
	}
}

// Start builds and runs the services selected by args, then blocks until they
// finish or Stop is called. When a ready channel is passed it is closed once
// every service has signalled readiness.
func (d *Daemon) Start(logger ulogger.Logger, args []string, tSettings *settings.Settings, readyCh ...chan struct{}) {
	// Before continuing, if the command line contains "-wait_for_gateway=1", wait for the gateway to be ready
	if d.shouldStart("wait_for_gateway", args) {
		if err := waitForGatewayToStart(logger, tSettings); err != nil {
			logger.Errorf("error waiting for gateway: %v", err)
			return
		}
	}

	sm := d.ServiceManager

	var readyChInternal chan struct{}
	if len(readyCh) > 0 {
		readyChInternal = readyCh[0]
	}

	err := d.startServices(sm.Ctx, logger, tSettings, sm, args, readyChInternal)
	if err != nil {
		logger.Errorf("error starting services: %v", err)
		sm.ForceShutdown()
		d.closeDoneOnce.Do(func() { close(d.doneCh) })
	}

	mux := http.NewServeMux()
	healthFunc := func(liveness bool) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			status, details, err := sm.HealthHandler(sm.Ctx, liveness)
			if err != nil {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(details))

				return
			}

			w.WriteHeader(status)
			_, _ = w.Write([]byte(details))
		}
	}
	mux.HandleFunc("/health", healthFunc(false))
	mux.HandleFunc("/health/readiness", healthFunc(false))
	mux.HandleFunc("/health/liveness", healthFunc(true))

	server := &http.Server{
		Addr:              tSettings.Daemon.HealthListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 20 * time.Second,  // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,  // Maximum duration for reading entire request
		WriteTimeout:      60 * time.Second,  // Maximum duration before timing out writes of response
		IdleTimeout:       120 * time.Second, // Maximum amount of time to wait for the next request
	}

	d.serverMu.Lock()
	d.server = server
	d.serverMu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Error starting health server: %v", err)
		}
	}()

	logger.Infof("Health check endpoint listening on http://%s/health", tSettings.Daemon.HealthListenAddress)

	// Create a channel to receive the wait result
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- sm.Wait()
	}()

	// Wait for either services to complete or doneCh to be closed
	select {
	case err := <-waitErr:
		if err != nil {
			logger.Errorf("services failed: %v", err)
		}
	case <-d.doneCh:
		logger.Infof("daemon shutdown requested")

		err = server.Shutdown(sm.Ctx)
		if err != nil {
			logger.Errorf("error shutting down server: %v", err)
		}

		sm.ForceShutdown()

		logger.Infof("daemon shutdown waiting for services to finish")

		if err := <-waitErr; err != nil {
			logger.Errorf("error during service shutdown: %v", err)
		}

		logger.Infof("daemon shutdown completed")
	}

	d.closeStopOnce.Do(func() { close(d.stopCh) })
}

// waitForGatewayToStart polls the gateway websocket endpoint until a
// handshake succeeds. Used in compose setups where the gateway container
// comes up in parallel with the bridge.
func waitForGatewayToStart(logger ulogger.Logger, tSettings *settings.Settings) error {
	timeout := time.Minute

	if tSettings.Chain.GatewayURL == nil {
		return errors.NewConfigurationError("no chain_gatewayURL setting found")
	}

	endpoint := tSettings.Chain.GatewayURL.String()
	check := health.CheckWebsocket(endpoint)

	logger.Infof("Waiting for gateway to be ready at %s", endpoint)

	deadline := time.Now().Add(timeout)

	for {
		_, _, err := check(context.Background(), false)
		if err == nil {
			logger.Infof("Gateway is up - ready to go!")

			return nil
		}

		if time.Now().After(deadline) {
			return errors.NewServiceError("timed out waiting for gateway to start", err)
		}

		logger.Infof("Gateway is not up yet - waiting")
		time.Sleep(time.Second)
	}
}
