package daemon

import (
	"context"
	"fmt"
	"net/http"

	// registers the pprof handlers on the default mux, served by the profiler listener
	_ "net/http/pprof" //nolint:gosec
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixge/fgprof"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/faucet"
	"github.com/dashbridge/creditbridge/services/bridge"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/kafka"
	"github.com/dashbridge/creditbridge/util/retry"
	"github.com/dashbridge/creditbridge/util/servicemanager"
	"github.com/dashbridge/creditbridge/util/tracing"
	"github.com/dashbridge/creditbridge/watcher"
)

const (
	serviceHelp         = "help"
	serviceBridgeFormal = "Bridge"

	loggerBridge        = "bridge"
	loggerGateway       = "gway"
	loggerCoreRPC       = "corerpc"
	loggerFaucet        = "faucet"
	loggerKafkaProducer = "kpc"
)

var (
	pprofRegistered   atomic.Bool
	metricsRegistered atomic.Bool
)

// startServices starts the services based on the command line arguments, and the config file
func (d *Daemon) startServices(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings,
	sm *servicemanager.ServiceManager, args []string, readyCh chan<- struct{}) error {
	var closeOnce sync.Once

	// Create logger using the factory
	createLogger := d.loggerFactory

	// Check the command line arguments to determine which services to start.
	// The bridge defaults to on so a bare invocation runs a useful process.
	help := d.shouldStart(serviceHelp, args)
	startBridge := d.shouldStart(serviceBridgeFormal, args, true)

	d.appCount += len(d.externalServices)

	// If no services are started, print usage and exit
	if help || d.appCount == 0 {
		printUsage()
		return nil
	}

	raiseFileDescriptorLimit(logger, tSettings.Daemon.FileDescriptorLimit)

	// start the profiler if enabled
	startProfiler(logger, tSettings)

	// start prometheus metrics endpoint if enabled
	prometheusEndpoint := tSettings.Daemon.PrometheusEndpoint
	if prometheusEndpoint != "" && !metricsRegistered.Load() {
		metricsRegistered.Store(true)
		logger.Infof("Starting prometheus endpoint on %s", prometheusEndpoint)
		http.Handle(prometheusEndpoint, promhttp.Handler())
	}

	// start tracing if enabled
	if tSettings.Tracing.Enabled {
		logger.Infof("Starting tracer")

		if err := tracing.InitTracer(tSettings); err != nil {
			logger.Warnf("failed to initialize tracer: %v", err)
		}
	}

	if startBridge {
		if err := d.startBridgeService(ctx, tSettings, sm, createLogger); err != nil {
			return err
		}
	}

	// look through all external services and add them to the ServiceManager
	for _, exService := range d.externalServices {
		service, err := exService.InitFunc()
		if err != nil {
			return err
		}

		if err = sm.AddService(exService.Name, service); err != nil {
			return err
		}
	}

	// If the ready channel is provided, wait for the service to be ready
	if readyCh != nil {
		sm.WaitForServiceToBeReady()
		closeOnce.Do(func() { close(readyCh) })
	}

	return nil
}

// startBridgeService wires the gateway, Core RPC, faucet and Kafka clients
// together and registers the bridge with the service manager.
func (d *Daemon) startBridgeService(ctx context.Context, tSettings *settings.Settings,
	sm *servicemanager.ServiceManager, createLogger func(string) ulogger.Logger) error {
	logger := createLogger(loggerBridge)

	gatewayLogger := createLogger(loggerGateway)

	gatewayClient, err := retry.Retry(ctx, logger, func() (*chain.GatewayClient, error) {
		return chain.NewGatewayClient(ctx, gatewayLogger, tSettings)
	}, retry.Bind(retry.ConservativePolicy(), retry.WithMessage("[Daemon] error connecting to gateway"))...)
	if err != nil {
		return errors.NewServiceError("could not create gateway client", err)
	}

	// Watch sessions dial their own connection so a dropped deposit stream
	// never disturbs the shared client.
	clientFactory := watcher.ClientFactory(func(ctx context.Context) (chain.ClientI, error) {
		return chain.NewGatewayClient(ctx, gatewayLogger, tSettings)
	})

	var rpcClient chain.NodeClientI

	if tSettings.Chain.RPCURL != nil {
		c, err := chain.NewCoreRPCClient(createLogger(loggerCoreRPC), tSettings)
		if err != nil {
			return errors.NewServiceError("could not create core rpc client", err)
		}

		rpcClient = c
	}

	var faucetClient bridge.FaucetClientI

	if tSettings.Faucet.URL != "" {
		c, err := faucet.NewClient(createLogger(loggerFaucet), tSettings)
		if err != nil {
			return errors.NewServiceError("could not create faucet client", err)
		}

		faucetClient = c
	}

	var producer kafka.KafkaAsyncProducerI

	if tSettings.Kafka.Hosts != "" {
		p, err := getKafkaCreditsAsyncProducer(ctx, createLogger(loggerKafkaProducer), tSettings)
		if err != nil {
			return err
		}

		go p.Start(ctx, make(chan *kafka.Message, 10_000))

		producer = p
	} else {
		logger.Warnf("no Kafka hosts configured, deposit credits will not be published")
	}

	bridgeService := bridge.New(logger, tSettings, gatewayClient, rpcClient,
		clientFactory, faucetClient, producer)

	return sm.AddService(serviceBridgeFormal, bridgeService)
}

// startProfiler initializes and starts the profiler if the address is set in the app settings.
func startProfiler(logger ulogger.Logger, tSettings *settings.Settings) {
	profilerAddr := tSettings.Daemon.ProfilerAddr
	if profilerAddr != "" && !pprofRegistered.Load() {
		pprofRegistered.Store(true)

		go func() {
			logger.Infof("Profiler listening on http://%s/debug/pprof", profilerAddr)

			gocore.RegisterStatsHandlers()

			logger.Infof("StatsServer listening on http://%s/stats", profilerAddr)

			http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())
			logger.Infof("FGProf available at http://%s/debug/fgprof", profilerAddr)

			server := &http.Server{
				Addr:         profilerAddr,
				Handler:      nil,
				ReadTimeout:  60 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			logger.Errorf("%v", server.ListenAndServe())
		}()
	}
}

// raiseFileDescriptorLimit lifts the soft RLIMIT_NOFILE towards the requested
// limit. Every deposit watch session holds its own websocket, so the default
// soft limit runs out well before the session cap does.
func raiseFileDescriptorLimit(logger ulogger.Logger, limit uint64) {
	if limit == 0 {
		return
	}

	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warnf("failed to read RLIMIT_NOFILE: %v", err)
		return
	}

	if rLimit.Cur >= limit {
		return
	}

	rLimit.Cur = limit
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warnf("failed to raise RLIMIT_NOFILE to %d: %v", rLimit.Cur, err)
		return
	}

	logger.Infof("Raised RLIMIT_NOFILE to %d", rLimit.Cur)
}

func (d *Daemon) shouldStart(app string, args []string, defaultValue ...bool) bool {
	// See if the app is enabled in the command line
	cmdArg := fmt.Sprintf("-%s=1", strings.ToLower(app))
	for _, cmd := range args {
		if cmd == cmdArg {
			d.appCount++
			return true
		}
	}

	// See if the app is disabled in the command line
	cmdArg = fmt.Sprintf("-%s=0", strings.ToLower(app))
	for _, cmd := range args {
		if cmd == cmdArg {
			return false
		}
	}

	// Add option to stop all services from running if -all=0 is passed
	// except for the services that are explicitly enabled above
	for _, cmd := range args {
		if cmd == "-all=0" {
			return false
		}
	}

	// If the app was not specified on the command line, see if it is enabled in the config
	varArg := fmt.Sprintf("start%s", app)

	b := gocore.Config().GetBool(varArg, defaultValue...)
	if b {
		d.appCount++
	}

	return b
}

func printUsage() {
	fmt.Println("usage: main [options]")
	fmt.Println("where options are:")
	fmt.Println("")
	fmt.Println("    -bridge=<1|0>")
	fmt.Println("          whether to start the deposit bridge service (default 1)")
	fmt.Println("")
	fmt.Println("    -all=0")
	fmt.Println("          disable all services unless explicitly overridden")
	fmt.Println("")
}
