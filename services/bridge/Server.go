// Package bridge exposes the deposit bridge over HTTP: broadcast with an
// InstantSend lock wait, long-running deposit watch sessions, a faucet
// funding flow and a websocket hub streaming progress notifications. Resolved
// deposits are published to Kafka as credit events, deduplicated against a
// synced credited-map so a deposit observed twice is never credited twice.
package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-batcher"
	txmap "github.com/bsv-blockchain/go-tx-map"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/faucet"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/health"
	"github.com/dashbridge/creditbridge/util/kafka"
	"github.com/dashbridge/creditbridge/util/tracing"
	"github.com/dashbridge/creditbridge/watcher"
)

// FaucetClientI is the slice of the faucet client the bridge uses. Token
// acquisition, including the proof of work solve, happens inside EnsureToken.
type FaucetClientI interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	EnsureToken(ctx context.Context) (string, error)
	RequestFunds(ctx context.Context, address string, amount uint64, capToken string) (*faucet.FundingResult, error)
	InvalidateToken()
}

// batcherIfc defines the interface for batching operations
type batcherIfc[T any] interface {
	Put(item *T, payloadSize ...int)
	Trigger()
}

// Server is the bridge HTTP service. Watch sessions run on the server's base
// context so they outlive the requests that started them; the TTL cache
// expires finished sessions that nobody polls.
type Server struct {
	logger   ulogger.Logger
	settings *settings.Settings

	e *echo.Echo

	chainClient   chain.ClientI
	rpcClient     chain.NodeClientI
	clientFactory watcher.ClientFactory
	faucetClient  FaucetClientI
	producer      kafka.KafkaAsyncProducerI

	sessions *ttlcache.Cache[string, *WatchSession]

	// creditMu serialises the exists-publish-set sequence on the credited
	// map so two sessions resolving the same deposit cannot both publish.
	creditMu sync.Mutex
	credited *txmap.SyncedMap[chainhash.Hash, string]

	clientChannels *clientChannelMap
	newClientCh    chan chan []byte
	deadClientCh   chan chan []byte
	notificationCh chan *notificationMsg
	notifyBatcher  batcherIfc[notificationMsg]

	tracer *tracing.UTracer

	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopOnce   sync.Once
}

// New creates the bridge service. rpcClient may be nil when no Core RPC node
// is configured; its health probe is then skipped.
func New(logger ulogger.Logger, tSettings *settings.Settings, chainClient chain.ClientI, rpcClient chain.NodeClientI,
	clientFactory watcher.ClientFactory, faucetClient FaucetClientI, producer kafka.KafkaAsyncProducerI) *Server {
	initPrometheusMetrics()

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		logger:        logger,
		settings:      tSettings,
		chainClient:   chainClient,
		rpcClient:     rpcClient,
		clientFactory: clientFactory,
		faucetClient:  faucetClient,
		producer:      producer,
		sessions: ttlcache.New[string, *WatchSession](
			ttlcache.WithTTL[string, *WatchSession](tSettings.Bridge.SessionTTL),
			ttlcache.WithDisableTouchOnHit[string, *WatchSession](),
		),
		credited:       txmap.NewSyncedMap[chainhash.Hash, string](),
		clientChannels: newClientChannelMap(),
		newClientCh:    make(chan chan []byte, 1_000),
		deadClientCh:   make(chan chan []byte, 1_000),
		notificationCh: make(chan *notificationMsg, 1_000),
		tracer:         tracing.Tracer("bridge", logger),
		baseCtx:        ctx,
		baseCancel:     cancel,
	}

	s.notifyBatcher = batcher.New[notificationMsg](tSettings.Bridge.NotifyBatchSize,
		tSettings.Bridge.NotifyBatchDuration, s.sendNotificationBatch, true)

	// the registry's expiration loop runs from construction so sessions
	// expire even before Start; Stop pairs with it exactly once
	go s.sessions.Start()

	return s
}

// Health checks the bridge and its dependencies. Liveness only reports that
// the process is responsive; readiness probes the gateway, the Core RPC node,
// the Kafka producer and the faucet.
func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := make([]health.Check, 0, 4)

	if s.chainClient != nil {
		checks = append(checks, health.Check{Name: "Gateway", Check: s.chainClient.Health})
	}

	if s.rpcClient != nil {
		checks = append(checks, health.Check{Name: "CoreRPC", Check: s.rpcClient.Health})
	}

	if s.producer != nil {
		checks = append(checks, health.Check{Name: "Kafka", Check: s.producer.Health})
	}

	if s.faucetClient != nil {
		checks = append(checks, health.Check{Name: "Faucet", Check: s.faucetClient.Health})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

// Init builds the echo server and its routes. The /bridge group is rate
// limited per client IP; /health stays unlimited so probes never starve.
func (s *Server) Init(ctx context.Context) error {
	if s.settings.Bridge.HTTPListenAddress == "" {
		return errors.NewConfigurationError("no bridge_httpListenAddress setting found")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/bridge/ws"
		},
	}))

	e.GET("/health", s.handleHealth)

	b := e.Group("/bridge", s.rateLimiter())

	b.POST("/broadcast", s.handleBroadcast)
	b.POST("/deposits/watch", s.handleWatchDeposit)
	b.GET("/sessions/:id", s.handleGetSession)
	b.POST("/faucet", s.handleFaucet)
	b.GET("/ws", s.HandleWebSocket())

	s.e = e

	return nil
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.settings.Bridge.RateLimitRPS),
			Burst:     s.settings.Bridge.RateLimitBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	})
}

// Start runs the HTTP listener until ctx is cancelled. The readyCh is closed
// once the session registry and the notification hub are up.
func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	go func() {
		<-ctx.Done()
		s.baseCancel()
	}()

	go s.startNotificationProcessor(s.baseCtx)

	close(readyCh)

	return s.startHTTP(ctx)
}

func (s *Server) startHTTP(ctx context.Context) error {
	addr := s.settings.Bridge.HTTPListenAddress

	s.logger.Infof("[Bridge] HTTP service listening on %s", addr)

	go func() {
		<-ctx.Done()
		s.logger.Infof("[Bridge] HTTP service shutting down")

		if err := s.e.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("[Bridge] HTTP service shutdown error: %s", err)
		}
	}()

	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.NewServiceError("bridge http server failed", err)
	}

	return nil
}

// Stop cancels every running watch session and shuts the listener down. The
// Kafka producer is owned by the daemon and is not stopped here.
func (s *Server) Stop(_ context.Context) error {
	s.baseCancel()

	s.stopOnce.Do(func() {
		s.sessions.Stop()
	})

	if s.e != nil {
		_ = s.e.Shutdown(context.Background())
	}

	return nil
}
