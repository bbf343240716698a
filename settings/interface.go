package settings

import (
	"net/url"
	"time"

	"github.com/dashbridge/creditbridge/chaincfg"
)

// ChainSettings configures the transaction gateway and the core RPC node the
// bridge talks to.
type ChainSettings struct {
	GatewayURL       *url.URL
	RPCURL           *url.URL
	SocksProxy       string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	MaxMessageSize   int64
	EventBufferSize  int

	// dedupe filter over already-relayed txids
	SeenFilterCapacity uint64
	SeenFilterFPRate   float64

	// deposit watching uses a dedicated short-lived client per call
	DepositLookback      uint32
	DepositCallTimeout   time.Duration
	DepositClientRetries int

	MaxRetries int
	RetrySleep string
}

type WatcherSettings struct {
	LockWaitTimeout    time.Duration
	DepositWaitTimeout time.Duration

	// filter sizing: tight for a single txid, loose for address patterns
	TxidFPRate    float64
	AddressFPRate float64
}

type PowSettings struct {
	DefaultDifficulty uint32
	MaxIterations     uint64
	YieldInterval     uint64
}

type FaucetSettings struct {
	URL            string
	Timeout        time.Duration
	TokenTTL       time.Duration
	RequestAmount  uint64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxRetries     int
	RetrySleep     string
}

type BridgeSettings struct {
	HTTPListenAddress   string
	SessionTTL          time.Duration
	MinDepositAmount    uint64
	NotifyBatchSize     int
	NotifyBatchDuration time.Duration
	RateLimitRPS        float64
	RateLimitBurst      int
}

type KafkaSettings struct {
	Hosts             string
	Port              int
	CreditTopic       string
	Partitions        int
	ReplicationFactor int
	FlushBytes        int
	FlushMessages     int
	FlushFrequency    time.Duration
}

type TracingSettings struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
}

type DaemonSettings struct {
	ProfilerAddr        string
	PrometheusEndpoint  string
	HealthListenAddress string
	FileDescriptorLimit uint64
}

type Settings struct {
	ClientName     string
	DataFolder     string
	LogLevel       string
	Network        string
	ChainCfgParams *chaincfg.Params
	Chain          ChainSettings
	Watcher        WatcherSettings
	PoW            PowSettings
	Faucet         FaucetSettings
	Bridge         BridgeSettings
	Kafka          KafkaSettings
	Tracing        TracingSettings
	Daemon         DaemonSettings
}
