package errors

// ERR is the typed error code carried by every *Error. Codes are grouped in
// ranges per concern so GetErrorCategory can bucket them without a lookup
// table: 10-19 chain, 30-49 transaction/lock, 50-59 service, 60-69 stream,
// 70-79 faucet, 80-89 kafka, 90-99 pow, 110-119 network.
type ERR int32

const (
	ERR_UNKNOWN            ERR = 0
	ERR_INVALID_ARGUMENT   ERR = 1
	ERR_THRESHOLD_EXCEEDED ERR = 2
	ERR_NOT_FOUND          ERR = 3
	ERR_PROCESSING         ERR = 4
	ERR_CONFIGURATION      ERR = 5
	ERR_CONTEXT            ERR = 6
	ERR_CONTEXT_CANCELED   ERR = 7
	ERR_ERROR              ERR = 9

	ERR_CHAIN_ERROR              ERR = 10
	ERR_BLOCK_HEIGHT_UNAVAILABLE ERR = 11

	ERR_TX_NOT_FOUND  ERR = 30
	ERR_TX_INVALID    ERR = 31
	ERR_TX_DECODE     ERR = 32
	ERR_TX_BROADCAST  ERR = 33
	ERR_LOCK_DECODE   ERR = 40
	ERR_LOCK_TIMEOUT  ERR = 41
	ERR_LOCK_MISMATCH ERR = 42

	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_SERVICE_NOT_STARTED ERR = 51
	ERR_SERVICE_ERROR       ERR = 52

	ERR_STREAM_ENDED        ERR = 60
	ERR_STREAM_ERROR        ERR = 61
	ERR_SUBSCRIPTION_FAILED ERR = 62
	ERR_ON_READY_FAILED     ERR = 63

	ERR_FAUCET_ERROR        ERR = 70
	ERR_FAUCET_RATE_LIMITED ERR = 71
	ERR_CAP_INVALID         ERR = 72

	ERR_KAFKA_ERROR ERR = 80

	ERR_POW_EXHAUSTED ERR = 90
	ERR_POW_INVALID   ERR = 91

	ERR_NETWORK_ERROR              ERR = 110
	ERR_NETWORK_TIMEOUT            ERR = 111
	ERR_NETWORK_CONNECTION_REFUSED ERR = 112
	ERR_NETWORK_INVALID_RESPONSE   ERR = 113
	ERR_NETWORK_PEER_MALICIOUS     ERR = 114
)

// ERR_name maps codes to their canonical names. New() refuses codes that are
// not registered here.
var ERR_name = map[int32]string{
	0:   "UNKNOWN",
	1:   "INVALID_ARGUMENT",
	2:   "THRESHOLD_EXCEEDED",
	3:   "NOT_FOUND",
	4:   "PROCESSING",
	5:   "CONFIGURATION",
	6:   "CONTEXT",
	7:   "CONTEXT_CANCELED",
	9:   "ERROR",
	10:  "CHAIN_ERROR",
	11:  "BLOCK_HEIGHT_UNAVAILABLE",
	30:  "TX_NOT_FOUND",
	31:  "TX_INVALID",
	32:  "TX_DECODE",
	33:  "TX_BROADCAST",
	40:  "LOCK_DECODE",
	41:  "LOCK_TIMEOUT",
	42:  "LOCK_MISMATCH",
	50:  "SERVICE_UNAVAILABLE",
	51:  "SERVICE_NOT_STARTED",
	52:  "SERVICE_ERROR",
	60:  "STREAM_ENDED",
	61:  "STREAM_ERROR",
	62:  "SUBSCRIPTION_FAILED",
	63:  "ON_READY_FAILED",
	70:  "FAUCET_ERROR",
	71:  "FAUCET_RATE_LIMITED",
	72:  "CAP_INVALID",
	80:  "KAFKA_ERROR",
	90:  "POW_EXHAUSTED",
	91:  "POW_INVALID",
	110: "NETWORK_ERROR",
	111: "NETWORK_TIMEOUT",
	112: "NETWORK_CONNECTION_REFUSED",
	113: "NETWORK_INVALID_RESPONSE",
	114: "NETWORK_PEER_MALICIOUS",
}

var ERR_value = func() map[string]int32 {
	m := make(map[string]int32, len(ERR_name))
	for v, n := range ERR_name {
		m[n] = v
	}

	return m
}()

func (e ERR) String() string {
	if name, ok := ERR_name[int32(e)]; ok {
		return name
	}

	return "UNKNOWN"
}

// Enum keeps the historical accessor name used throughout log formats.
func (e ERR) Enum() string {
	return e.String()
}
