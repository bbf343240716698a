package errors

var (
	ErrUnknown                  = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument          = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrThresholdExceeded        = New(ERR_THRESHOLD_EXCEEDED, "threshold exceeded")
	ErrNotFound                 = New(ERR_NOT_FOUND, "not found")
	ErrProcessing               = New(ERR_PROCESSING, "error processing")
	ErrConfiguration            = New(ERR_CONFIGURATION, "configuration error")
	ErrContext                  = New(ERR_CONTEXT, "context error")
	ErrContextCanceled          = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrError                    = New(ERR_ERROR, "generic error")
	ErrChain                    = New(ERR_CHAIN_ERROR, "chain error")
	ErrBlockHeightUnavailable   = New(ERR_BLOCK_HEIGHT_UNAVAILABLE, "block height unavailable")
	ErrTxNotFound               = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid                = New(ERR_TX_INVALID, "tx invalid")
	ErrTxDecode                 = New(ERR_TX_DECODE, "tx decode error")
	ErrTxBroadcast              = New(ERR_TX_BROADCAST, "tx broadcast error")
	ErrLockDecode               = New(ERR_LOCK_DECODE, "instant lock decode error")
	ErrLockTimeout              = New(ERR_LOCK_TIMEOUT, "instant lock wait timed out")
	ErrLockMismatch             = New(ERR_LOCK_MISMATCH, "instant lock txid mismatch")
	ErrServiceUnavailable       = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrServiceNotStarted        = New(ERR_SERVICE_NOT_STARTED, "service not started")
	ErrServiceError             = New(ERR_SERVICE_ERROR, "service error")
	ErrStreamEnded              = New(ERR_STREAM_ENDED, "stream ended")
	ErrStreamError              = New(ERR_STREAM_ERROR, "stream error")
	ErrSubscriptionFailed       = New(ERR_SUBSCRIPTION_FAILED, "subscription failed")
	ErrOnReadyFailed            = New(ERR_ON_READY_FAILED, "on-ready hook failed")
	ErrFaucet                   = New(ERR_FAUCET_ERROR, "faucet error")
	ErrFaucetRateLimited        = New(ERR_FAUCET_RATE_LIMITED, "faucet rate limited")
	ErrCapInvalid               = New(ERR_CAP_INVALID, "cap challenge invalid")
	ErrKafka                    = New(ERR_KAFKA_ERROR, "kafka error")
	ErrPowExhausted             = New(ERR_POW_EXHAUSTED, "proof of work iteration budget exhausted")
	ErrPowInvalid               = New(ERR_POW_INVALID, "proof of work solution invalid")
	ErrNetwork                  = New(ERR_NETWORK_ERROR, "network error")
	ErrNetworkTimeout           = New(ERR_NETWORK_TIMEOUT, "network timeout")
	ErrNetworkConnectionRefused = New(ERR_NETWORK_CONNECTION_REFUSED, "network connection refused")
	ErrNetworkInvalidResponse   = New(ERR_NETWORK_INVALID_RESPONSE, "network invalid response")
	ErrNetworkPeerMalicious     = New(ERR_NETWORK_PEER_MALICIOUS, "network peer malicious")
)

// errors initialization functions

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}
func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewThresholdExceededError(message string, params ...interface{}) error {
	return New(ERR_THRESHOLD_EXCEEDED, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewError(message string, params ...interface{}) error {
	return New(ERR_ERROR, message, params...)
}
func NewChainError(message string, params ...interface{}) error {
	return New(ERR_CHAIN_ERROR, message, params...)
}
func NewBlockHeightUnavailableError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_HEIGHT_UNAVAILABLE, message, params...)
}
func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}
func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}
func NewTxDecodeError(message string, params ...interface{}) error {
	return New(ERR_TX_DECODE, message, params...)
}
func NewTxBroadcastError(message string, params ...interface{}) error {
	return New(ERR_TX_BROADCAST, message, params...)
}
func NewLockDecodeError(message string, params ...interface{}) error {
	return New(ERR_LOCK_DECODE, message, params...)
}
func NewLockTimeoutError(message string, params ...interface{}) error {
	return New(ERR_LOCK_TIMEOUT, message, params...)
}
func NewLockMismatchError(message string, params ...interface{}) error {
	return New(ERR_LOCK_MISMATCH, message, params...)
}
func NewServiceUnavailableError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}
func NewServiceNotStartedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewStreamEndedError(message string, params ...interface{}) error {
	return New(ERR_STREAM_ENDED, message, params...)
}
func NewStreamError(message string, params ...interface{}) error {
	return New(ERR_STREAM_ERROR, message, params...)
}
func NewSubscriptionFailedError(message string, params ...interface{}) error {
	return New(ERR_SUBSCRIPTION_FAILED, message, params...)
}
func NewOnReadyFailedError(message string, params ...interface{}) error {
	return New(ERR_ON_READY_FAILED, message, params...)
}
func NewFaucetError(message string, params ...interface{}) error {
	return New(ERR_FAUCET_ERROR, message, params...)
}
func NewFaucetRateLimitedError(message string, params ...interface{}) error {
	return New(ERR_FAUCET_RATE_LIMITED, message, params...)
}
func NewCapInvalidError(message string, params ...interface{}) error {
	return New(ERR_CAP_INVALID, message, params...)
}
func NewKafkaError(message string, params ...interface{}) error {
	return New(ERR_KAFKA_ERROR, message, params...)
}
func NewPowExhaustedError(message string, params ...interface{}) error {
	return New(ERR_POW_EXHAUSTED, message, params...)
}
func NewPowInvalidError(message string, params ...interface{}) error {
	return New(ERR_POW_INVALID, message, params...)
}
func NewNetworkError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_ERROR, message, params...)
}
func NewNetworkTimeoutError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_TIMEOUT, message, params...)
}
func NewNetworkConnectionRefusedError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_CONNECTION_REFUSED, message, params...)
}
func NewNetworkInvalidResponseError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_INVALID_RESPONSE, message, params...)
}
func NewNetworkPeerMaliciousError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_PEER_MALICIOUS, message, params...)
}
