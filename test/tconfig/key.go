package tconfig

// Key definitions conform to viper's path format, which keeps one name
// valid across environment variables and .env/.yaml/.json config files:
// the key bridge.gatewayurl is equivalent to BRIDGE_GATEWAYURL.
//
// Use these constants instead of raw strings when reading or overriding
// config programmatically.

const (
	// Keys for suite config
	KeySuiteTestID   = "suite.testid"
	KeySuiteName     = "suite.name"
	KeySuiteLogLevel = "suite.loglevel"

	// Keys for localsystem config
	KeyLocalSystemComposes     = "localsystem.composes"
	KeyLocalSystemDataDir      = "localsystem.datadir"
	KeyLocalSystemSkipSetup    = "localsystem.skipsetup"
	KeyLocalSystemSkipTeardown = "localsystem.skipteardown"

	// Keys for bridge deployment endpoints
	KeyBridgeContexts   = "bridge.contexts"
	KeyBridgeURL        = "bridge.url"
	KeyBridgeGatewayURL = "bridge.gatewayurl"
	KeyBridgeFaucetURL  = "bridge.fauceturl"
)
