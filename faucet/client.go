// Package faucet consumes the testnet faucet's HTTP surface, including the
// credit-anti-abuse (CAP) gate some deployments put in front of it: the
// client discovers the CAP endpoint through the status call, solves the hash
// puzzle it hands out, trades the solution for a bearer token and attaches
// that token to funding requests. Tokens are cached until near expiry so one
// solve covers many requests.
package faucet

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/pow"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/health"
	"github.com/dashbridge/creditbridge/util/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	capTokenKey    = "cap-token"
	capEndpointKey = "cap-endpoint"

	// tokenExpiryMargin keeps cached tokens clear of their server-side
	// expiry so a token is never presented in its final moments.
	tokenExpiryMargin = 30 * time.Second
)

// Status reports what the faucet requires before it funds an address. An
// empty CapEndpoint means the faucet runs open.
type Status struct {
	Status      string `json:"status"`
	CapEndpoint string `json:"capEndpoint,omitempty"`
}

// Token is a CAP bearer token with its server-side expiry.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// FundingResult echoes what the faucet paid out.
type FundingResult struct {
	TxID    string `json:"txid"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

type fundingRequest struct {
	Address  string `json:"address"`
	Amount   uint64 `json:"amount"`
	CapToken string `json:"capToken,omitempty"`
}

// Client talks to one faucet deployment. Outbound calls pass a client-side
// rate limiter so a misbehaving caller never hammers the shared faucet, and
// each call runs under the conservative retry policy.
type Client struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	store     *cache.Cache
}

// NewClient creates a faucet client from settings.
func NewClient(logger ulogger.Logger, tSettings *settings.Settings) (*Client, error) {
	initPrometheusMetrics()

	if tSettings.Faucet.URL == "" {
		return nil, errors.NewConfigurationError("no faucet_url setting found")
	}

	rps := tSettings.Faucet.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}

	burst := tSettings.Faucet.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		logger:    logger,
		settings:  tSettings,
		baseURL:   strings.TrimRight(tSettings.Faucet.URL, "/"),
		client:    &http.Client{Timeout: tSettings.Faucet.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		store:     cache.New(tSettings.Faucet.TokenTTL, 10*time.Minute),
	}, nil
}

// Health checks the faucet is reachable. Liveness never makes a network
// call; readiness probes the status endpoint once, outside the retry stack,
// so an unreachable faucet degrades readiness without stalling the sweep.
func (c *Client) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	return health.CheckHTTPServer(c.baseURL, "/status")(ctx, checkLiveness)
}

// Status fetches the faucet status, including the CAP endpoint when one is
// enforced.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	return retry.Retry(ctx, c.logger, func() (*Status, error) {
		status := &Status{}
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/status", nil, status); err != nil {
			return nil, err
		}

		return status, nil
	}, c.retryOpts("[faucet] status")...)
}

// Challenge fetches a fresh CAP challenge. A faucet without a CAP gate has
// no challenges to hand out and this call fails.
func (c *Client) Challenge(ctx context.Context) (*pow.Challenge, error) {
	capBase, err := c.capBase(ctx)
	if err != nil {
		return nil, err
	}

	if capBase == "" {
		return nil, errors.NewFaucetError("faucet does not enforce a cap gate")
	}

	return retry.Retry(ctx, c.logger, func() (*pow.Challenge, error) {
		challenge := &pow.Challenge{}
		if err := c.doJSON(ctx, http.MethodGet, capBase+"/challenge", nil, challenge); err != nil {
			return nil, err
		}

		if challenge.Challenge == "" {
			return nil, errors.NewNetworkInvalidResponseError("cap challenge response carries no challenge text")
		}

		// Servers that leave the difficulty out get the configured one.
		if challenge.Difficulty == 0 {
			challenge.Difficulty = c.settings.PoW.DefaultDifficulty
		}

		return challenge, nil
	}, c.retryOpts("[faucet] challenge")...)
}

// VerifySolution trades a solved challenge for a bearer token.
func (c *Client) VerifySolution(ctx context.Context, solution *pow.Solution) (*Token, error) {
	if solution == nil {
		return nil, errors.NewInvalidArgumentError("verify requires a solution")
	}

	capBase, err := c.capBase(ctx)
	if err != nil {
		return nil, err
	}

	if capBase == "" {
		return nil, errors.NewFaucetError("faucet does not enforce a cap gate")
	}

	return retry.Retry(ctx, c.logger, func() (*Token, error) {
		token := &Token{}
		if err := c.doJSON(ctx, http.MethodPost, capBase+"/verify", solution, token); err != nil {
			return nil, err
		}

		if token.Token == "" {
			return nil, errors.NewNetworkInvalidResponseError("cap verify response carries no token")
		}

		prometheusFaucetTokensIssued.Inc()

		return token, nil
	}, c.retryOpts("[faucet] verify")...)
}

// EnsureToken returns a CAP token, running the status -> challenge -> solve
// -> verify flow when the cache holds none. An empty token with a nil error
// means the faucet runs open and requests need no token.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	if v, ok := c.store.Get(capTokenKey); ok {
		return v.(string), nil
	}

	capBase, err := c.capBase(ctx)
	if err != nil {
		return "", err
	}

	if capBase == "" {
		return "", nil
	}

	challenge, err := c.Challenge(ctx)
	if err != nil {
		return "", err
	}

	c.logger.Infof("[faucet] solving cap challenge, difficulty %d bits", challenge.Difficulty)

	started := time.Now()

	solution, err := pow.Solve(ctx, c.settings, challenge)
	if err != nil {
		return "", err
	}

	c.logger.Infof("[faucet] cap challenge solved with nonce %d in %s", solution.Nonce, time.Since(started))

	token, err := c.VerifySolution(ctx, solution)
	if err != nil {
		return "", err
	}

	if ttl := c.tokenTTL(token); ttl > 0 {
		c.store.Set(capTokenKey, token.Token, ttl)
	}

	return token.Token, nil
}

// RequestFunds asks the faucet to pay address. A zero amount requests the
// configured default. The capToken is attached when the deployment enforces
// a CAP gate; EnsureToken produces it.
func (c *Client) RequestFunds(ctx context.Context, address string, amount uint64, capToken string) (*FundingResult, error) {
	if address == "" {
		return nil, errors.NewInvalidArgumentError("faucet request requires an address")
	}

	if amount == 0 {
		amount = c.settings.Faucet.RequestAmount
	}

	request := &fundingRequest{Address: address, Amount: amount, CapToken: capToken}

	return retry.Retry(ctx, c.logger, func() (*FundingResult, error) {
		result := &FundingResult{}
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/request", request, result); err != nil {
			return nil, err
		}

		prometheusFaucetFundsRequested.Inc()

		return result, nil
	}, c.retryOpts("[faucet] request funds")...)
}

// InvalidateToken drops the cached CAP token, forcing the next EnsureToken
// to solve a fresh challenge. Callers use it when the server stops honouring
// a token before its advertised expiry.
func (c *Client) InvalidateToken() {
	c.store.Delete(capTokenKey)
}

// capBase returns the CAP endpoint base URL, discovering it through the
// status call once and caching the answer. An empty string means the faucet
// runs open.
func (c *Client) capBase(ctx context.Context) (string, error) {
	if v, ok := c.store.Get(capEndpointKey); ok {
		return v.(string), nil
	}

	status, err := c.Status(ctx)
	if err != nil {
		return "", err
	}

	endpoint := c.resolveURL(status.CapEndpoint)
	c.store.Set(capEndpointKey, endpoint, cache.NoExpiration)

	return endpoint, nil
}

// resolveURL absolutizes an endpoint the status call returned, which may be
// a full URL or a path on the faucet host.
func (c *Client) resolveURL(endpoint string) string {
	if endpoint == "" {
		return ""
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimRight(endpoint, "/")
	}

	return c.baseURL + "/" + strings.Trim(endpoint, "/")
}

// tokenTTL returns how long a token is worth caching, staying clear of the
// server-side expiry.
func (c *Client) tokenTTL(token *Token) time.Duration {
	ttl := c.settings.Faucet.TokenTTL

	if !token.ExpiresAt.IsZero() {
		if until := time.Until(token.ExpiresAt) - tokenExpiryMargin; until < ttl {
			ttl = until
		}
	}

	return ttl
}

// retryOpts binds the conservative policy to the faucet's own retry knobs.
func (c *Client) retryOpts(message string) []retry.Options {
	opts := retry.Bind(retry.ConservativePolicy(), retry.WithMessage(message))

	if c.settings.Faucet.MaxRetries > 0 {
		opts = append(opts, retry.WithRetryCount(c.settings.Faucet.MaxRetries))
	}

	if d, err := time.ParseDuration(c.settings.Faucet.RetrySleep); err == nil && d > 0 {
		opts = append(opts, retry.WithBackoffDurationType(d))
	}

	return opts
}

// doJSON runs one HTTP exchange: rate limiter, request encode, status
// mapping, response decode. A 429 maps to the typed rate-limited error with
// the server's wait hint; 5xx maps to a retryable unavailability error;
// other non-2xx codes fail fast.
func (c *Client) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewContextError("faucet request aborted waiting for the rate limiter", err)
	}

	var bodyReader io.Reader

	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return errors.NewProcessingError("failed to encode faucet request", err)
		}

		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return errors.NewProcessingError("failed to create faucet request", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewNetworkError("faucet request [%s] failed", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewNetworkError("faucet request [%s] failed reading body", url, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		prometheusFaucetRateLimited.Inc()
		return rateLimitedError(url, resp.Header, body)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errFn := errors.NewFaucetError

		switch {
		case resp.StatusCode == http.StatusNotFound:
			errFn = errors.NewNotFoundError
		case resp.StatusCode >= http.StatusInternalServerError:
			errFn = errors.NewServiceUnavailableError
		}

		if len(body) > 0 {
			return errFn("faucet request [%s] returned status code [%d] with body [%s]", url, resp.StatusCode, string(body))
		}

		return errFn("faucet request [%s] returned status code [%d]", url, resp.StatusCode)
	}

	if respBody == nil {
		return nil
	}

	if err = json.Unmarshal(body, respBody); err != nil {
		return errors.NewNetworkInvalidResponseError("faucet request [%s] returned an undecodable body", url, err)
	}

	return nil
}

// rateLimitedError turns a 429 into the typed error the classifier treats
// as transient, with the server's wait hint made human readable. The hint
// may arrive as a retryAfter field in the body or a Retry-After header.
func rateLimitedError(url string, header http.Header, body []byte) error {
	var payload struct {
		RetryAfter float64 `json:"retryAfter"`
	}

	_ = json.Unmarshal(body, &payload)

	wait := time.Duration(payload.RetryAfter * float64(time.Second))

	if wait <= 0 {
		if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}

	if wait > 0 {
		return errors.NewFaucetRateLimitedError("faucet rate limited [%s], try again in %s", url, wait)
	}

	return errors.NewFaucetRateLimitedError("faucet rate limited [%s], try again shortly", url)
}
