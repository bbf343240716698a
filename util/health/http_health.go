package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CheckHTTPServer probes an HTTP dependency by fetching healthPath from it.
// Any 2xx answer counts as healthy.
func CheckHTTPServer(address string, healthPath string) func(context.Context, bool) (int, string, error) {
	return func(ctx context.Context, _ bool) (int, string, error) {
		client := &http.Client{
			Timeout: 2 * time.Second,
		}

		url := fmt.Sprintf("%s%s", address, healthPath)
		if len(address) > 0 && len(healthPath) > 0 && address[len(address)-1] == '/' && healthPath[0] == '/' {
			url = fmt.Sprintf("%s%s", address, healthPath[1:])
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s failed to create request", address), err
		}

		resp, err := client.Do(req)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s not accepting connections", address), err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return http.StatusOK, fmt.Sprintf("HTTP server at %s is listening and accepting requests", address), nil
		}

		return http.StatusServiceUnavailable, fmt.Sprintf("HTTP server at %s returned status %d", address, resp.StatusCode), nil
	}
}
