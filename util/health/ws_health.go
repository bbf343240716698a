package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// CheckWebsocket probes a websocket dependency by completing a handshake
// against the given ws:// or wss:// URL and closing the connection again.
// Liveness sweeps skip the dial: an unreachable gateway degrades readiness,
// it does not mean this process should be restarted.
func CheckWebsocket(url string) func(context.Context, bool) (int, string, error) {
	return func(ctx context.Context, checkLiveness bool) (int, string, error) {
		if checkLiveness {
			return http.StatusOK, fmt.Sprintf("websocket probe for %s skipped for liveness", url), nil
		}

		dialer := websocket.Dialer{
			HandshakeTimeout: 2 * time.Second,
		}

		conn, resp, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			status := "no response"
			if resp != nil {
				status = resp.Status
			}

			return http.StatusServiceUnavailable, fmt.Sprintf("websocket at %s not accepting connections (%s)", url, status), err
		}

		_ = conn.Close()

		return http.StatusOK, fmt.Sprintf("websocket at %s completed a handshake", url), nil
	}
}
