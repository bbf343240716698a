package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okCheck(_ context.Context, _ bool) (int, string, error) {
	return http.StatusOK, "fine", nil
}

func failingCheck(_ context.Context, _ bool) (int, string, error) {
	return http.StatusServiceUnavailable, "down", nil
}

func TestCheckAll_AllHealthy(t *testing.T) {
	status, body, err := CheckAll(context.Background(), false, []Check{
		{Name: "gateway", Check: okCheck},
		{Name: "corerpc", Check: okCheck},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"200"`)
	assert.Contains(t, body, `"resource": "gateway"`)
	assert.Contains(t, body, `"resource": "corerpc"`)
}

func TestCheckAll_OneUnhealthy(t *testing.T) {
	status, body, err := CheckAll(context.Background(), false, []Check{
		{Name: "gateway", Check: okCheck},
		{Name: "kafka", Check: failingCheck},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, `"status":"503"`)
	assert.Contains(t, body, `"resource": "kafka"`)
}

func TestCheckAll_EmbedsNestedJSON(t *testing.T) {
	nested := func(_ context.Context, _ bool) (int, string, error) {
		return http.StatusOK, `{"resource": "inner", "status": "200"}`, nil
	}

	status, body, err := CheckAll(context.Background(), false, []Check{
		{Name: "outer", Check: nested},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"dependencies": [{"resource": "inner"`)
}

func TestCheckAll_NoChecks(t *testing.T) {
	status, body, err := CheckAll(context.Background(), true, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"dependencies":[]`)
}

func TestCheckHTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	check := CheckHTTPServer(server.URL, "/health")

	status, message, err := check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, message, "listening")
}

func TestCheckHTTPServer_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	check := CheckHTTPServer(server.URL, "/health")

	status, message, err := check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, message, "returned status 500")
}

func TestCheckHTTPServer_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	check := CheckHTTPServer(server.URL, "/health")

	status, _, err := check(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestCheckWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		defer conn.Close()

		// Hold the connection open until the probe hangs up.
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	check := CheckWebsocket(wsURL)

	status, message, err := check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, message, "handshake")
}

func TestCheckWebsocket_NotAWebsocket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	status, _, err := CheckWebsocket(wsURL)(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestCheckWebsocket_SkipsForLiveness(t *testing.T) {
	// No server behind this URL; liveness must not dial it.
	status, message, err := CheckWebsocket("ws://127.0.0.1:1/ws")(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, message, "skipped")
}
