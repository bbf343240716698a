package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dashbridge/creditbridge/ulogger"
)

const (
	notifyProgress = "progress"
	notifyRetry    = "retry"
	notifyCredit   = "credit"
	notifySession  = "session"
	notifyPing     = "ping"
)

// notificationMsg is one hub notification. Clients receive frames holding a
// JSON array of these, one frame per batch flush.
type notificationMsg struct {
	Timestamp   string `json:"timestamp,omitempty"`
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	TxID        string `json:"txid,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Vout        uint32 `json:"vout,omitempty"`
	Satoshis    uint64 `json:"satoshis,omitempty"`
	Error       string `json:"error,omitempty"`
}

type clientChannelMap struct {
	sync.RWMutex
	channels map[chan []byte]struct{}
}

func newClientChannelMap() *clientChannelMap {
	return &clientChannelMap{
		channels: make(map[chan []byte]struct{}),
	}
}

func (cm *clientChannelMap) add(ch chan []byte) {
	cm.Lock()
	defer cm.Unlock()
	cm.channels[ch] = struct{}{}
}

func (cm *clientChannelMap) remove(ch chan []byte) {
	cm.Lock()
	defer cm.Unlock()
	delete(cm.channels, ch)
}

func (cm *clientChannelMap) broadcast(data []byte, logger ulogger.Logger) {
	// Get a snapshot of channels under the lock
	cm.RLock()
	channels := make([]chan []byte, 0, len(cm.channels))

	for ch := range cm.channels {
		channels = append(channels, ch)
	}
	cm.RUnlock()

	if len(channels) == 0 {
		return
	}

	// Send to all channels without holding the lock
	for _, ch := range channels {
		select {
		case ch <- data:
			// Data sent successfully
		case <-time.After(time.Second):
			logger.Errorf("[Bridge] timeout sending notification to client")
			// Remove timed out client
			cm.remove(ch)
		}
	}
}

func (cm *clientChannelMap) contains(ch chan []byte) bool {
	cm.RLock()
	defer cm.RUnlock()
	_, exists := cm.channels[ch]

	return exists
}

func (cm *clientChannelMap) count() int {
	cm.RLock()
	defer cm.RUnlock()

	return len(cm.channels)
}

// WebSocketConn abstracts the websocket connection for testing.
type WebSocketConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const (
	isoFormat = "2006-01-02T15:04:05Z"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

func createPingMessage() *notificationMsg {
	return &notificationMsg{
		Timestamp: time.Now().UTC().Format(isoFormat),
		Type:      notifyPing,
	}
}

// notify queues a notification for the hub. The send never blocks; when the
// hub is saturated the notification is dropped so a watch session or a lock
// wait cannot stall behind a slow browser.
func (s *Server) notify(msg *notificationMsg) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(isoFormat)
	}

	select {
	case s.notificationCh <- msg:
		prometheusBridgeNotifications.WithLabelValues("queued").Inc()
	default:
		prometheusBridgeNotifications.WithLabelValues("dropped").Inc()
	}
}

// sendNotificationBatch is the batcher's flush function. The whole batch goes
// out as a single JSON array frame.
func (s *Server) sendNotificationBatch(batch []*notificationMsg) {
	if len(batch) == 0 {
		return
	}

	data, err := json.Marshal(batch)
	if err != nil {
		s.logger.Errorf("[Bridge] failed to marshal notification batch: %v", err)
		return
	}

	s.clientChannels.broadcast(data, s.logger)
}

// handleClientMessages processes messages for a single websocket client
func (s *Server) handleClientMessages(ws WebSocketConn, ch chan []byte, deadClientCh chan<- chan []byte) {
	for data := range ch {
		err := ws.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			deadClientCh <- ch

			if err.Error() == "write: connection reset by peer" {
				s.logger.Infof("[Bridge] websocket connection lost: %v", err)
			} else {
				s.logger.Errorf("[Bridge] failed to send websocket notification: %v", err)
			}

			break
		}
	}
}

// startNotificationProcessor owns client registration and feeds incoming
// notifications into the batcher. Pings go straight out so an idle hub still
// reaps dead clients.
func (s *Server) startNotificationProcessor(ctx context.Context) {
	pingTimer := time.NewTicker(10 * time.Second)
	defer pingTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newClient := <-s.newClientCh:
			s.clientChannels.add(newClient)
			prometheusBridgeWSClients.Set(float64(s.clientChannels.count()))
		case deadClient := <-s.deadClientCh:
			s.clientChannels.remove(deadClient)
			prometheusBridgeWSClients.Set(float64(s.clientChannels.count()))
		case <-pingTimer.C:
			s.sendNotificationBatch([]*notificationMsg{createPingMessage()})
		case notification := <-s.notificationCh:
			s.notifyBatcher.Put(notification)
		}
	}
}

// HandleWebSocket upgrades the connection and streams notification batches
// until the client goes away or the server shuts down.
func (s *Server) HandleWebSocket() func(c echo.Context) error {
	return func(c echo.Context) error {
		ch := make(chan []byte, 100) // Add buffer to help prevent blocking

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		// Add client channel before starting message handling
		s.newClientCh <- ch

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.handleClientMessages(ws, ch, s.deadClientCh)
		}()

		// Wait for either server shutdown or message handling to complete
		select {
		case <-s.baseCtx.Done():
			_ = ws.Close()
		case <-done:
			// Message handling completed normally
		}

		return nil
	}
}
