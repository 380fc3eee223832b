package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WebSocketFeed receives push envelopes over a websocket connection
type WebSocketFeed struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
	done chan struct{}
}

// NewWebSocketFeed creates a websocket feed
func NewWebSocketFeed(url string) *WebSocketFeed {
	return &WebSocketFeed{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: slog.With("component", "feed", "feed", FeedWebSocket),
	}
}

// Name implements Feed
func (f *WebSocketFeed) Name() string { return FeedWebSocket }

// Start implements Feed
func (f *WebSocketFeed) Start(ctx context.Context, token string, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return ErrFeedRunning
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial websocket (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	f.conn = conn
	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	go f.writePump(conn, f.stop)
	go f.readPump(conn, sink, f.done)
	return nil
}

// readPump decodes envelopes until the connection drops. A drop that Stop
// did not ask for is reported to the sink.
func (f *WebSocketFeed) readPump(conn *websocket.Conn, sink Sink, done chan struct{}) {
	var readErr error
	defer func() {
		if f.release(conn) {
			sink.OnClosed(fmt.Errorf("%w: %v", ErrFeedClosed, readErr))
		}
		close(done)
	}()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.log.Warn("websocket closed", "error", err)
			}
			readErr = err
			return
		}

		msg, err := DecodePush(data)
		if err != nil {
			f.log.Warn("ignoring websocket message", "error", err)
			continue
		}
		dispatch(sink, msg)
	}
}

// release forgets conn if it is still the live connection, so the feed can
// be started again. It reports false when Stop already took it.
func (f *WebSocketFeed) release(conn *websocket.Conn) bool {
	f.mu.Lock()
	if f.conn != conn {
		f.mu.Unlock()
		return false
	}
	stop := f.stop
	f.conn, f.stop, f.done = nil, nil, nil
	f.mu.Unlock()

	close(stop)
	conn.Close()
	return true
}

// writePump keeps the connection alive with pings
func (f *WebSocketFeed) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// Stop implements Feed
func (f *WebSocketFeed) Stop() error {
	f.mu.Lock()
	conn, stop, done := f.conn, f.stop, f.done
	f.conn, f.stop, f.done = nil, nil, nil
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(wsWriteWait):
	}
	return conn.Close()
}
