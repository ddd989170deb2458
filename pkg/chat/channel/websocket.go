package channel

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
)

const (
	DefaultPingInterval = 25 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// WebSocketDialer dials {URL}?token=<token>&conversation_id=<id>.
type WebSocketDialer struct {
	URL string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

var _ Dialer = &WebSocketDialer{}

func NewWebSocketDialer(rawURL string) *WebSocketDialer {
	return &WebSocketDialer{
		URL:          rawURL,
		PingInterval: DefaultPingInterval,
		PongWait:     DefaultPongWait,
		WriteTimeout: DefaultWriteTimeout,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, conversationID string, cred auth.Credential) (Conn, error) {
	const op = "dial live channel"
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, chat.NewError(chat.ErrNetwork, op, errors.Wrap(err, "parse url"))
	}
	q := u.Query()
	q.Set("token", cred.Token())
	q.Set("conversation_id", conversationID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token())

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, chat.NewError(chat.ErrAuth, op, errors.Errorf("handshake status %d", resp.StatusCode))
			case http.StatusNotFound:
				return nil, chat.NewError(chat.ErrNotFound, op, errors.Errorf("conversation %s", conversationID))
			}
		}
		return nil, chat.NewError(chat.ErrNetwork, op, err)
	}
	return newWSConn(conn, d.PingInterval, d.PongWait, d.WriteTimeout), nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	pongWait     time.Duration
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func newWSConn(conn *websocket.Conn, pingInterval, pongWait, writeTimeout time.Duration) *wsConn {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	if pongWait <= 0 {
		pongWait = DefaultPongWait
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &wsConn{
		conn:         conn,
		pongWait:     pongWait,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	go c.pingLoop(pingInterval)
	return c
}

// pingLoop keeps the liveness signal flowing; a failed ping closes the
// transport so the pending Read reports the drop.
func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}
