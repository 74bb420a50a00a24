package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Control-socket routes. The systems route is used by deployments that
// expose realtime control through the systems API instead of the dedicated
// control socket.
const (
	controlPath        = "/control/websocket"
	systemsControlPath = "/api/systems/control"
)

// Transport is a bidirectional frame pipe to the control socket. Both the
// live WebSocket transport and the in-memory mock implement it.
type Transport interface {
	// Send transmits one outbound frame (JSON command or keep-alive literal).
	Send(data []byte) error
	// Close tears the transport down. Safe to call more than once.
	Close() error
}

// Handlers receives transport traffic and lifecycle callbacks. Message is
// invoked for every inbound frame; exactly one of Error or Closed fires
// when the transport ends.
type Handlers struct {
	Message func(data []byte)
	Error   func(err error)
	Closed  func()
}

// TransportFactory opens a transport and wires its callbacks. Factories
// are invoked by the connection manager on every (re)connect attempt.
type TransportFactory func(ctx context.Context, h Handlers) (Transport, error)

// Endpoint describes how to reach the control socket.
type Endpoint struct {
	Host         string // host[:port]
	Secure       bool   // wss when true
	SystemsAPI   bool   // use the systems-control route
	TokenInQuery bool   // deliver the token as a query parameter instead of a cookie
}

// url builds the dial URL, attaching the token as a query parameter when
// cookie delivery is unsupported by the deployment.
func (e Endpoint) url(token string) string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	path := controlPath
	if e.SystemsAPI {
		path = systemsControlPath
	}
	u := url.URL{Scheme: scheme, Host: e.Host, Path: path}
	if e.TokenInQuery && token != "" {
		u.RawQuery = url.Values{"bearer_token": {token}}.Encode()
	}
	return u.String()
}

// newWebsocketFactory returns the live transport factory for the endpoint.
// The token is read from the authority at dial time so reconnects pick up
// refreshed credentials.
func newWebsocketFactory(e Endpoint, authority Authority) TransportFactory {
	return func(ctx context.Context, h Handlers) (Transport, error) {
		return dialWebsocket(ctx, e, authority.Token(), h)
	}
}

// dialWebsocket opens the control socket and starts its read pump.
func dialWebsocket(ctx context.Context, e Endpoint, token string, h Handlers) (Transport, error) {
	header := http.Header{}
	if !e.TokenInQuery && token != "" {
		// Short-lived cookie delivery is the default token path.
		header.Set("Cookie", "bearer_token="+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, e.url(token), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake returned %s", ErrUnauthorized, strconv.Itoa(resp.StatusCode))
		}
		return nil, fmt.Errorf("dialing control socket: %w", err)
	}

	t := &wsTransport{conn: conn}
	go t.readPump(h)
	return t, nil
}

// wsTransport is the live control-socket transport.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla permits one concurrent writer

	closeMu sync.Mutex
	closed  bool
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close shuts the socket down. The read pump exits on its own and reports
// a normal closure.
func (t *wsTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// readPump delivers inbound frames until the socket ends, then fires
// exactly one of Error or Closed.
func (t *wsTransport) readPump(h Handlers) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.closeMu.Lock()
			deliberate := t.closed
			t.closeMu.Unlock()

			if deliberate || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Closed()
			} else {
				h.Error(err)
			}
			return
		}
		h.Message(data)
	}
}
