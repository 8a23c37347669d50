package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

var _ Relay = (*WebSocket)(nil)

// WebSocketOption configures a WebSocket relay client.
type WebSocketOption func(*WebSocket)

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(c *http.Client) WebSocketOption {
	return func(w *WebSocket) { w.httpClient = c }
}

// WithHeader adds a header to every handshake, e.g. an API token for a relay
// behind an authenticating proxy.
func WithHeader(key, value string) WebSocketOption {
	return func(w *WebSocket) { w.header.Add(key, value) }
}

// WebSocket joins rooms on a remote relay [Server].
type WebSocket struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

// NewWebSocket returns a client for the relay server at baseURL. http and
// https URLs are accepted and mapped to ws and wss.
func NewWebSocket(baseURL string, opts ...WebSocketOption) (*WebSocket, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("relay: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("relay: unsupported url scheme %q", u.Scheme)
	}
	w := &WebSocket{
		baseURL: strings.TrimRight(u.String(), "/"),
		header:  make(http.Header),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Join dials the room endpoint of the server.
func (w *WebSocket) Join(ctx context.Context, room string) (Channel, error) {
	room, err := NormalizeRoomCode(room)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, w.baseURL+"/rooms/"+room, &websocket.DialOptions{
		HTTPClient: w.httpClient,
		HTTPHeader: w.header,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", ChannelName(room), err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &wsChannel{
		conn:   conn,
		room:   room,
		id:     uuid.NewString(),
		out:    make(chan Message, memberBuffer),
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.receiveLoop()
	slog.Info("relay: joined room", "channel", ChannelName(room))
	return c, nil
}

type wsChannel struct {
	conn *websocket.Conn
	room string
	id   string
	out  chan Message

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsChannel) Publish(ctx context.Context, m Message) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if m.ClientID == "" {
		m.ClientID = c.id
	}
	if err := wsjson.Write(ctx, c.conn, m); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	return nil
}

func (c *wsChannel) Messages() <-chan Message { return c.out }

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "leaving room")
		c.cancel()
		<-c.done
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// receiveLoop owns out and closes it on exit.
func (c *wsChannel) receiveLoop() {
	defer close(c.done)
	defer close(c.out)
	for {
		var m Message
		if err := wsjson.Read(c.ctx, c.conn, &m); err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Warn("relay: connection lost", "channel", ChannelName(c.room), "error", err)
			}
			return
		}
		if m.ClientID == c.id {
			continue
		}
		select {
		case c.out <- m:
		case <-c.ctx.Done():
			return
		}
	}
}
