package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyglot/internal/observe"
)

// errLeft ends a connection's goroutines once its hub channel is closed.
var errLeft = errors.New("relay: left room")

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithServerMetrics records connection and message metrics.
func WithServerMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows cross-origin websocket handshakes from hosts
// matching the given patterns (see websocket.AcceptOptions).
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithHub shares hub with the server, letting in-process peers join the
// same rooms as remote websocket clients.
func WithHub(h *Hub) ServerOption {
	return func(s *Server) { s.hub = h }
}

// Server exposes a [Hub] over websockets at GET /rooms/{room}. Every
// connection becomes one member of the room.
type Server struct {
	hub     *Hub
	metrics *observe.Metrics
	origins []string
}

// NewServer returns a relay server with its own hub unless [WithHub] is given.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = &Hub{}
	}
	return s
}

// Hub returns the hub backing the server.
func (s *Server) Hub() *Hub { return s.hub }

// Register mounts the relay routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{room}", s.serveRoom)
}

// Handler returns a standalone handler for the relay routes, wrapped in the
// metrics middleware when metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

func (s *Server) serveRoom(w http.ResponseWriter, r *http.Request) {
	room, err := NormalizeRoomCode(r.PathValue("room"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("relay: websocket accept failed", "room", room, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ch, err := s.hub.Join(ctx, room)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return
	}
	defer ch.Close()

	if s.metrics != nil {
		s.metrics.RelayConnections.Add(ctx, 1)
		defer s.metrics.RelayConnections.Add(context.WithoutCancel(ctx), -1)
	}
	log := slog.With("channel", ChannelName(room), "remote", r.RemoteAddr)
	log.Info("relay: member connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			var m Message
			if err := wsjson.Read(gctx, conn, &m); err != nil {
				return err
			}
			if m.Type != TypeText && m.Type != TypeSessionEnded {
				log.Warn("relay: dropping message of unknown type", "type", m.Type)
				continue
			}
			s.record(gctx, "in", m.Type)
			if err := ch.Publish(gctx, m); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case m, ok := <-ch.Messages():
				if !ok {
					return errLeft
				}
				if err := wsjson.Write(gctx, conn, m); err != nil {
					return err
				}
				s.record(gctx, "out", m.Type)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err = g.Wait()
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Info("relay: member disconnected")
		_ = conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Warn("relay: member connection ended", "error", err)
	}
}

func (s *Server) record(ctx context.Context, direction string, t MessageType) {
	if s.metrics != nil {
		s.metrics.RecordRelayMessage(ctx, direction, string(t))
	}
}
