package app

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/health"
	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/relay"
)

// RelayServer hosts the websocket rooms that connect hosts and joiners.
type RelayServer struct {
	cfg       config.ServerConfig
	server    *relay.Server
	health    *health.Handler
	telemetry *observe.Telemetry
}

// NewRelayServer builds a relay server from cfg. m and t may be nil.
func NewRelayServer(cfg config.ServerConfig, m *observe.Metrics, t *observe.Telemetry) *RelayServer {
	opts := []relay.ServerOption{relay.WithOriginPatterns(cfg.AllowedOrigins...)}
	if m != nil {
		opts = append(opts, relay.WithServerMetrics(m))
	}
	srv := relay.NewServer(opts...)
	return &RelayServer{
		cfg:       cfg,
		server:    srv,
		health:    health.New(health.RelayCheck("hub", srv.Hub())),
		telemetry: t,
	}
}

// Hub returns the in-process room hub.
func (s *RelayServer) Hub() *relay.Hub { return s.server.Hub() }

// Health returns the readiness handler.
func (s *RelayServer) Health() *health.Handler { return s.health }

// Handler returns the relay routes.
func (s *RelayServer) Handler() http.Handler { return s.server.Handler() }

// ObserveHandler serves /healthz, /readyz and /metrics.
func (s *RelayServer) ObserveHandler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	if s.telemetry != nil {
		mux.Handle("GET /metrics", s.telemetry.Handler())
	}
	return mux
}

// Run serves the relay on ListenAddr and the observe endpoints on
// ObserveAddr until ctx is cancelled. Readiness fails as soon as ctx ends so
// no new rooms are routed here during shutdown.
func (s *RelayServer) Run(ctx context.Context) error {
	context.AfterFunc(ctx, func() { s.health.SetDraining(true) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return Serve(gctx, s.cfg.ListenAddr, s.Handler()) })
	if s.cfg.ObserveAddr != "" {
		g.Go(func() error { return Serve(gctx, s.cfg.ObserveAddr, s.ObserveHandler()) })
	}
	return g.Wait()
}
