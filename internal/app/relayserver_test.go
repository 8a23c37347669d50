package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/observe"
)

func TestRelayServer_JoinRoom(t *testing.T) {
	t.Parallel()

	rs := app.NewRelayServer(config.ServerConfig{}, observe.DefaultMetrics(), nil)
	ts := httptest.NewServer(rs.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/rooms/ABC123", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(5 * time.Second)
	for rs.Hub().Members("ABC123") != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rs.Hub().Members("ABC123"); got != 1 {
		t.Errorf("members = %d, want 1", got)
	}
}

func TestRelayServer_ObserveEndpoints(t *testing.T) {
	t.Parallel()

	rs := app.NewRelayServer(config.ServerConfig{}, nil, nil)
	h := rs.ObserveHandler()

	for path, want := range map[string]int{"/healthz": http.StatusOK, "/readyz": http.StatusOK} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s = %d, want %d", path, rec.Code, want)
		}
	}

	rs.Health().SetDraining(true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz while draining = %d, want 503", rec.Code)
	}
}

func TestRelayServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	rs := app.NewRelayServer(config.ServerConfig{ListenAddr: "127.0.0.1:0", ObserveAddr: "127.0.0.1:0"}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rs.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
