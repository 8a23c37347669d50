// Package health serves the liveness and readiness probes of the relay
// server and the listen client.
//
// /healthz always answers 200. /readyz runs every [Checker] concurrently and
// answers 503 when a required check fails or the process is draining. A
// failing optional check only downgrades the status to "degraded".
//
//	{"status":"degraded","checks":{"relay":{"status":"ok","duration_ms":2},
//	  "history":{"status":"fail","error":"connection refused","duration_ms":5}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyglot/internal/relay"
)

// Overall and per-check statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// probeRoom is the room joined by [RelayCheck].
const probeRoom = "HEALTH"

// Checker is one named readiness check.
type Checker struct {
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional failures degrade readiness instead of failing it.
	Optional bool
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report is the /readyz body.
type Report struct {
	Status   string                 `json:"status"`
	Draining bool                   `json:"draining,omitempty"`
	Checks   map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. Its checkers are fixed at construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
	draining atomic.Bool
}

// New returns a Handler running checkers with a 5 s timeout each.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...), timeout: 5 * time.Second}
}

// SetDraining makes /readyz fail so new rooms are routed elsewhere while
// existing connections finish.
func (h *Handler) SetDraining(v bool) { h.draining.Store(v) }

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz runs the checks and writes a [Report].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Check runs every checker concurrently and summarises the results.
func (h *Handler) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Draining: h.draining.Load()}
	if len(results) > 0 {
		rep.Checks = make(map[string]CheckResult, len(results))
	}
	for i, res := range results {
		c := h.checkers[i]
		rep.Checks[c.Name] = res
		if res.Status == StatusOK {
			continue
		}
		if c.Optional {
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
			continue
		}
		rep.Status = StatusFail
	}
	if rep.Draining {
		rep.Status = StatusFail
	}
	return rep
}

func (h *Handler) run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Status: StatusOK, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusFail
		res.Error = err.Error()
	}
	return res
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Pinger is implemented by stores that can verify their connection, such as
// the Postgres history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a [Checker] that calls p.Ping.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// RelayCheck joins and leaves a probe room on r. It works for the
// in-process hub and the websocket client alike.
func RelayCheck(name string, r relay.Relay) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		ch, err := r.Join(ctx, probeRoom)
		if err != nil {
			return err
		}
		return ch.Close()
	}}
}

// Optional marks c as optional.
func Optional(c Checker) Checker {
	c.Optional = true
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
