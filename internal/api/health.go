package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool and by the redis adapter below.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const checkTimeout = time.Second

type HealthHandler struct {
	deps    map[string]Pinger
	env     string
	version string
}

// NewHealthHandler checks every named dependency on readiness. A nil Pinger
// reports "unconfigured" and fails readiness.
func NewHealthHandler(deps map[string]Pinger, env, version string) *HealthHandler {
	return &HealthHandler{deps: deps, env: env, version: version}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.version, Env: h.env})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(names)),
	}
	for _, name := range names {
		state := h.check(r.Context(), h.deps[name])
		resp.Dependencies[name] = state
		if state != "ok" {
			resp.Status = "error"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unconfigured"
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "ok"
}
