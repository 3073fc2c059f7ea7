// Package health provides liveness and readiness probe endpoints.
//
// Liveness answers "is the process alive"; readiness answers "should this
// instance receive traffic". Readiness checks run synchronously on each
// probe request with a per-check timeout, so the endpoint always reflects
// the current state of the service's dependencies.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes a single dependency. It returns nil when the dependency
// is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health tracks a manual ready flag plus a set of named readiness checks.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []check
}

// New creates a Health instance in the not-ready state. Call SetReady(true)
// once initialization completes.
func New() *Health {
	return &Health{}
}

// AddReadinessCheck registers a dependency probe. Checks registered after
// the server starts serving probes are picked up on the next request.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness flag. Set it to false during graceful
// shutdown so load balancers drain this instance before connections close.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// LiveEndpoint serves the liveness probe. A process that can answer HTTP is
// considered alive, so it always returns 200.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, nil, true)
}

// ReadyEndpoint serves the readiness probe. It returns 200 only when the
// manual flag is set and every registered check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}

	h.mu.RLock()
	checks := make([]check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	for _, c := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		err := c.fn(ctx)
		cancel()
		if err != nil {
			failures[c.name] = err.Error()
		}
	}

	writeStatus(w, failures, len(failures) == 0)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeStatus(w http.ResponseWriter, failures map[string]string, ok bool) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if !ok {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
