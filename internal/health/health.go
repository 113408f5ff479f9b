// Package health provides the liveness and readiness probes for the call
// server.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     passes. A server that is not ready should not be handed new calls,
//     so load balancers point carriers elsewhere.
//
// Responses are JSON with a top-level "status" field ("ok" or "fail") and a
// "checks" map with the per-dependency outcome.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds a single readiness check. Carrier webhooks time out
// quickly, so a probe must never hang on one slow dependency.
const checkTimeout = 5 * time.Second

// Checker is a named probe of one dependency (the call store, the executor
// child process). Check returns nil when the dependency is usable.
type Checker struct {
	// Name keys the check in the JSON response, e.g. "database".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe; it always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every registered checker and returns 200 only when all pass.
// Checkers run concurrently so the probe latency is that of the slowest
// dependency, not their sum.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}

	outcomes := make([]outcome, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			outcomes[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}()
	}
	wg.Wait()

	checks := make(map[string]string, len(outcomes))
	allOK := true
	for _, o := range outcomes {
		if o.err != nil {
			checks[o.name] = "fail: " + o.err.Error()
			allOK = false
		} else {
			checks[o.name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
