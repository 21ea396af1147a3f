// Package health provides liveness and readiness checks for the HTTP
// surface.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Check reports whether a named subsystem is ready. Checks must be
// cheap; they run on every readiness probe.
type Check func() error

// Checker aggregates readiness checks. Liveness is unconditional: a
// process that can answer is alive.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds a named readiness check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// status is the readiness response body.
type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler answers 200 whenever the process is running.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status{Status: "ok"})
	}
}

// ReadinessHandler runs every registered check and answers 503 if any
// fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.RLock()
		checks := make(map[string]Check, len(c.checks))
		for name, check := range c.checks {
			checks[name] = check
		}
		c.mu.RUnlock()

		out := status{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(); err != nil {
				out.Status = "unavailable"
				out.Checks[name] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				out.Checks[name] = "ok"
			}
		}
		writeJSON(w, code, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
