// Package health serves liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every registered [Checker] concurrently and answers 200 only when all
// pass, 503 otherwise. Both respond with {"status": "ok"|"fail", "checks":
// {name: "ok"|"fail: reason"}}.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz reports ok only when every checker passes within [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// run evaluates all checkers concurrently; errs[i] belongs to checkers[i].
func (h *Handler) run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// ErrNotReady is reported by a [Flag] that has not been marked yet.
var ErrNotReady = errors.New("health: not ready")

// Flag records the outcome of a one-shot initialisation step, such as the
// grammar build. The zero value is not ready.
type Flag struct {
	mu   sync.RWMutex
	done bool
	err  error
}

// Mark records the outcome. A nil err means ready.
func (f *Flag) Mark(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
	f.err = err
}

// Err returns [ErrNotReady] before Mark, then the error passed to Mark.
func (f *Flag) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.done {
		return ErrNotReady
	}
	return f.err
}

// Checker exposes the flag as a named readiness [Checker].
func (f *Flag) Checker(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return f.Err() }}
}

// FilesChecker fails while any of paths is missing or is a directory. Lexicons
// are read once at startup; this surfaces a lost data volume before the next
// restart would fail to build.
func FilesChecker(name string, paths ...string) Checker {
	paths = append([]string(nil), paths...)
	return Checker{Name: name, Check: func(context.Context) error {
		var errs []error
		for _, p := range paths {
			st, err := os.Stat(p)
			switch {
			case err != nil:
				errs = append(errs, err)
			case st.IsDir():
				errs = append(errs, fmt.Errorf("%s is a directory", p))
			}
		}
		return errors.Join(errs...)
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
