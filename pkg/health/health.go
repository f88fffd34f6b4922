// Package health serves liveness and readiness probes.
//
// Checks run on demand when a probe is requested, concurrently and each
// under its own timeout. Readiness additionally requires the service to be
// marked ready, which lets shutdown drain traffic before the server stops.
package health

import (
	"context"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil if the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health holds registered checks and the readiness flag.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []check
	readiness []check
}

// New creates a Health instance that is not yet ready.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that reports whether the process
// itself is functioning.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check on a dependency the service needs to
// serve traffic, such as a database.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, check{name: name, timeout: timeout, fn: fn})
}

// SetReady sets the readiness flag.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Live runs the liveness checks and returns failures by check name.
func (h *Health) Live(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.liveness)
	h.mu.RUnlock()

	return runChecks(ctx, checks)
}

// Ready runs the readiness checks and returns failures by check name. An
// unset readiness flag is reported under "_readiness".
func (h *Health) Ready(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.readiness)
	h.mu.RUnlock()

	failures := runChecks(ctx, checks)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	return failures
}

func runChecks(ctx context.Context, checks []check) map[string]string {
	errs := make([]error, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			errs[i] = c.fn(checkCtx)
			return nil
		})
	}
	_ = g.Wait()

	failures := make(map[string]string)
	for i, err := range errs {
		if err != nil {
			failures[checks[i].name] = err.Error()
		}
	}
	return failures
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Live(r.Context()))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Ready(r.Context()))
}

// writeResponse writes {"status":"ok"} with 200, or {"status":"unhealthy",
// "checks":{...}} with 503.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
