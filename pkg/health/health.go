// Package health exposes liveness and readiness probes in the style of
// Kubernetes: /livez answers "is the process functional", /readyz answers
// "should this instance receive traffic".
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes a single component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Kind separates liveness probes from readiness probes.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	lastErr error
}

// Health runs registered probes on a fixed interval and serves their
// combined result over HTTP. Readiness additionally requires an explicit
// SetReady(true); graceful shutdown flips it back to drain traffic.
type Health struct {
	mu     sync.RWMutex
	probes []*probe
	ready  bool

	stop   context.CancelFunc
	doneCh chan struct{}
}

func New() *Health {
	return &Health{}
}

// Register adds a probe. Must be called before Start.
func (h *Health) Register(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, &probe{
		name:    name,
		kind:    kind,
		timeout: timeout,
		fn:      fn,
	})
}

// Start runs every probe once, then keeps sweeping them at the given
// interval until Stop is called or ctx is cancelled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.stop = cancel
	h.doneCh = make(chan struct{})
	done := h.doneCh
	h.mu.Unlock()

	go func() {
		defer close(done)

		h.sweep(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.stop, h.doneCh
	h.stop, h.doneCh = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *Health) sweep(ctx context.Context) {
	h.mu.RLock()
	probes := make([]*probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	for _, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.fn(pctx)
		cancel()

		h.mu.Lock()
		p.lastErr = err
		h.mu.Unlock()
	}
}

// SetReady marks the instance as ready (after startup) or draining
// (during shutdown).
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

// IsReady reports whether the instance was marked ready and every
// readiness probe passed its last sweep.
func (h *Health) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.ready {
		return false
	}
	for _, p := range h.probes {
		if p.kind == Readiness && p.lastErr != nil {
			return false
		}
	}
	return true
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out map[string]string
	for _, p := range h.probes {
		if p.kind != kind || p.lastErr == nil {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[p.name] = p.lastErr.Error()
	}
	return out
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe. 200 when all liveness checks
// pass, 503 with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, h.failures(Liveness))
}

// ReadyEndpoint serves the readiness probe. 503 until SetReady(true) and
// every readiness check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)

	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()
	if !ready {
		if failures == nil {
			failures = make(map[string]string)
		}
		failures["_ready"] = "instance is not accepting traffic"
	}
	writeProbe(w, failures)
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
