package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
)

// Router routes acquisition requests to the first available backend. Under
// a Wayland session the portal backend is preferred, since x11grab only sees
// XWayland clients there.
type Router struct {
	backends []Backend
	mu       sync.RWMutex
}

// NewRouter creates a router over backends, tried in the given order.
func NewRouter(backends ...Backend) *Router {
	return &Router{backends: backends}
}

// IsWayland reports whether the current session is a Wayland session
func IsWayland() bool {
	return strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") || os.Getenv("WAYLAND_DISPLAY") != ""
}

// Name returns the router name
func (r *Router) Name() string {
	return "router"
}

// Available reports whether any backend can capture
func (r *Router) Available() bool {
	return r.pick() != nil
}

// Backends returns the configured backends
func (r *Router) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Backend(nil), r.backends...)
}

func (r *Router) pick() Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.backends {
		if b.Available() {
			return b
		}
	}
	return nil
}

// Acquire forwards req to the first available backend
func (r *Router) Acquire(ctx context.Context, req Request) (Stream, error) {
	b := r.pick()
	if b == nil {
		return nil, fmt.Errorf("%w: no capture backend available", ErrAcquire)
	}

	logger.WithComponent("capture-router").Debug().
		Str("backend", b.Name()).
		Str("source", req.Source.ID).
		Msg("Routing capture request")

	s, err := b.Acquire(ctx, req)
	if err != nil && !errors.Is(err, ErrAcquire) {
		err = fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	return s, err
}
