package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vodhub/vodhub/internal/logger"
)

// Hook is one named teardown step
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// Handler runs registered teardown hooks when the process receives a
// termination signal. Hooks run sequentially in reverse registration
// order so dependents stop before their dependencies: the HTTP boundary
// first, then the job engine, then stores and caches.
type Handler struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	signals chan os.Signal
	done    chan struct{}
	started bool
}

// New creates a shutdown handler with a total teardown timeout
func New(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// Register adds a teardown hook. Later registrations run earlier.
func (h *Handler) Register(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, Hook{Name: name, Fn: fn})
}

// Wait blocks until SIGINT/SIGTERM arrives, then runs the hooks
func (h *Handler) Wait() error {
	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-h.signals
	logger.AppLogger().WithFields(map[string]interface{}{"signal": sig.String()}).
		Info("shutdown signal received")
	return h.Shutdown()
}

// Shutdown runs every hook in reverse order under the handler timeout.
// The first hook error is returned; remaining hooks still run.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		<-h.done
		return nil
	}
	h.started = true
	hooks := append([]Hook(nil), h.hooks...)
	h.mu.Unlock()
	defer close(h.done)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		log := logger.AppLogger().WithFields(map[string]interface{}{"hook": hook.Name})

		if ctx.Err() != nil {
			log.Warn("shutdown timeout exceeded, skipping hook")
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			continue
		}

		if err := hook.Fn(ctx); err != nil {
			log.Error("shutdown hook failed", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info("shutdown hook completed")
	}
	return firstErr
}

// Done is closed once the hooks have run
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// TriggerShutdown injects a termination signal, used by tests and by the
// run command on fatal startup errors after partial initialization
func (h *Handler) TriggerShutdown() {
	select {
	case h.signals <- syscall.SIGTERM:
	default:
	}
}
