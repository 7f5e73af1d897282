// Package shutdown runs cleanup callbacks once when the process is about to
// exit, whether through a signal or an orderly return from main.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type hook struct {
	id   uint64
	name string
	fn   func()
}

// Hooks is a registry of exit callbacks.
type Hooks struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	hooks  []hook
	ran    bool
}

// New creates an empty registry.
func New(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{logger: logger.With("component", "shutdown")}
}

// Add registers fn under name and returns a function removing it again.
// Hooks added after Run are ignored.
func (h *Hooks) Add(name string, fn func()) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran {
		h.logger.Warn("Hook registered after shutdown, ignoring", "hook", name)
		return func() {}
	}
	h.nextID++
	id := h.nextID
	h.hooks = append(h.hooks, hook{id: id, name: name, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, hk := range h.hooks {
			if hk.id == id {
				h.hooks = append(h.hooks[:i], h.hooks[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run calls every registered hook in reverse registration order. Only the
// first call does anything.
func (h *Hooks) Run() {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return
	}
	h.ran = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h.call(hooks[i])
	}
}

func (h *Hooks) call(hk hook) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Shutdown hook panicked", "hook", hk.name, "panic", r)
		}
	}()
	h.logger.Debug("Running shutdown hook", "hook", hk.name)
	hk.fn()
}

// Notify runs the hooks when one of sigs arrives, defaulting to SIGINT and
// SIGTERM. The returned channel receives the signal after the hooks finish.
// Cancelling ctx stops listening without running the hooks.
func (h *Hooks) Notify(ctx context.Context, sigs ...os.Signal) <-chan os.Signal {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	in := make(chan os.Signal, 1)
	out := make(chan os.Signal, 1)
	signal.Notify(in, sigs...)

	go func() {
		defer signal.Stop(in)
		select {
		case sig := <-in:
			h.logger.Info("Received signal, running shutdown hooks", "signal", sig.String())
			h.Run()
			out <- sig
		case <-ctx.Done():
		}
	}()
	return out
}
