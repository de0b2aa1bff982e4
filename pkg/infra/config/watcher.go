// Package config provides hot reload of configuration files.
//
// The watcher monitors the loaded config file through viper's fsnotify
// integration and fans change notifications out to subscribed handlers.
// The service uses it to retune retrieval parameters (top-k, similarity
// threshold, score tolerance) without a restart.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ChangeHandler is invoked with the reloaded viper instance after the
// config file changes. Returning an error marks the handler as failed;
// other handlers still run.
type ChangeHandler func(v *viper.Viper) error

// Reloadable is implemented by components that can apply a new
// configuration section at runtime. Implementations validate the section
// and either apply it atomically or reject it with an error.
type Reloadable interface {
	OnConfigChange(section interface{}) error
}

// Watcher watches a configuration file and notifies subscribers on change.
type Watcher struct {
	viper    *viper.Viper
	mu       sync.RWMutex
	handlers map[string]ChangeHandler
	watching bool
}

// NewWatcher wraps an already-initialized viper instance.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{
		viper:    v,
		handlers: make(map[string]ChangeHandler),
	}
}

// Subscribe registers a handler under id, replacing any previous handler
// with the same id.
func (w *Watcher) Subscribe(id string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = handler
	logger.Infow("Config watcher: handler subscribed", "handler", id)
}

// Unsubscribe removes the handler registered under id, if any.
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[id]; ok {
		delete(w.handlers, id)
		logger.Infow("Config watcher: handler unsubscribed", "handler", id)
	}
}

// Start begins watching the config file. Idempotent.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = true
	w.mu.Unlock()

	w.viper.WatchConfig()
	w.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Infow("Config file changed", "file", e.Name)
		w.notify()
	})

	logger.Info("Config watcher started")
}

// Stop marks the watcher as stopped. Viper offers no way to cancel an
// active watch, so notifications after Stop are suppressed here instead.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watching = false
}

// IsWatching reports whether Start has been called without a later Stop.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// HandlerCount returns the number of registered handlers.
func (w *Watcher) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}

// notify runs all handlers in deterministic (sorted id) order. Handler
// errors are logged and do not stop the remaining handlers.
func (w *Watcher) notify() {
	w.mu.RLock()
	if !w.watching {
		w.mu.RUnlock()
		return
	}
	handlers := make(map[string]ChangeHandler, len(w.handlers))
	ids := make([]string, 0, len(w.handlers))
	for id, h := range w.handlers {
		handlers[id] = h
		ids = append(ids, id)
	}
	w.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := handlers[id](w.viper); err != nil {
			logger.Errorw("Config change handler failed", "handler", id, "error", err)
			continue
		}
		logger.Infow("Config change applied", "handler", id)
	}
}

// SectionHandler builds a ChangeHandler that unmarshals the config section
// at key into a fresh target produced by newTarget and hands it to the
// component. A fresh target per notification keeps concurrent readers of
// the previous section untouched while the component validates the new one.
func SectionHandler(key string, newTarget func() interface{}, component Reloadable) ChangeHandler {
	return func(v *viper.Viper) error {
		target := newTarget()
		if err := v.UnmarshalKey(key, target); err != nil {
			return fmt.Errorf("failed to unmarshal config section %q: %w", key, err)
		}
		if err := component.OnConfigChange(target); err != nil {
			return fmt.Errorf("config section %q rejected: %w", key, err)
		}
		return nil
	}
}
