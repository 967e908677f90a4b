// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/momentics/hioload-ring/api"
)

// Well-known configuration keys.
const (
	KeyDebug        = "debug"
	KeyRingSpace    = "ring.space"
	KeyRingCapacity = "ring.capacity"
	KeyDevice       = "device"
)

// Environment variables consulted by LoadEnv, keyed by configuration key.
var envKeys = map[string]string{
	KeyDebug:        "HIOLOAD_RING_DEBUG",
	KeyRingSpace:    "HIOLOAD_RING_SPACE",
	KeyRingCapacity: "HIOLOAD_RING_CAPACITY",
	KeyDevice:       "HIOLOAD_RING_DEVICE",
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	copy := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		copy[k] = v
	}
	return copy
}

// Get returns a single value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges new values and dispatches reload if needed.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.dispatchReload()
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload() {
	for _, fn := range cs.listeners {
		go fn()
	}
}

// Bool reads key as a boolean; strings are parsed with strconv.ParseBool.
func (cs *ConfigStore) Bool(key string, def bool) bool {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// String reads key as a string.
func (cs *ConfigStore) String(key, def string) string {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Size reads key as a byte count. Strings accept humanized sizes ("4MiB", "64 kB").
func (cs *ConfigStore) Size(key string, def int) (int, error) {
	v, ok := cs.Get(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case string:
		parsed, err := humanize.ParseBytes(n)
		if err != nil {
			return def, api.Wrap(err, api.StatusInvalidArgument, "ConfigStore.Size").WithContext("key", key)
		}
		return int(parsed), nil
	}
	return def, api.Errorf(api.StatusInvalidArgument, "ConfigStore.Size", "key %q has type %T", key, v)
}

// Space reads key as a memory space name.
func (cs *ConfigStore) Space(key string, def api.Space) (api.Space, error) {
	name := cs.String(key, "")
	if name == "" {
		return def, nil
	}
	return api.ParseSpace(name)
}

// LoadEnv copies the HIOLOAD_RING_* environment variables present into the store.
func (cs *ConfigStore) LoadEnv() {
	found := make(map[string]any)
	for key, env := range envKeys {
		if v, ok := os.LookupEnv(env); ok {
			found[key] = strings.TrimSpace(v)
		}
	}
	if len(found) > 0 {
		cs.SetConfig(found)
	}
}

// BindDebugFlag applies the "debug" key now and on every reload.
func (cs *ConfigStore) BindDebugFlag() {
	apply := func() { SetDebugEnabled(cs.Bool(KeyDebug, DebugEnabled())) }
	apply()
	cs.OnReload(apply)
	RegisterReloadHook(apply)
}
