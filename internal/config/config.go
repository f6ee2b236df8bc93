// Package config provides configuration loading and hot-reload for the
// proxy's listener pair and starting MTU (spec.md §6: "the only
// environment the core reads is whatever injects the listener pair and
// starting MTU").
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Config is the proxy's full runtime configuration.
type Config struct {
	ListenAddr string `json:"listen_addr"` // client-facing UDP listener
	TargetAddr string `json:"target_addr"` // server-facing UDP listener target
	InitialMTU int    `json:"initial_mtu"`
	APIAddr    string `json:"api_addr"`  // management API bind address, empty disables it
	LogLevel   string `json:"log_level"` // zapcore.Level text, e.g. "debug"/"info"; empty keeps the level in effect

	// APIAddr and LogLevel are the only fields Manager.Watch's reload
	// path is expected to change live (SPEC_FULL.md §4.9); ListenAddr,
	// TargetAddr and InitialMTU take effect only on next process start.
}

// DefaultMTU matches spec.md §3's initial negotiated MTU.
const DefaultMTU = 1492

// Default returns a Config with the proxy's baseline defaults.
func Default() *Config {
	return &Config{
		InitialMTU: DefaultMTU,
		APIAddr:    ":8081",
	}
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr invalid: %w", err)
	}
	if c.TargetAddr == "" {
		return errors.New("target_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.TargetAddr); err != nil {
		return fmt.Errorf("target_addr invalid: %w", err)
	}
	if c.InitialMTU <= 0 || c.InitialMTU > 65535 {
		return fmt.Errorf("initial_mtu must be between 1 and 65535, got %d", c.InitialMTU)
	}
	return nil
}

// Load reads and validates a Config from a JSON file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Manager holds the current Config and watches its source file for
// changes, invoking onChange with the newly loaded Config whenever the
// file is rewritten.
type Manager struct {
	mu       sync.RWMutex
	current  *Config
	path     string
	log      *zap.Logger
	onChange func(*Config)
}

// NewManager loads path once and returns a ready Manager.
func NewManager(path string, log *zap.Logger) (*Manager, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{current: c, path: path, log: log}, nil
}

// Current returns the most recently loaded Config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.onChange = fn
}

// Watch watches the config file for writes and reloads it, logging and
// ignoring a reload that fails validation so a bad edit doesn't crash a
// running proxy.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				time.Sleep(100 * time.Millisecond)
				next, err := Load(m.path)
				if err != nil {
					m.log.Warn("config reload failed, keeping previous config", zap.Error(err))
					continue
				}
				m.mu.Lock()
				m.current = next
				m.mu.Unlock()
				if m.onChange != nil {
					m.onChange(next)
				}
				m.log.Info("config reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
