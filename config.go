package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
)

// Config holds the gateway's tunable settings. The file is JSONC so the
// config can carry comments.
type Config struct {
	// DotnetPath is the dotnet binary to invoke (name or absolute path).
	DotnetPath string `json:"dotnet_path"`
	// CommandTimeoutSeconds bounds short-lived operations (build, test,
	// publish, ...). Long-running sessions are not subject to it.
	CommandTimeoutSeconds int `json:"command_timeout_seconds"`
	// MaxLogLines caps the retained captured lines per session.
	MaxLogLines int `json:"max_log_lines"`
	// MetadataTTLSeconds is the template/SDK metadata cache lifetime.
	MetadataTTLSeconds int `json:"metadata_ttl_seconds"`
	// OutputTailLines caps stdout/stderr echoed back for short-lived
	// operations.
	OutputTailLines int `json:"output_tail_lines"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		DotnetPath:            "dotnet",
		CommandTimeoutSeconds: 600,
		MaxLogLines:           DefaultMaxLogLines,
		MetadataTTLSeconds:    900,
		OutputTailLines:       400,
	}
}

// LoadConfig reads and parses a JSONC config file, filling unset fields
// from the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.DotnetPath == "" {
		cfg.DotnetPath = "dotnet"
	}
	if cfg.CommandTimeoutSeconds <= 0 {
		cfg.CommandTimeoutSeconds = 600
	}
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = DefaultMaxLogLines
	}
	if cfg.MetadataTTLSeconds <= 0 {
		cfg.MetadataTTLSeconds = 900
	}
	if cfg.OutputTailLines <= 0 {
		cfg.OutputTailLines = 400
	}
	return cfg, nil
}

// ConfigStore hands out consistent config snapshots to concurrent tool
// handlers while reloads swap the whole value.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg Config
}

// Global config store instance
var config = &ConfigStore{cfg: DefaultConfig()}

// Get returns the current config snapshot.
func (s *ConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the config and pushes the settings that other components
// cache locally.
func (s *ConfigStore) Set(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	sessions.SetMaxLogLines(cfg.MaxLogLines)
	metadata.SetTTL(time.Duration(cfg.MetadataTTLSeconds) * time.Second)
	// A reload may point at a different dotnet install; cached template and
	// SDK metadata would be stale for it.
	metadata.Invalidate()
}

// watchConfig reloads the config file whenever it changes on disk. Editors
// often replace the file rather than write in place, so Create events are
// treated like writes. Runs until ctx is cancelled.
func watchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					LogWarn("Config", "Reload failed", err.Error())
					continue
				}
				config.Set(cfg)
				LogInfo("Config", "Config reloaded", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				LogWarn("Config", "Watcher error", err.Error())
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
